package bridge

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"safescan-platform/internal/audit"
	"safescan-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ExotelStatusForm captures the subset of status callback fields we care
// about. Exotel posts application/x-www-form-urlencoded.
//
// Keep it minimal and provider-adapter-only. Lifecycle decisions are not
// made here.
type ExotelStatusForm struct {
	CallSid              string
	Status               string
	EventType            string
	From                 string
	To                   string
	DateUpdated          string
	ConversationDuration string
}

func ParseExotelStatus(r *http.Request) (ExotelStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return ExotelStatusForm{}, err
	}
	f := ExotelStatusForm{
		CallSid:              r.PostFormValue("CallSid"),
		Status:               r.PostFormValue("Status"),
		EventType:            r.PostFormValue("EventType"),
		From:                 r.PostFormValue("From"),
		To:                   r.PostFormValue("To"),
		DateUpdated:          r.PostFormValue("DateUpdated"),
		ConversationDuration: r.PostFormValue("ConversationDuration"),
	}
	return f, nil
}

// ToLegEvent normalizes the provider status vocabulary.
func (f ExotelStatusForm) ToLegEvent(occurredAt time.Time) LegEvent {
	var status LegStatus
	switch strings.ToLower(f.Status) {
	case "queued":
		status = LegQueued
	case "ringing":
		status = LegRinging
	case "in-progress", "answered":
		status = LegAnswered
	case "completed":
		status = LegCompleted
	case "busy":
		status = LegBusy
	case "no-answer":
		status = LegNoAnswer
	default:
		status = LegFailed
	}
	raw, _ := json.Marshal(f)
	return LegEvent{
		ProviderLegID: f.CallSid,
		Status:        status,
		OccurredAt:    occurredAt,
		Raw:           string(raw),
	}
}

// StatusWebhookHandler converts the provider callback to internal leg
// events and hands them to the orchestrator. No business logic here.
//
// NOTE: protect this endpoint with provider signature validation in
// production deployments.
type StatusWebhookHandler struct {
	Orchestrator *Orchestrator

	// Audit stores the raw callback, best effort. Nil disables it.
	Audit *audit.Service

	Now func() time.Time
}

func (h StatusWebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Orchestrator == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "orchestrator not configured"})
		return
	}

	form, err := ParseExotelStatus(c.Request)
	if err != nil || form.CallSid == "" {
		log.Warn("exotel status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	ev := form.ToLegEvent(h.Now())
	if h.Audit != nil {
		if err := h.Audit.LogLegStatus(c.Request.Context(), ev.ProviderLegID, string(ev.Status), ev.Raw); err != nil {
			log.Warn("leg status audit failed", "leg_id", ev.ProviderLegID, "err", err)
		}
	}

	h.Orchestrator.HandleLegEvent(ev)
	c.Status(http.StatusOK)
}
