package httpapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"safescan-platform/internal/audit"
	"safescan-platform/internal/auth"
	"safescan-platform/internal/bridge"
	"safescan-platform/internal/calls"
	"safescan-platform/internal/config"
	"safescan-platform/internal/identity"
	"safescan-platform/internal/reporting"
	"safescan-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Resolver *identity.Resolver
	Bridge   *bridge.Orchestrator
	Presence identity.Presence
	Turn     config.TurnConfig

	// Audit and Reports are optional; handlers work without them.
	Audit   *audit.Service
	Reports *reporting.Service
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"userId"`
}

// Token issues a JWT token pair for an owner device. Credential
// verification (the OTP login) happens upstream; this endpoint only turns
// an established identity into bearer tokens.
func (h Handlers) Token(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- QR scan ---

// QRScan returns the scanner-visible view of a sticker. The resolver
// already strips phone numbers; nothing here may add them back.
func (h Handlers) QRScan(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "slug required"})
		return
	}
	result, err := h.Resolver.Scan(c.Request.Context(), slug, h.Presence)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogScan(c.Request.Context(), result.SlugID, result.OwnerID, string(result.Status)); err != nil {
			logger.FromGin(c).Warn("scan audit failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, result)
}

// --- Call initiation ---

type initiateRequest struct {
	OwnerID      string `json:"ownerId"`
	ContactID    string `json:"contactId"`
	ScannerPhone string `json:"scannerPhone"`
}

// CallInitiate starts a bridged call: scanner leg first, target leg on
// pickup. The response status is the coarse client view; leg detail never
// leaves the orchestrator.
func (h Handlers) CallInitiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ScannerPhone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scannerPhone required"})
		return
	}
	if req.OwnerID == "" && req.ContactID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ownerId or contactId required"})
		return
	}

	ctx := c.Request.Context()
	rid, err := h.Resolver.ResolveTarget(ctx, req.OwnerID, req.ContactID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}

	snap, err := h.Bridge.Initiate(ctx, rid.ID, req.ScannerPhone)
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogInitiation(ctx, rid.ID, rid.OwnerID); err != nil {
			logger.FromGin(c).Warn("initiation audit failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": string(snap.Status), "callRef": rid.ID})
}

// CallStatus is the poll endpoint for a bridged attempt. The ref is the
// opaque routing id handed out by CallInitiate.
func (h Handlers) CallStatus(c *gin.Context) {
	id := c.Param("call_ref")
	snap, ok := h.Bridge.Status(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(snap.Status)})
}

// writeCallError maps domain failures onto HTTP statuses. Only the
// taxonomy's user message crosses the wire; causes stay in logs.
func (h Handlers) writeCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bridge.ErrInvalidPhone):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scannerPhone must contain at least 10 digits"})
	case errors.Is(err, bridge.ErrBridgeInFlight):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a call for this target is already in progress"})
	case errors.Is(err, bridge.ErrBridgeCapacity):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "all call lines are busy, please retry shortly"})
	default:
		var ce *calls.CallError
		if errors.As(err, &ce) {
			switch ce.Kind {
			case calls.KindInvalidSession:
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": ce.Message})
			case calls.KindBridgeProviderError:
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": ce.Message})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": ce.Message})
			}
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call initiation failed"})
	}
}

// --- Reporting ---

// ReportSummary aggregates the call-event trail for ops. Protected by the
// access-token middleware; defaults to the last 24 hours when no range is
// given. Accepts from/to as RFC 3339.
func (h Handlers) ReportSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}

	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		rng.From = ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		rng.To = ts
	}

	summary, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{Range: rng})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- TURN credentials ---

// TurnCredentials hands a browser client time-limited TURN credentials in
// the coturn REST format: username is "expiry:realm", password is
// base64(HMAC-SHA1(secret, username)).
func (h Handlers) TurnCredentials(c *gin.Context) {
	if h.Turn.Secret == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "turn not configured"})
		return
	}
	ttl := h.Turn.CredentialTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiry := time.Now().Add(ttl).Unix()
	username := fmt.Sprintf("%d:%s", expiry, h.Turn.Realm)

	mac := hmac.New(sha1.New, []byte(h.Turn.Secret))
	mac.Write([]byte(username))
	credential := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	c.JSON(http.StatusOK, gin.H{
		"urls":       []string{h.Turn.URL},
		"username":   username,
		"credential": credential,
		"ttl":        int64(ttl.Seconds()),
	})
}
