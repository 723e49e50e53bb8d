package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseExotelStatus(t *testing.T) {
	body := strings.NewReader("CallSid=abc123&Status=in-progress&EventType=answered")
	r := httptest.NewRequest(http.MethodPost, "/webhooks/exotel/status", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseExotelStatus(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "abc123" {
		t.Fatalf("expected CallSid")
	}

	ev := form.ToLegEvent(time.Unix(1700000000, 0).UTC())
	if ev.ProviderLegID != "abc123" {
		t.Fatalf("expected provider leg id")
	}
	if ev.Status != LegAnswered {
		t.Fatalf("expected answered, got %q", ev.Status)
	}
	if ev.Raw == "" {
		t.Fatalf("expected raw payload for audit")
	}
}

func TestToLegEvent_StatusMapping(t *testing.T) {
	for _, tc := range []struct {
		provider string
		want     LegStatus
	}{
		{"queued", LegQueued},
		{"ringing", LegRinging},
		{"in-progress", LegAnswered},
		{"completed", LegCompleted},
		{"busy", LegBusy},
		{"no-answer", LegNoAnswer},
		{"something-new", LegFailed},
	} {
		ev := ExotelStatusForm{CallSid: "x", Status: tc.provider}.ToLegEvent(time.Now())
		if ev.Status != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.provider, tc.want, ev.Status)
		}
	}
}

func TestLegStatus_Final(t *testing.T) {
	finals := []LegStatus{LegCompleted, LegFailed, LegBusy, LegNoAnswer}
	for _, s := range finals {
		if !s.Final() {
			t.Fatalf("%q should be final", s)
		}
	}
	for _, s := range []LegStatus{LegQueued, LegRinging, LegAnswered} {
		if s.Final() {
			t.Fatalf("%q should not be final", s)
		}
	}
}
