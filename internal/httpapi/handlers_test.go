package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"safescan-platform/internal/auth"
	"safescan-platform/internal/bridge"
	"safescan-platform/internal/config"
	"safescan-platform/internal/identity"

	"github.com/gin-gonic/gin"
)

type stubProvider struct {
	dialErr error
	dialed  int
}

func (s *stubProvider) Name() string                      { return "stub" }
func (s *stubProvider) HealthCheck(context.Context) error { return nil }
func (s *stubProvider) HangupLeg(context.Context, string) error {
	return nil
}

func (s *stubProvider) DialLeg(context.Context, bridge.DialLegRequest) (bridge.DialLegResult, error) {
	if s.dialErr != nil {
		return bridge.DialLegResult{}, s.dialErr
	}
	s.dialed++
	return bridge.DialLegResult{ProviderLegID: "leg-1"}, nil
}

type alwaysOffline struct{}

func (alwaysOffline) IsOnline(string) bool { return false }

func newTestRouter(t *testing.T, provider *stubProvider) (*gin.Engine, *identity.MemoryDirectory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := identity.NewMemoryDirectory()
	dir.AddOwner(identity.Owner{ID: "own-1", Name: "Asha", Phone: "+919876543210"})
	dir.AddSlug(identity.QRSlug{ID: "slug-1", Slug: "sticker-1", Claimed: true, ClaimedBy: "own-1"})
	dir.AddContact(identity.Contact{
		ID: "con-1", OwnerID: "own-1", Name: "Ravi", Relationship: "brother",
		Phone: "+919812345678", Verified: true,
	})

	resolver := identity.NewResolver(dir, identity.NewMemoryRegistry())
	orch := bridge.NewOrchestrator(provider, bridge.NewMemoryGuard(), resolver, nil, bridge.Options{})

	authm, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	h := Handlers{
		Auth:     authm,
		Resolver: resolver,
		Bridge:   orch,
		Presence: alwaysOffline{},
		Turn: config.TurnConfig{
			URL:           "turn:turn.safescan24.in:3478",
			Secret:        "turn-secret",
			Realm:         "safescan24",
			CredentialTTL: time.Hour,
		},
	}

	r := gin.New()
	r.POST("/api/auth/token", h.Token)
	r.GET("/api/qr/:slug", h.QRScan)
	r.GET("/api/turn/credentials", h.TurnCredentials)
	r.POST("/api/call/initiate", h.CallInitiate)
	r.GET("/api/call/:call_ref/status", h.CallStatus)
	return r, dir
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response is not json: %v: %s", err, w.Body.String())
		}
	}
	return w, parsed
}

func TestCallInitiate_AcceptsContactTarget(t *testing.T) {
	p := &stubProvider{}
	r, _ := newTestRouter(t, p)

	w, body := doJSON(t, r, http.MethodPost, "/api/call/initiate",
		`{"contactId":"con-1","scannerPhone":"9800011122"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["status"] != "calling" {
		t.Fatalf("expected calling, got %v", body["status"])
	}
	ref, _ := body["callRef"].(string)
	if ref == "" {
		t.Fatalf("expected a call ref")
	}
	if p.dialed != 1 {
		t.Fatalf("expected one provider dial, got %d", p.dialed)
	}

	// Poll endpoint sees the same attempt.
	w, body = doJSON(t, r, http.MethodGet, "/api/call/"+ref+"/status", "")
	if w.Code != http.StatusOK || body["status"] != "calling" {
		t.Fatalf("status poll failed: %d %v", w.Code, body)
	}
}

func TestCallInitiate_Rejections(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
		code int
	}{
		{"missing phone", `{"contactId":"con-1"}`, http.StatusBadRequest},
		{"short phone", `{"contactId":"con-1","scannerPhone":"12345"}`, http.StatusBadRequest},
		{"no target", `{"scannerPhone":"9800011122"}`, http.StatusBadRequest},
		{"unknown contact", `{"contactId":"nope","scannerPhone":"9800011122"}`, http.StatusNotFound},
		{"unknown owner", `{"ownerId":"nope","scannerPhone":"9800011122"}`, http.StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t, &stubProvider{})
			w, body := doJSON(t, r, http.MethodPost, "/api/call/initiate", tc.body)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Fatalf("rejections must carry an error message")
			}
		})
	}
}

func TestCallInitiate_ProviderFailureIsBadGateway(t *testing.T) {
	p := &stubProvider{dialErr: context.DeadlineExceeded}
	r, _ := newTestRouter(t, p)

	w, _ := doJSON(t, r, http.MethodPost, "/api/call/initiate",
		`{"ownerId":"own-1","scannerPhone":"9800011122"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
}

func TestQRScan_NeverLeaksPhoneNumbers(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})

	w, body := doJSON(t, r, http.MethodGet, "/api/qr/sticker-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["status"] != "claimed" {
		t.Fatalf("expected claimed, got %v", body["status"])
	}

	phonePattern := regexp.MustCompile(`\+?\d{10,}`)
	if phonePattern.MatchString(w.Body.String()) {
		t.Fatalf("scan response leaked a phone number: %s", w.Body.String())
	}
}

func TestQRScan_UnknownSlugIsInvalidNotError(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})

	w, body := doJSON(t, r, http.MethodGet, "/api/qr/never-printed", "")
	if w.Code != http.StatusOK || body["status"] != "invalid" {
		t.Fatalf("expected 200/invalid, got %d %v", w.Code, body)
	}
}

func TestTurnCredentials_CoturnRESTFormat(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})

	w, body := doJSON(t, r, http.MethodGet, "/api/turn/credentials", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	username, _ := body["username"].(string)
	credential, _ := body["credential"].(string)
	if !strings.HasSuffix(username, ":safescan24") {
		t.Fatalf("username must be expiry:realm, got %q", username)
	}

	mac := hmac.New(sha1.New, []byte("turn-secret"))
	mac.Write([]byte(username))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if credential != want {
		t.Fatalf("credential mismatch: got %q want %q", credential, want)
	}
}

func TestToken_IssuesVerifiablePair(t *testing.T) {
	r, _ := newTestRouter(t, &stubProvider{})

	w, body := doJSON(t, r, http.MethodPost, "/api/auth/token", `{"userId":"own-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	access, _ := body["access_token"].(string)
	if access == "" {
		t.Fatalf("expected access token")
	}

	authm, _ := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	claims, err := authm.Verify(access, auth.TokenTypeAccess, time.Now())
	if err != nil {
		t.Fatalf("issued token failed verification: %v", err)
	}
	if claims.UserID != "own-1" {
		t.Fatalf("expected own-1, got %q", claims.UserID)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/auth/token", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing userId must be 400, got %d", w.Code)
	}
}
