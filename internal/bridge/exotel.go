package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"safescan-platform/internal/config"
)

const exotelBaseURL = "https://api.exotel.com"

// ExotelProvider dials through the Exotel Calls API. The CallerId on every
// leg is the rented ExoPhone, so neither party ever sees the other's
// number.
type ExotelProvider struct {
	cfg     config.ExotelConfig
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

func NewExotelProvider(cfg config.ExotelConfig, log *slog.Logger) *ExotelProvider {
	if log == nil {
		log = slog.Default()
	}
	return &ExotelProvider{
		cfg:     cfg,
		baseURL: exotelBaseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (p *ExotelProvider) Name() string { return "exotel" }

func (p *ExotelProvider) HealthCheck(ctx context.Context) error {
	// Account metadata is the cheapest authenticated endpoint.
	endpoint := fmt.Sprintf("%s/v1/Accounts/%s.json", p.baseURL, p.cfg.SID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.cfg.APIKey, p.cfg.APIToken)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge: exotel health check status %d", resp.StatusCode)
	}
	return nil
}

// exotelCallResponse is the subset of the Calls API response we read.
type exotelCallResponse struct {
	Call struct {
		Sid    string `json:"Sid"`
		Status string `json:"Status"`
	} `json:"Call"`
}

func (p *ExotelProvider) DialLeg(ctx context.Context, dreq DialLegRequest) (DialLegResult, error) {
	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect.json", p.baseURL, p.cfg.SID)

	callerID := dreq.CallerID
	if callerID == "" {
		callerID = p.cfg.ExoPhone
	}

	form := url.Values{}
	form.Set("From", dreq.Phone)
	form.Set("CallerId", callerID)
	form.Set("TimeLimit", strconv.Itoa(int(dreq.MaxDuration.Seconds())))
	form.Set("TimeOut", strconv.Itoa(int(dreq.RingTimeout.Seconds())))
	if dreq.StatusCallbackURL != "" {
		form.Set("StatusCallback", dreq.StatusCallbackURL)
		form.Set("StatusCallbackEvents[0]", "terminal")
		form.Set("StatusCallbackEvents[1]", "answered")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DialLegResult{}, err
	}
	req.SetBasicAuth(p.cfg.APIKey, p.cfg.APIToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return DialLegResult{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		p.log.Warn("exotel dial rejected", "status", resp.StatusCode, "request_id", dreq.RequestID)
		return DialLegResult{}, fmt.Errorf("bridge: exotel dial status %d", resp.StatusCode)
	}

	var parsed exotelCallResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return DialLegResult{}, fmt.Errorf("bridge: exotel response decode: %w", err)
	}
	if parsed.Call.Sid == "" {
		return DialLegResult{}, fmt.Errorf("bridge: exotel response missing call sid")
	}

	p.log.Info("exotel leg dialed", "request_id", dreq.RequestID, "leg_sid", parsed.Call.Sid)
	return DialLegResult{ProviderLegID: parsed.Call.Sid}, nil
}

func (p *ExotelProvider) HangupLeg(ctx context.Context, providerLegID string) error {
	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/%s.json", p.baseURL, p.cfg.SID, providerLegID)

	form := url.Values{}
	form.Set("Status", "completed")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.cfg.APIKey, p.cfg.APIToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge: exotel hangup status %d", resp.StatusCode)
	}
	return nil
}
