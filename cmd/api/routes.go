package main

import (
	"database/sql"
	"time"

	"safescan-platform/internal/audit"
	"safescan-platform/internal/auth"
	"safescan-platform/internal/bridge"
	"safescan-platform/internal/config"
	"safescan-platform/internal/httpapi"
	"safescan-platform/internal/identity"
	"safescan-platform/internal/reporting"
	signalhub "safescan-platform/internal/signal"
	"safescan-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg          config.Config
	auth         *auth.Manager
	hub          *signalhub.Hub
	resolver     *identity.Resolver
	orchestrator *bridge.Orchestrator
	audit        *audit.Service
	reports      *reporting.Service
	db           *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Signaling relay. Authentication is inside the handler: a valid token
	// binds the socket to the owner identity, everything else is a guest.
	r.GET("/ws/signal", signalhub.Handler(deps.hub, deps.auth))

	// Provider webhook (public). Exotel retries on non-200; the handler
	// acks unknown legs so stale retries stop.
	webhook := bridge.StatusWebhookHandler{Orchestrator: deps.orchestrator, Audit: deps.audit, Now: time.Now}
	r.POST("/webhooks/exotel/status", webhook.HandleStatus)

	h := httpapi.Handlers{
		Auth:     deps.auth,
		Resolver: deps.resolver,
		Bridge:   deps.orchestrator,
		Presence: deps.hub,
		Turn:     deps.cfg.Turn,
		Audit:    deps.audit,
		Reports:  deps.reports,
	}

	// The scanner-facing API is unauthenticated by design: an emergency
	// caller has no account and must not be asked for one.
	api := r.Group("/api")
	{
		api.POST("/auth/token", h.Token)
		api.GET("/qr/:slug", h.QRScan)
		api.GET("/turn/credentials", h.TurnCredentials)
		api.POST("/call/initiate", h.CallInitiate)
		api.GET("/call/:call_ref/status", h.CallStatus)
	}

	// Ops endpoints need a real owner token.
	admin := r.Group("/api/admin")
	admin.Use(auth.RequireAccessToken(deps.auth))
	{
		admin.GET("/report/summary", h.ReportSummary)
	}
}
