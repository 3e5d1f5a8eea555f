package router

import (
	"net/http"

	"github.com/sendiq/sendiq/internal/auth"
	"github.com/sendiq/sendiq/internal/handler"
	"github.com/sendiq/sendiq/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, tokens *auth.APITokens, allowedOrigins []string, sendLimit middleware.RateLimitConfig) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"SendIQ API v1","version":"` + handler.Version + `"}`))
	})

	authMw := mw.Auth(tokens)
	sendRateLimit := mw.RateLimit(sendLimit)

	// Scheduled sends
	mux.Handle("POST /api/v1/scheduled", authMw(http.HandlerFunc(h.ScheduleSend)))
	mux.Handle("GET /api/v1/scheduled", authMw(http.HandlerFunc(h.ListScheduled)))
	mux.Handle("DELETE /api/v1/scheduled", authMw(http.HandlerFunc(h.CancelScheduled)))

	// Immediate mass send
	mux.Handle("POST /api/v1/send", authMw(sendRateLimit(http.HandlerFunc(h.SendNow))))

	// Mailbox authorization
	mux.Handle("POST /api/v1/authorize", authMw(http.HandlerFunc(h.Authorize)))
	mux.Handle("GET /api/v1/authorize/url", authMw(http.HandlerFunc(h.ConsentURL)))
	mux.Handle("POST /api/v1/authorize/callback", authMw(http.HandlerFunc(h.ConsentCallback)))
	mux.Handle("GET /api/v1/account", authMw(http.HandlerFunc(h.Account)))

	// Draft cleanup
	mux.Handle("POST /api/v1/drafts/delete-recent", authMw(http.HandlerFunc(h.DeleteRecentDraft)))
	mux.Handle("POST /api/v1/drafts/delete-matching", authMw(http.HandlerFunc(h.DeleteMatchingDraft)))

	// Preferences and history
	mux.Handle("GET /api/v1/activity", authMw(http.HandlerFunc(h.RecentActivity)))
	mux.Handle("GET /api/v1/settings", authMw(http.HandlerFunc(h.GetSettings)))
	mux.Handle("PUT /api/v1/settings", authMw(http.HandlerFunc(h.UpdateSettings)))

	// Event stream
	mux.Handle("GET /api/v1/events", authMw(http.HandlerFunc(h.Events)))

	// Apply middleware stack
	var handler http.Handler = mux

	handler = mw.CORS(allowedOrigins)(handler)

	// Security headers
	handler = mw.SecurityHeaders(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Timing
	handler = mw.Timing(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
