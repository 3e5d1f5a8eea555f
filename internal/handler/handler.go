package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/events"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/service"
)

// HealthChecker is a dependency probed by the health endpoints
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	log          *logger.Logger
	cfg          *config.Config
	checks       map[string]HealthChecker
	schedulerSvc *service.SchedulerService
	massSendSvc  *service.MassSendService
	draftSvc     *service.DraftService
	accountSvc   *service.AccountService
	hub          *events.Hub
}

// New creates a new Handler instance
func New(
	log *logger.Logger,
	cfg *config.Config,
	checks map[string]HealthChecker,
	schedulerSvc *service.SchedulerService,
	massSendSvc *service.MassSendService,
	draftSvc *service.DraftService,
	accountSvc *service.AccountService,
	hub *events.Hub,
) *Handler {
	return &Handler{
		log:          log,
		cfg:          cfg,
		checks:       checks,
		schedulerSvc: schedulerSvc,
		massSendSvc:  massSendSvc,
		draftSvc:     draftSvc,
		accountSvc:   accountSvc,
		hub:          hub,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func writeErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	resp := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
	if details != nil {
		resp["error"].(map[string]interface{})["details"] = details
	}
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		resp["error"].(map[string]interface{})["request_id"] = reqID
	}
	writeJSON(w, status, resp)
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
