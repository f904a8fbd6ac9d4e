// Package inboxapi exposes the triage lifecycle over HTTP.
package inboxapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/intake/internal/triage"
)

// TriageService defines the business operations inboxapi needs.
type TriageService interface {
	CreateMessage(ctx context.Context, in triage.CreateMessageInput) (*triage.Message, error)
	ListMessages(ctx context.Context) ([]*triage.MessageView, error)
	GetMessage(ctx context.Context, id string) (*triage.Message, bool, error)
	CreatePatient(ctx context.Context, fullName, email string) (*triage.Patient, error)
	ListPatients(ctx context.Context) ([]*triage.Patient, error)
	Run(ctx context.Context, messageID string) (*triage.Outcome, error)
	Confirm(ctx context.Context, actionID string) (*triage.TriageAction, error)
	Override(ctx context.Context, actionID string, in triage.OverrideInput) (*triage.TriageAction, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", a.handleCreateMessage)
		r.Get("/messages", a.handleListMessages)
		r.Get("/messages/{id}", a.handleGetMessage)
		r.Post("/patients", a.handleCreatePatient)
		r.Get("/patients", a.handleListPatients)
		r.Post("/triage", a.handleRunTriage)
		r.Post("/triage/{id}/confirm", a.handleConfirmTriage)
		r.Post("/triage/{id}/override", a.handleOverrideTriage)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to client-facing statuses. Not-Found,
// Validation, and Conflict are terminal 4xx outcomes; a backend outage
// is a retryable 502.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *triage.ValidationError

	switch {
	case errors.As(err, &ve):
		a.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ve.Error()})
	case errors.Is(err, triage.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, triage.ErrConflict):
		a.writeJSON(w, http.StatusConflict, map[string]string{"error": "triage action already resolved"})
	case errors.Is(err, triage.ErrBackendUnavailable):
		a.logger.Error(r.Context(), err, "decision backend unavailable")
		a.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "decision backend unavailable, retry later"})
	default:
		a.logger.Error(r.Context(), err, "request failed")
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
