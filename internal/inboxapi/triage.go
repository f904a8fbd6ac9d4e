package inboxapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/intake/internal/triage"
)

type runTriageRequest struct {
	MessageID string `json:"message_id"`
}

type overrideRequest struct {
	Urgency string `json:"urgency"`
	Route   string `json:"route"`
	Summary string `json:"summary"`
}

func (a *API) handleRunTriage(w http.ResponseWriter, r *http.Request) {
	var req runTriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.MessageID == "" {
		http.Error(w, `{"error":"message_id is required"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("intake.message.id", req.MessageID))

	outcome, err := a.svc.Run(r.Context(), req.MessageID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("intake.triage.route", string(outcome.Action.Route)),
		attribute.String("intake.triage.urgency", string(outcome.Action.Urgency)),
	)

	a.writeJSON(w, http.StatusOK, outcome)
}

func (a *API) handleConfirmTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	action, err := a.svc.Confirm(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, action)
}

func (a *API) handleOverrideTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	action, err := a.svc.Override(r.Context(), id, triage.OverrideInput{
		Urgency: req.Urgency,
		Route:   req.Route,
		Summary: req.Summary,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, action)
}
