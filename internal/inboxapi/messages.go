package inboxapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/intake/internal/triage"
)

type createMessageRequest struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Channel   string `json:"channel"`
	PatientID string `json:"patient_id"`
}

func (a *API) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	msg, err := a.svc.CreateMessage(r.Context(), triage.CreateMessageInput{
		Subject:   req.Subject,
		Body:      req.Body,
		Channel:   req.Channel,
		PatientID: req.PatientID,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, msg)
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	views, err := a.svc.ListMessages(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []*triage.MessageView{}
	}
	a.writeJSON(w, http.StatusOK, views)
}

func (a *API) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, ok, err := a.svc.GetMessage(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, msg)
}

type createPatientRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

func (a *API) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	p, err := a.svc.CreatePatient(r.Context(), req.FullName, req.Email)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := a.svc.ListPatients(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if patients == nil {
		patients = []*triage.Patient{}
	}
	a.writeJSON(w, http.StatusOK, patients)
}
