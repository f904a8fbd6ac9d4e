package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// CreateMessageInput is the caller-supplied portion of a new message.
type CreateMessageInput struct {
	Subject   string
	Body      string
	Channel   string
	PatientID string
}

// Outcome bundles everything one triage run produced.
type Outcome struct {
	Message *Message      `json:"message"`
	Action  *TriageAction `json:"triage"`
	Run     *AgentRun     `json:"agent_run"`
}

// OverrideInput is the human replacement verdict for an override.
type OverrideInput struct {
	Urgency string
	Route   string
	Summary string
}

// Service is the business boundary for triage operations.
type Service struct {
	store    Store
	backend  Backend
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new triage service. notifier may be nil.
func NewService(store Store, backend Backend, logger log.Logger, m *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	return &Service{
		store:    store,
		backend:  backend,
		logger:   logger,
		metrics:  m,
		notifier: notifier,
	}
}

// CreateMessage ingests an inbound patient message with status new.
func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return nil, &ValidationError{Field: "subject", Value: in.Subject}
	}
	if in.Channel == "" {
		in.Channel = "email"
	}
	if in.PatientID != "" {
		if _, ok, err := s.store.GetPatient(ctx, in.PatientID); err != nil {
			return nil, err
		} else if !ok {
			return nil, fmt.Errorf("patient %s: %w", in.PatientID, ErrNotFound)
		}
	}

	msg := &Message{
		ID:         ulid.Make().String(),
		PatientID:  in.PatientID,
		Subject:    in.Subject,
		Body:       in.Body,
		Channel:    in.Channel,
		ReceivedAt: time.Now().UTC(),
		Status:     MessageNew,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.metrics.MessagesTotal.WithLabelValues(msg.Channel).Inc()
	s.logger.Info(ctx, "message created", "message_id", msg.ID, "channel", msg.Channel)
	return msg, nil
}

// ListMessages returns all messages newest-first, enriched with their
// latest triage action and agent run.
func (s *Service) ListMessages(ctx context.Context) ([]*MessageView, error) {
	return s.store.ListMessages(ctx)
}

// GetMessage retrieves a single message by ID.
func (s *Service) GetMessage(ctx context.Context, id string) (*Message, bool, error) {
	return s.store.GetMessage(ctx, id)
}

// CreatePatient registers a patient record.
func (s *Service) CreatePatient(ctx context.Context, fullName, email string) (*Patient, error) {
	if strings.TrimSpace(fullName) == "" {
		return nil, &ValidationError{Field: "full_name", Value: fullName}
	}
	p := &Patient{
		ID:        ulid.Make().String(),
		FullName:  fullName,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPatients returns all patients.
func (s *Service) ListPatients(ctx context.Context) ([]*Patient, error) {
	return s.store.ListPatients(ctx)
}

// Run triages one message: it asks the decision backend for a verdict,
// then atomically records the AgentRun, a pending TriageAction, and the
// message's triaged status. A backend failure leaves no audit trail.
// Re-running on an already triaged message accumulates history.
func (s *Service) Run(ctx context.Context, messageID string) (*Outcome, error) {
	msg, ok, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	start := time.Now()
	decision, err := s.backend.Decide(ctx, msg.Subject, msg.Body)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			s.metrics.BackendErrors.Inc()
		}
		s.logger.Error(ctx, err, "decision backend failed", "message_id", messageID)
		return nil, err
	}
	s.metrics.DecisionDuration.WithLabelValues(decision.ModelName).Observe(time.Since(start).Seconds())

	now := time.Now().UTC()
	confidence := decision.Confidence

	run := &AgentRun{
		ID:          ulid.Make().String(),
		MessageID:   msg.ID,
		ModelName:   decision.ModelName,
		Prompt:      decision.Prompt,
		RawResponse: decision.RawResponse,
		Confidence:  &confidence,
		CreatedAt:   now,
	}

	summary := decision.Summary
	if summary == "" {
		summary = fmt.Sprintf("[%s] %s — %s", strings.ToUpper(string(decision.Urgency)), decision.Route, msg.Subject)
	}

	action := &TriageAction{
		ID:         ulid.Make().String(),
		MessageID:  msg.ID,
		AgentRunID: run.ID,
		Urgency:    decision.Urgency,
		Route:      decision.Route,
		Summary:    summary,
		Suggested:  true,
		Status:     ActionPending,
		CreatedAt:  now,
	}

	if err := s.store.RecordTriage(ctx, run, action); err != nil {
		return nil, err
	}
	msg.Status = MessageTriaged

	s.metrics.TriagesTotal.WithLabelValues(decision.ModelName, string(action.Route), string(action.Urgency)).Inc()
	s.metrics.TriageDuration.WithLabelValues(decision.ModelName).Observe(time.Since(start).Seconds())

	s.logger.Info(ctx, "message triaged",
		"message_id", msg.ID,
		"action_id", action.ID,
		"run_id", run.ID,
		"route", action.Route,
		"urgency", action.Urgency,
		"model", decision.ModelName,
	)

	if s.notifier != nil && action.Urgency == UrgencyHigh {
		go s.notify(context.WithoutCancel(ctx), msg, action)
	}

	return &Outcome{Message: msg, Action: action, Run: run}, nil
}

// Confirm accepts a pending suggestion as-is. Confirming an action that
// is already resolved is a conflict, not a re-apply.
func (s *Service) Confirm(ctx context.Context, actionID string) (*TriageAction, error) {
	action, ok, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("triage action %s: %w", actionID, ErrNotFound)
	}

	now := time.Now().UTC()
	action.Status = ActionConfirmed
	action.Suggested = false
	action.ResolvedAt = &now

	if err := s.resolve(ctx, action); err != nil {
		return nil, err
	}

	s.metrics.ResolutionsTotal.WithLabelValues(string(ActionConfirmed)).Inc()
	s.logger.Info(ctx, "triage confirmed", "action_id", action.ID, "message_id", action.MessageID)
	return action, nil
}

// Override replaces a pending suggestion with the human verdict. The
// AgentRun audit record is left untouched.
func (s *Service) Override(ctx context.Context, actionID string, in OverrideInput) (*TriageAction, error) {
	urgency, err := ParseUrgency(in.Urgency)
	if err != nil {
		return nil, err
	}
	route, err := ParseRoute(in.Route)
	if err != nil {
		return nil, err
	}

	action, ok, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("triage action %s: %w", actionID, ErrNotFound)
	}

	now := time.Now().UTC()
	action.Urgency = urgency
	action.Route = route
	action.Summary = in.Summary
	action.Status = ActionOverridden
	action.Suggested = false
	action.ResolvedAt = &now

	if err := s.resolve(ctx, action); err != nil {
		return nil, err
	}

	s.metrics.ResolutionsTotal.WithLabelValues(string(ActionOverridden)).Inc()
	s.logger.Info(ctx, "triage overridden",
		"action_id", action.ID,
		"message_id", action.MessageID,
		"route", action.Route,
		"urgency", action.Urgency,
	)
	return action, nil
}

func (s *Service) resolve(ctx context.Context, action *TriageAction) error {
	err := s.store.ResolveAction(ctx, action)
	if errors.Is(err, ErrConflict) {
		s.metrics.ConflictsTotal.Inc()
	}
	return err
}

func (s *Service) notify(ctx context.Context, msg *Message, action *TriageAction) {
	if err := s.notifier.Notify(ctx, msg, action); err != nil {
		s.logger.Error(ctx, err, "triage notification failed", "action_id", action.ID)
	}
}
