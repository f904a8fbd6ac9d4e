package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockStore is a map-backed Store for service tests. It records triage
// writes atomically under one lock, the way the real stores do.
type mockStore struct {
	mu       sync.Mutex
	patients map[string]*Patient
	messages map[string]*Message
	runs     map[string]*AgentRun
	actions  map[string]*TriageAction

	recordErr  error
	resolveErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		patients: make(map[string]*Patient),
		messages: make(map[string]*Message),
		runs:     make(map[string]*AgentRun),
		actions:  make(map[string]*TriageAction),
	}
}

func (s *mockStore) CreatePatient(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *mockStore) GetPatient(_ context.Context, id string) (*Patient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

func (s *mockStore) ListPatients(_ context.Context) ([]*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Patient, 0, len(s.patients))
	for _, p := range s.patients {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *mockStore) CreateMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *mockStore) GetMessage(_ context.Context, id string) (*Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false, nil
	}
	cp := *m
	return &cp, true, nil
}

func (s *mockStore) ListMessages(_ context.Context) ([]*MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MessageView, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, &MessageView{Message: *m})
	}
	return out, nil
}

func (s *mockStore) CountMessages(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages), nil
}

func (s *mockStore) RecordTriage(_ context.Context, run *AgentRun, action *TriageAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	msg, ok := s.messages[run.MessageID]
	if !ok {
		return ErrNotFound
	}
	msg.Status = MessageTriaged
	rc := *run
	ac := *action
	s.runs[run.ID] = &rc
	s.actions[action.ID] = &ac
	return nil
}

func (s *mockStore) GetAction(_ context.Context, id string) (*TriageAction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

func (s *mockStore) ResolveAction(_ context.Context, action *TriageAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return s.resolveErr
	}
	stored, ok := s.actions[action.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != ActionPending {
		return ErrConflict
	}
	stored.Urgency = action.Urgency
	stored.Route = action.Route
	stored.Summary = action.Summary
	stored.Suggested = action.Suggested
	stored.Status = action.Status
	stored.ResolvedAt = action.ResolvedAt
	return nil
}

// unavailableBackend wraps ErrBackendUnavailable like the real client path.
type unavailableBackend struct{}

func (unavailableBackend) Decide(context.Context, string, string) (*Decision, error) {
	return nil, errors.Join(ErrBackendUnavailable, errors.New("dial tcp: connection refused"))
}

// summaryBackend returns a fixed decision with a backend-supplied summary.
type summaryBackend struct {
	decision Decision
}

func (b summaryBackend) Decide(context.Context, string, string) (*Decision, error) {
	d := b.decision
	return &d, nil
}

// recordingNotifier captures high-urgency notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	notified []string
	done     chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, _ *Message, action *TriageAction) error {
	n.mu.Lock()
	n.notified = append(n.notified, action.ID)
	n.mu.Unlock()
	if n.done != nil {
		close(n.done)
	}
	return nil
}

func newTestService(store Store, backend Backend, notifier Notifier) *Service {
	return NewService(store, backend, nil, nil, notifier)
}

func seedMessage(t *testing.T, store *mockStore, subject, body string) *Message {
	t.Helper()
	msg := &Message{
		ID:         "msg-" + subject,
		Subject:    subject,
		Body:       body,
		Channel:    "email",
		ReceivedAt: time.Now().UTC(),
		Status:     MessageNew,
	}
	if err := store.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return msg
}

func TestCreateMessage(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)

	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		Subject: "Billing question",
		Body:    "I was charged twice",
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if msg.ID == "" {
		t.Error("message ID not assigned")
	}
	if msg.Status != MessageNew {
		t.Errorf("status = %q, want %q", msg.Status, MessageNew)
	}
	if msg.Channel != "email" {
		t.Errorf("channel = %q, want default email", msg.Channel)
	}
	if msg.ReceivedAt.IsZero() || msg.ReceivedAt.Location() != time.UTC {
		t.Errorf("received_at not set in UTC: %v", msg.ReceivedAt)
	}

	if _, ok, _ := store.GetMessage(context.Background(), msg.ID); !ok {
		t.Error("message not persisted")
	}
}

func TestCreateMessage_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), NewRuleBackend("rules-v1"), nil)

	_, err := svc.CreateMessage(context.Background(), CreateMessageInput{Subject: "   "})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "subject" {
		t.Errorf("field = %q, want subject", verr.Field)
	}
}

func TestCreateMessage_UnknownPatient(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), NewRuleBackend("rules-v1"), nil)

	_, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		Subject:   "hello",
		PatientID: "no-such-patient",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRun_RuleBackend(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Billing question", "I was charged twice, please refund")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Message.Status != MessageTriaged {
		t.Errorf("message status = %q, want triaged", out.Message.Status)
	}
	if out.Action.Status != ActionPending {
		t.Errorf("action status = %q, want pending", out.Action.Status)
	}
	if !out.Action.Suggested {
		t.Error("action not marked suggested")
	}
	if out.Action.Route != RouteBilling {
		t.Errorf("route = %q, want billing", out.Action.Route)
	}
	if out.Action.AgentRunID != out.Run.ID {
		t.Errorf("action run reference %q does not match run %q", out.Action.AgentRunID, out.Run.ID)
	}
	if out.Run.Confidence == nil || *out.Run.Confidence != 0.9 {
		t.Errorf("run confidence = %v, want 0.9", out.Run.Confidence)
	}
	if out.Run.Prompt == "" || out.Run.RawResponse == "" {
		t.Error("run audit fields not populated")
	}

	// Rule backend supplies no summary, so the service synthesizes one
	// from the verdict and subject.
	want := "[LOW] billing — Billing question"
	if out.Action.Summary != want {
		t.Errorf("summary = %q, want %q", out.Action.Summary, want)
	}

	stored, _, _ := store.GetMessage(context.Background(), msg.ID)
	if stored.Status != MessageTriaged {
		t.Errorf("persisted status = %q, want triaged", stored.Status)
	}
}

func TestRun_BackendSummaryKept(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	backend := summaryBackend{decision: Decision{
		Urgency:     UrgencyHigh,
		Route:       RouteClinical,
		Confidence:  0.92,
		Summary:     "Patient reports chest pain, escalate.",
		ModelName:   "claude-sonnet-4-20250514",
		Prompt:      "p",
		RawResponse: "r",
	}}
	svc := newTestService(store, backend, nil)
	msg := seedMessage(t, store, "Chest pain", "severe chest pain")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Action.Summary != "Patient reports chest pain, escalate." {
		t.Errorf("summary = %q, want backend summary verbatim", out.Action.Summary)
	}
}

func TestRun_MessageNotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), NewRuleBackend("rules-v1"), nil)

	_, err := svc.Run(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRun_BackendFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, unavailableBackend{}, nil)
	msg := seedMessage(t, store, "hello", "body")

	_, err := svc.Run(context.Background(), msg.ID)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.runs) != 0 || len(store.actions) != 0 {
		t.Errorf("backend failure wrote %d runs, %d actions, want none", len(store.runs), len(store.actions))
	}
	if store.messages[msg.ID].Status != MessageNew {
		t.Errorf("message status = %q, want new", store.messages[msg.ID].Status)
	}
}

func TestRun_RepeatAccumulatesHistory(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "appointment", "need to reschedule")

	first, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.Action.ID == second.Action.ID {
		t.Error("second run reused the first action")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.runs) != 2 || len(store.actions) != 2 {
		t.Errorf("got %d runs, %d actions, want 2 each", len(store.runs), len(store.actions))
	}
}

func TestRun_HighUrgencyNotifies(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	notifier := &recordingNotifier{done: make(chan struct{})}
	svc := newTestService(store, NewRuleBackend("rules-v1"), notifier)
	msg := seedMessage(t, store, "Chest pain", "severe chest pain and bleeding")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Action.Urgency != UrgencyHigh {
		t.Fatalf("urgency = %q, want high", out.Action.Urgency)
	}

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never called for high urgency")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.notified) != 1 || notifier.notified[0] != out.Action.ID {
		t.Errorf("notified = %v, want [%s]", notifier.notified, out.Action.ID)
	}
}

func TestRun_LowUrgencyDoesNotNotify(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	notifier := &recordingNotifier{}
	svc := newTestService(store, NewRuleBackend("rules-v1"), notifier)
	msg := seedMessage(t, store, "Billing", "question about my invoice")

	if _, err := svc.Run(context.Background(), msg.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.notified) != 0 {
		t.Errorf("notifier called %d times for low urgency", len(notifier.notified))
	}
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Billing", "invoice question")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	action, err := svc.Confirm(context.Background(), out.Action.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if action.Status != ActionConfirmed {
		t.Errorf("status = %q, want confirmed", action.Status)
	}
	if action.Suggested {
		t.Error("confirmed action still marked suggested")
	}
	if action.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
	if action.Urgency != out.Action.Urgency || action.Route != out.Action.Route {
		t.Error("confirm changed the verdict")
	}
}

func TestConfirm_NotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMockStore(), NewRuleBackend("rules-v1"), nil)

	_, err := svc.Confirm(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConfirm_AlreadyResolved(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Billing", "invoice question")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), out.Action.ID); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}

	_, err = svc.Confirm(context.Background(), out.Action.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second Confirm err = %v, want ErrConflict", err)
	}
}

func TestOverride(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Billing", "invoice question")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	action, err := svc.Override(context.Background(), out.Action.ID, OverrideInput{
		Urgency: "high",
		Route:   "clinical",
		Summary: "Actually a medication concern, escalate.",
	})
	if err != nil {
		t.Fatalf("Override: %v", err)
	}

	if action.Status != ActionOverridden {
		t.Errorf("status = %q, want overridden", action.Status)
	}
	if action.Urgency != UrgencyHigh || action.Route != RouteClinical {
		t.Errorf("verdict = %s/%s, want high/clinical", action.Urgency, action.Route)
	}
	if action.Summary != "Actually a medication concern, escalate." {
		t.Errorf("summary = %q", action.Summary)
	}
	if action.Suggested {
		t.Error("overridden action still marked suggested")
	}
	if action.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	// The agent run audit record must survive the override untouched.
	store.mu.Lock()
	run := store.runs[out.Run.ID]
	store.mu.Unlock()
	if run == nil || run.RawResponse != out.Run.RawResponse {
		t.Error("override touched the agent run audit record")
	}
}

func TestOverride_Validation(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Billing", "invoice question")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	tests := []struct {
		name      string
		in        OverrideInput
		wantField string
	}{
		{"bad urgency", OverrideInput{Urgency: "critical", Route: "billing"}, "urgency"},
		{"bad route", OverrideInput{Urgency: "high", Route: "pharmacy"}, "route"},
		{"empty", OverrideInput{}, "urgency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Override(context.Background(), out.Action.ID, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}

	// Validation failures must not resolve the action.
	stored, _, _ := store.GetAction(context.Background(), out.Action.ID)
	if stored.Status != ActionPending {
		t.Errorf("action status = %q after failed overrides, want pending", stored.Status)
	}
}

func TestOverride_AlreadyResolved(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Billing", "invoice question")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := svc.Override(context.Background(), out.Action.ID, OverrideInput{Urgency: "low", Route: "other"}); err != nil {
		t.Fatalf("first Override: %v", err)
	}

	_, err = svc.Override(context.Background(), out.Action.ID, OverrideInput{Urgency: "high", Route: "clinical"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second Override err = %v, want ErrConflict", err)
	}
}

func TestCreatePatient(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)

	p, err := svc.CreatePatient(context.Background(), "Ada Lovelace", "ada@example.com")
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if p.ID == "" || p.CreatedAt.IsZero() {
		t.Error("patient fields not populated")
	}

	_, err = svc.CreatePatient(context.Background(), "  ", "")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "full_name" {
		t.Fatalf("err = %v, want full_name ValidationError", err)
	}
}

func TestCreateMessage_WithKnownPatient(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)

	p, err := svc.CreatePatient(context.Background(), "Ada Lovelace", "")
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		Subject:   "refill",
		PatientID: p.ID,
		Channel:   "portal",
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.PatientID != p.ID {
		t.Errorf("patient_id = %q, want %q", msg.PatientID, p.ID)
	}
	if msg.Channel != "portal" {
		t.Errorf("channel = %q, want portal", msg.Channel)
	}
}

func TestRun_SummarySynthesisFormat(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	svc := newTestService(store, NewRuleBackend("rules-v1"), nil)
	msg := seedMessage(t, store, "Chest pain after exercise", "severe chest pain and bleeding")

	out, err := svc.Run(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(out.Action.Summary, "[HIGH] clinical") {
		t.Errorf("summary = %q, want [HIGH] clinical prefix", out.Action.Summary)
	}
	if !strings.Contains(out.Action.Summary, msg.Subject) {
		t.Errorf("summary %q missing subject", out.Action.Summary)
	}
}
