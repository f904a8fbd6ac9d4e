// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/intake/internal/triage"
)

// Store holds triage entities in memory. Suitable for dev/testing.
// All reads and writes copy, so callers never share pointers with the
// store.
type Store struct {
	mu       sync.RWMutex
	patients map[string]*triage.Patient
	messages map[string]*triage.Message
	runs     map[string]*triage.AgentRun
	actions  map[string]*triage.TriageAction
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		patients: make(map[string]*triage.Patient),
		messages: make(map[string]*triage.Message),
		runs:     make(map[string]*triage.AgentRun),
		actions:  make(map[string]*triage.TriageAction),
	}
}

// CreatePatient stores a copy of the patient.
func (s *Store) CreatePatient(_ context.Context, p *triage.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

// GetPatient retrieves a patient by ID. Returns a copy.
func (s *Store) GetPatient(_ context.Context, id string) (*triage.Patient, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

// ListPatients returns all patients ordered by creation time, newest first.
func (s *Store) ListPatients(_ context.Context) ([]*triage.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CreateMessage stores a copy of the message.
func (s *Store) CreateMessage(_ context.Context, m *triage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

// GetMessage retrieves a message by ID. Returns a copy.
func (s *Store) GetMessage(_ context.Context, id string) (*triage.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false, nil
	}
	cp := *m
	return &cp, true, nil
}

// ListMessages returns messages newest-first with their latest triage pair.
func (s *Store) ListMessages(_ context.Context) ([]*triage.MessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*triage.MessageView, 0, len(s.messages))
	for _, m := range s.messages {
		view := &triage.MessageView{Message: *m}
		if a := s.latestAction(m.ID); a != nil {
			cp := *a
			view.LatestAction = &cp
		}
		if r := s.latestRun(m.ID); r != nil {
			cp := *r
			view.LatestRun = &cp
		}
		out = append(out, view)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.After(out[j].ReceivedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CountMessages returns the number of stored messages.
func (s *Store) CountMessages(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}

// RecordTriage inserts the run and action and marks the message triaged,
// all under one lock so readers never observe a partial write.
func (s *Store) RecordTriage(_ context.Context, run *triage.AgentRun, action *triage.TriageAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[run.MessageID]
	if !ok {
		return triage.ErrNotFound
	}

	runCp := *run
	actionCp := *action
	s.runs[run.ID] = &runCp
	s.actions[action.ID] = &actionCp
	msg.Status = triage.MessageTriaged
	return nil
}

// GetAction retrieves a triage action by ID. Returns a copy.
func (s *Store) GetAction(_ context.Context, id string) (*triage.TriageAction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// ResolveAction applies the pending -> resolved transition. The check
// and the write happen under the same lock, so exactly one of two
// concurrent resolvers wins.
func (s *Store) ResolveAction(_ context.Context, action *triage.TriageAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.actions[action.ID]
	if !ok {
		return triage.ErrNotFound
	}
	if stored.Status != triage.ActionPending {
		return triage.ErrConflict
	}

	stored.Urgency = action.Urgency
	stored.Route = action.Route
	stored.Summary = action.Summary
	stored.Status = action.Status
	stored.Suggested = action.Suggested
	stored.ResolvedAt = action.ResolvedAt
	return nil
}

// latestAction returns the newest action for a message. Callers hold s.mu.
func (s *Store) latestAction(messageID string) *triage.TriageAction {
	var latest *triage.TriageAction
	for _, a := range s.actions {
		if a.MessageID != messageID {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) ||
			(a.CreatedAt.Equal(latest.CreatedAt) && a.ID > latest.ID) {
			latest = a
		}
	}
	return latest
}

// latestRun returns the newest agent run for a message. Callers hold s.mu.
func (s *Store) latestRun(messageID string) *triage.AgentRun {
	var latest *triage.AgentRun
	for _, r := range s.runs {
		if r.MessageID != messageID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) ||
			(r.CreatedAt.Equal(latest.CreatedAt) && r.ID > latest.ID) {
			latest = r
		}
	}
	return latest
}
