package triage

import "context"

// Store is the persistence boundary for the triage domain. AgentRun and
// TriageAction rows are append-only; the only mutation a store performs
// on an action is the single pending -> resolved transition.
type Store interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id string) (*Patient, bool, error)
	ListPatients(ctx context.Context) ([]*Patient, error)

	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, bool, error)

	// ListMessages returns messages newest-first, each with its most
	// recently created triage action and agent run, if any.
	ListMessages(ctx context.Context) ([]*MessageView, error)
	CountMessages(ctx context.Context) (int, error)

	// RecordTriage atomically inserts the run and action and marks the
	// message triaged. Either all three writes land or none do.
	RecordTriage(ctx context.Context, run *AgentRun, action *TriageAction) error

	GetAction(ctx context.Context, id string) (*TriageAction, bool, error)

	// ResolveAction persists the resolved fields of action only if the
	// stored row is still pending. A resolved row yields ErrConflict, a
	// missing row ErrNotFound.
	ResolveAction(ctx context.Context, action *TriageAction) error
}
