package triage

import "context"

// Notifier receives newly suggested triage actions that need fast human
// attention. Delivery is best-effort; failures are logged, never
// surfaced to the triage caller.
type Notifier interface {
	Notify(ctx context.Context, msg *Message, action *TriageAction) error
}
