package triage

import (
	"fmt"
	"time"
)

// Urgency is how quickly a message needs human attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Route is the internal queue a message is directed to.
type Route string

const (
	RouteBilling    Route = "billing"
	RouteScheduling Route = "scheduling"
	RouteClinical   Route = "clinical"
	RouteOther      Route = "other"
)

// MessageStatus tracks where a message is in the inbox workflow.
type MessageStatus string

const (
	// MessageNew means received, not yet triaged.
	MessageNew MessageStatus = "new"

	// MessageTriaged means at least one triage action exists.
	MessageTriaged MessageStatus = "triaged"

	// MessageClosed is terminal; set by an external workflow, never by this service.
	MessageClosed MessageStatus = "closed"
)

// ActionStatus tracks the human resolution of a triage action.
type ActionStatus string

const (
	// ActionPending means suggested by the agent, awaiting a human.
	ActionPending ActionStatus = "pending"

	// ActionConfirmed means a human accepted the suggestion. Terminal.
	ActionConfirmed ActionStatus = "confirmed"

	// ActionOverridden means a human replaced the verdict. Terminal.
	ActionOverridden ActionStatus = "overridden"
)

// ParseUrgency validates an urgency supplied by a caller.
func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(s) {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return Urgency(s), nil
	}
	return "", &ValidationError{Field: "urgency", Value: s}
}

// ParseRoute validates a route supplied by a caller.
func ParseRoute(s string) (Route, error) {
	switch Route(s) {
	case RouteBilling, RouteScheduling, RouteClinical, RouteOther:
		return Route(s), nil
	}
	return "", &ValidationError{Field: "route", Value: s}
}

// Patient is a known sender of messages. Messages may also arrive
// with no patient attached.
type Patient struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one inbound patient message.
type Message struct {
	ID         string        `json:"id"`
	PatientID  string        `json:"patient_id,omitempty"`
	Subject    string        `json:"subject"`
	Body       string        `json:"body"`
	Channel    string        `json:"channel"` // email/sms/portal/phone/...
	ReceivedAt time.Time     `json:"received_at"`
	Status     MessageStatus `json:"status"`
}

// AgentRun is the immutable audit record of one automated decision:
// which backend ran, the exact prompt, and the raw reply. Never updated
// or deleted after creation.
type AgentRun struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id"`
	ModelName   string    `json:"model_name"`
	Prompt      string    `json:"prompt"`
	RawResponse string    `json:"raw_response"`
	Confidence  *float64  `json:"confidence,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TriageAction is the agent's verdict on a message, mutable exactly once
// by confirm or override. It references the run that produced it.
type TriageAction struct {
	ID         string       `json:"id"`
	MessageID  string       `json:"message_id"`
	AgentRunID string       `json:"agent_run_id"`
	Urgency    Urgency      `json:"urgency"`
	Route      Route        `json:"route"`
	Summary    string       `json:"summary,omitempty"`
	Suggested  bool         `json:"suggested"`
	Status     ActionStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// Resolved reports whether the action has reached a terminal state.
func (a *TriageAction) Resolved() bool {
	return a.Status != ActionPending
}

// MessageView is a message enriched with its most recent triage pair,
// as served by the list endpoint.
type MessageView struct {
	Message
	LatestAction *TriageAction `json:"latest_triage,omitempty"`
	LatestRun    *AgentRun     `json:"latest_agent_run,omitempty"`
}

// ValidationError reports a malformed enum value in caller input.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}
