package triage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Decision is the uniform result of one backend invocation, regardless
// of which backend produced it. Prompt and RawResponse are retained
// verbatim for the audit trail.
type Decision struct {
	Urgency     Urgency
	Route       Route
	Confidence  float64
	Summary     string // empty when the backend offered none
	ModelName   string
	Prompt      string
	RawResponse string
}

// Backend is a decision-making strategy: deterministic rules today, a
// generative model tomorrow. Implementations must return either a valid
// Decision or an error; never a degraded mix of both.
type Backend interface {
	Decide(ctx context.Context, subject, body string) (*Decision, error)
}

// CompletionClient is the slice of an LLM client the Claude backend needs.
type CompletionClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const systemPrompt = "You are an AI triage assistant for a medical clinic."

// buildPrompt constructs the instruction prompt. It is built the same
// way for both backends so audit records stay format-consistent.
func buildPrompt(subject, body string) string {
	return fmt.Sprintf(
		"You are an AI triage assistant for a medical clinic.\n"+
			"Given an incoming patient message, respond in the following format:\n"+
			"urgency: low|medium|high\n"+
			"route: billing|scheduling|clinical|other\n"+
			"confidence: float between 0 and 1\n"+
			"summary: one-sentence summary of the situation\n\n"+
			"Subject: %s\n\n"+
			"Body:\n%s\n",
		subject, body,
	)
}

// parseReply extracts a verdict from free-text model output. It is
// deliberately tolerant: missing or malformed lines fall back to
// defaults (medium/clinical/0.7, summary = whole trimmed reply) and it
// never returns an error.
func parseReply(text string) (urgency Urgency, route Route, confidence float64, summary string) {
	urgency = UrgencyMedium
	route = RouteClinical
	confidence = 0.7
	summary = strings.TrimSpace(text)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "urgency"):
			switch {
			case strings.Contains(lower, "high"):
				urgency = UrgencyHigh
			case strings.Contains(lower, "low"):
				urgency = UrgencyLow
			default:
				urgency = UrgencyMedium
			}
		case strings.HasPrefix(lower, "route"):
			switch {
			case strings.Contains(lower, "billing"):
				route = RouteBilling
			case strings.Contains(lower, "scheduling"):
				route = RouteScheduling
			case strings.Contains(lower, "clinical"):
				route = RouteClinical
			default:
				route = RouteOther
			}
		case strings.HasPrefix(lower, "confidence"):
			for _, token := range strings.Fields(lower) {
				if f, err := strconv.ParseFloat(token, 64); err == nil {
					confidence = f
					break
				}
			}
		case strings.HasPrefix(lower, "summary"):
			if _, after, ok := strings.Cut(line, ":"); ok {
				summary = strings.TrimSpace(after)
			}
		}
	}
	return urgency, route, confidence, summary
}

// RuleBackend produces decisions from the deterministic classifier. The
// raw response mirrors the reply grammar the LLM path is instructed to
// use, so audit logs read the same either way.
type RuleBackend struct {
	modelName string
}

// NewRuleBackend creates a rule-based backend labelled with the given
// model name in audit records.
func NewRuleBackend(modelName string) *RuleBackend {
	return &RuleBackend{modelName: modelName}
}

// Decide implements Backend. It cannot fail.
func (b *RuleBackend) Decide(_ context.Context, subject, body string) (*Decision, error) {
	cr := Classify(subject + "\n\n" + body)

	raw := fmt.Sprintf(
		"urgency: %s\nroute: %s\nconfidence: %.2f\nsummary: %s\n",
		cr.Urgency, cr.Category, cr.Confidence, cr.SuggestedAction,
	)

	return &Decision{
		Urgency:     cr.Urgency,
		Route:       cr.Category,
		Confidence:  cr.Confidence,
		ModelName:   b.modelName,
		Prompt:      buildPrompt(subject, body),
		RawResponse: raw,
	}, nil
}

// ClaudeBackend asks an Anthropic model for a verdict and parses its
// free-text reply.
type ClaudeBackend struct {
	client    CompletionClient
	modelName string
}

// NewClaudeBackend creates an LLM-backed decision backend.
func NewClaudeBackend(client CompletionClient, modelName string) *ClaudeBackend {
	return &ClaudeBackend{client: client, modelName: modelName}
}

// Decide implements Backend. A transport, auth, or timeout failure is
// wrapped as ErrBackendUnavailable so callers can distinguish a
// retryable outage from a bad request; there is no silent fallback to
// the rule backend.
func (b *ClaudeBackend) Decide(ctx context.Context, subject, body string) (*Decision, error) {
	prompt := buildPrompt(subject, body)

	raw, err := b.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, b.modelName, err)
	}

	urgency, route, confidence, summary := parseReply(raw)

	return &Decision{
		Urgency:     urgency,
		Route:       route,
		Confidence:  confidence,
		Summary:     summary,
		ModelName:   b.modelName,
		Prompt:      prompt,
		RawResponse: raw,
	}, nil
}
