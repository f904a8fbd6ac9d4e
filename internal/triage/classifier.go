package triage

import (
	"fmt"
	"strings"
)

// ClassifierResult is the output of the rule-based classifier.
type ClassifierResult struct {
	Urgency         Urgency
	Category        Route
	SuggestedAction string
	Confidence      float64
	RawReasoning    string
}

// Keyword families, scanned in priority order. A message matching both
// billing and clinical terms resolves to billing; the ordering is a
// product decision, not a derived optimum.
var (
	billingKeywords = []string{"bill", "billing", "invoice", "payment", "pay", "refund"}

	schedulingKeywords = []string{"appointment", "schedule", "reschedule", "booking", "cancel", "follow-up", "follow up"}

	clinicalKeywords = []string{"pain", "bleeding", "fever", "chest", "dizzy", "medication", "dose", "prescription"}

	highUrgencyKeywords = []string{
		"chest pain", "shortness of breath", "cant breathe", "confused",
		"fainted", "severe pain", "bleeding", "very sick",
	}

	mediumUrgencyKeywords = []string{
		"worsening", "getting worse", "not improving",
		"still in pain", "urgent", "today",
	}

	// Negated urgency mentions ("nothing urgent") must not trip the
	// urgency scan.
	negatedUrgency = []string{"nothing urgent", "not urgent", "no rush"}
)

// Classify maps message text to a triage verdict using case-insensitive
// keyword matching. It is a pure function: no I/O, no state, and it never
// fails — unmatched or empty input classifies as other/low.
//
// Category and urgency are independent passes over the same text, so a
// calm billing question and a frantic one route to the same queue at
// different urgencies.
func Classify(text string) ClassifierResult {
	lower := strings.ToLower(text)

	category := RouteOther
	switch {
	case containsAny(lower, billingKeywords):
		category = RouteBilling
	case containsAny(lower, schedulingKeywords):
		category = RouteScheduling
	case containsAny(lower, clinicalKeywords):
		category = RouteClinical
	}

	urgencyText := lower
	for _, p := range negatedUrgency {
		urgencyText = strings.ReplaceAll(urgencyText, p, "")
	}

	urgency := UrgencyLow
	switch {
	case containsAny(urgencyText, highUrgencyKeywords):
		urgency = UrgencyHigh
	case containsAny(urgencyText, mediumUrgencyKeywords):
		urgency = UrgencyMedium
	}

	confidence := 0.7
	if category != RouteOther {
		confidence = 0.9
	}

	return ClassifierResult{
		Urgency:         urgency,
		Category:        category,
		SuggestedAction: suggestedAction(category, urgency),
		Confidence:      confidence,
		RawReasoning:    fmt.Sprintf("Category=%s, Urgency=%s, Confidence=%.2f", category, urgency, confidence),
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// suggestedAction is a fixed lookup over (category, urgency).
func suggestedAction(category Route, urgency Urgency) string {
	switch category {
	case RouteBilling:
		return "Send billing clarification template / route to billing queue"
	case RouteScheduling:
		if urgency == UrgencyHigh {
			return "Call patient and offer earliest same-day / next-day slot"
		}
		return "Offer next available follow-up and confirm preferred time window"
	case RouteClinical:
		if urgency == UrgencyHigh {
			return "Escalate to on-call clinician immediately and advise patient to seek urgent care if needed"
		}
		return "Route to clinician for review within 24-48 hours"
	default:
		return "Route to general admin queue for manual review"
	}
}
