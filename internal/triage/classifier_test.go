package triage

import (
	"strings"
	"testing"
)

func TestClassify_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		text         string
		wantCategory Route
		wantUrgency  Urgency
		wantConf     float64
	}{
		{
			name:         "billing refund",
			text:         "I was charged twice, please refund",
			wantCategory: RouteBilling,
			wantUrgency:  UrgencyLow,
			wantConf:     0.9,
		},
		{
			name:         "severe clinical",
			text:         "severe chest pain and bleeding",
			wantCategory: RouteClinical,
			wantUrgency:  UrgencyHigh,
			wantConf:     0.9,
		},
		{
			name:         "nothing matches",
			text:         "just checking in, nothing urgent",
			wantCategory: RouteOther,
			wantUrgency:  UrgencyLow,
			wantConf:     0.7,
		},
		{
			name:         "scheduling",
			text:         "I need to reschedule my appointment",
			wantCategory: RouteScheduling,
			wantUrgency:  UrgencyLow,
			wantConf:     0.9,
		},
		{
			name:         "medium urgency scheduling",
			text:         "can I get an appointment today",
			wantCategory: RouteScheduling,
			wantUrgency:  UrgencyMedium,
			wantConf:     0.9,
		},
		{
			name:         "case insensitive",
			text:         "QUESTION ABOUT MY INVOICE",
			wantCategory: RouteBilling,
			wantUrgency:  UrgencyLow,
			wantConf:     0.9,
		},
		{
			name:         "empty input",
			text:         "",
			wantCategory: RouteOther,
			wantUrgency:  UrgencyLow,
			wantConf:     0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.text)
			if got.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", got.Category, tt.wantCategory)
			}
			if got.Urgency != tt.wantUrgency {
				t.Errorf("urgency = %q, want %q", got.Urgency, tt.wantUrgency)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestClassify_BillingBeatsClinical(t *testing.T) {
	t.Parallel()

	// Category priority is fixed: billing wins even when clinical
	// keywords are present.
	got := Classify("billing question about my pain medication")
	if got.Category != RouteBilling {
		t.Errorf("category = %q, want %q", got.Category, RouteBilling)
	}
}

func TestClassify_UrgencyIndependentOfCategory(t *testing.T) {
	t.Parallel()

	// "urgent" raises urgency without touching the billing route.
	got := Classify("urgent billing issue with my invoice")
	if got.Category != RouteBilling {
		t.Errorf("category = %q, want %q", got.Category, RouteBilling)
	}
	if got.Urgency != UrgencyMedium {
		t.Errorf("urgency = %q, want %q", got.Urgency, UrgencyMedium)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	text := "worsening fever, need a follow-up and a refund"
	first := Classify(text)
	second := Classify(text)
	if first != second {
		t.Errorf("Classify not deterministic: %+v vs %+v", first, second)
	}
}

func TestClassify_AlwaysValid(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   \n\t  ",
		strings.Repeat("x", 10_000),
		"ünïcödé ☺ bleeding",
		"chest pain",
	}

	for _, text := range inputs {
		got := Classify(text)
		if _, err := ParseUrgency(string(got.Urgency)); err != nil {
			t.Errorf("Classify(%q) urgency %q invalid", text, got.Urgency)
		}
		if _, err := ParseRoute(string(got.Category)); err != nil {
			t.Errorf("Classify(%q) category %q invalid", text, got.Category)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("Classify(%q) confidence %v out of range", text, got.Confidence)
		}
		if got.SuggestedAction == "" {
			t.Errorf("Classify(%q) returned empty action", text)
		}
		if got.RawReasoning == "" {
			t.Errorf("Classify(%q) returned empty reasoning", text)
		}
	}
}

func TestClassify_Actions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		wantAction string
	}{
		{"I was charged twice, please refund", "billing queue"},
		{"severe chest pain and bleeding", "Escalate to on-call clinician"},
		{"chest pain, need an appointment today", "same-day"},
		{"random note", "general admin queue"},
	}

	for _, tt := range tests {
		got := Classify(tt.text)
		if !strings.Contains(got.SuggestedAction, tt.wantAction) {
			t.Errorf("Classify(%q) action = %q, want substring %q", tt.text, got.SuggestedAction, tt.wantAction)
		}
	}
}
