// Package triage classifies inbound patient messages and drives the
// triage lifecycle: backend decision, audit trail, human resolution.
package triage
