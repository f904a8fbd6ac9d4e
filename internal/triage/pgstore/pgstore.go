// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/intake/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/intake/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage entities in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema over the given pool and returns a ready Store.
// The pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const messageColumns = `id, patient_id, subject, body, channel, received_at, status`
const actionColumns = `id, message_id, agent_run_id, urgency, route, summary, suggested, status, created_at, resolved_at`
const runColumns = `id, message_id, model_name, prompt, raw_response, confidence, created_at`

// CreatePatient inserts a patient row.
func (s *Store) CreatePatient(ctx context.Context, p *triage.Patient) error {
	ctx, span := s.startSpan(ctx, "pgstore.CreatePatient", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO patients (id, full_name, email, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.FullName, nullIfEmpty(p.Email), p.CreatedAt,
	)
	if err != nil {
		return s.fail(span, fmt.Errorf("insert patient: %w", err))
	}
	return nil
}

// GetPatient retrieves a patient by ID.
func (s *Store) GetPatient(ctx context.Context, id string) (*triage.Patient, bool, error) {
	ctx, span := s.startSpan(ctx, "pgstore.GetPatient", "SELECT")
	defer span.End()

	var (
		p     triage.Patient
		email *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, email, created_at FROM patients WHERE id = $1`, id,
	).Scan(&p.ID, &p.FullName, &email, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, s.fail(span, fmt.Errorf("scan patient: %w", err))
	}
	if email != nil {
		p.Email = *email
	}
	return &p, true, nil
}

// ListPatients returns all patients, newest first.
func (s *Store) ListPatients(ctx context.Context) ([]*triage.Patient, error) {
	ctx, span := s.startSpan(ctx, "pgstore.ListPatients", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, full_name, email, created_at FROM patients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("query patients: %w", err))
	}
	defer rows.Close()

	var out []*triage.Patient
	for rows.Next() {
		var (
			p     triage.Patient
			email *string
		)
		if err := rows.Scan(&p.ID, &p.FullName, &email, &p.CreatedAt); err != nil {
			return nil, s.fail(span, fmt.Errorf("scan patient: %w", err))
		}
		if email != nil {
			p.Email = *email
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(span, fmt.Errorf("iterate patients: %w", err))
	}
	return out, nil
}

// CreateMessage inserts a message row.
func (s *Store) CreateMessage(ctx context.Context, m *triage.Message) error {
	ctx, span := s.startSpan(ctx, "pgstore.CreateMessage", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, nullIfEmpty(m.PatientID), m.Subject, m.Body, m.Channel, m.ReceivedAt, string(m.Status),
	)
	if err != nil {
		return s.fail(span, fmt.Errorf("insert message: %w", err))
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*triage.Message, bool, error) {
	ctx, span := s.startSpan(ctx, "pgstore.GetMessage", "SELECT")
	defer span.End()

	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, false, s.fail(span, err)
	}
	if m == nil {
		return nil, false, nil
	}
	return m, true, nil
}

// ListMessages returns messages newest-first, each joined with its most
// recently created triage action and agent run.
func (s *Store) ListMessages(ctx context.Context) ([]*triage.MessageView, error) {
	ctx, span := s.startSpan(ctx, "pgstore.ListMessages", "SELECT")
	defer span.End()

	query := `SELECT
		m.id, m.patient_id, m.subject, m.body, m.channel, m.received_at, m.status,
		a.id, a.message_id, a.agent_run_id, a.urgency, a.route, a.summary, a.suggested, a.status, a.created_at, a.resolved_at,
		r.id, r.message_id, r.model_name, r.prompt, r.raw_response, r.confidence, r.created_at
	FROM messages m
	LEFT JOIN LATERAL (
		SELECT ` + actionColumns + ` FROM triage_actions
		WHERE message_id = m.id ORDER BY created_at DESC, id DESC LIMIT 1
	) a ON TRUE
	LEFT JOIN LATERAL (
		SELECT ` + runColumns + ` FROM agent_runs
		WHERE message_id = m.id ORDER BY created_at DESC, id DESC LIMIT 1
	) r ON TRUE
	ORDER BY m.received_at DESC, m.id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("query messages: %w", err))
	}
	defer rows.Close()

	var out []*triage.MessageView
	for rows.Next() {
		view, err := scanMessageView(rows)
		if err != nil {
			return nil, s.fail(span, err)
		}
		out = append(out, view)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(span, fmt.Errorf("iterate messages: %w", err))
	}
	return out, nil
}

// CountMessages returns the number of stored messages.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	ctx, span := s.startSpan(ctx, "pgstore.CountMessages", "SELECT")
	defer span.End()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, s.fail(span, fmt.Errorf("count messages: %w", err))
	}
	return n, nil
}

// RecordTriage inserts the agent run and triage action and marks the
// message triaged, in one transaction.
func (s *Store) RecordTriage(ctx context.Context, run *triage.AgentRun, action *triage.TriageAction) error {
	ctx, span := s.startSpan(ctx, "pgstore.RecordTriage", "INSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	tag, err := tx.Exec(ctx,
		`UPDATE messages SET status = $2 WHERE id = $1`,
		run.MessageID, string(triage.MessageTriaged),
	)
	if err != nil {
		return s.fail(span, fmt.Errorf("update message status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return triage.ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO agent_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.MessageID, run.ModelName, run.Prompt, run.RawResponse, run.Confidence, run.CreatedAt,
	)
	if err != nil {
		return s.fail(span, fmt.Errorf("insert agent run: %w", err))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO triage_actions (`+actionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		action.ID, action.MessageID, action.AgentRunID, string(action.Urgency), string(action.Route),
		nullIfEmpty(action.Summary), action.Suggested, string(action.Status), action.CreatedAt, action.ResolvedAt,
	)
	if err != nil {
		return s.fail(span, fmt.Errorf("insert triage action: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return s.fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetAction retrieves a triage action by ID.
func (s *Store) GetAction(ctx context.Context, id string) (*triage.TriageAction, bool, error) {
	ctx, span := s.startSpan(ctx, "pgstore.GetAction", "SELECT")
	defer span.End()

	a, err := scanAction(s.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM triage_actions WHERE id = $1`, id))
	if err != nil {
		return nil, false, s.fail(span, err)
	}
	if a == nil {
		return nil, false, nil
	}
	return a, true, nil
}

// ResolveAction applies the pending -> resolved transition with an
// optimistic status check. Of two concurrent resolvers exactly one
// matches the WHERE clause; the other gets ErrConflict.
func (s *Store) ResolveAction(ctx context.Context, action *triage.TriageAction) error {
	ctx, span := s.startSpan(ctx, "pgstore.ResolveAction", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE triage_actions
		 SET urgency = $2, route = $3, summary = $4, suggested = $5, status = $6, resolved_at = $7
		 WHERE id = $1 AND status = $8`,
		action.ID, string(action.Urgency), string(action.Route), nullIfEmpty(action.Summary),
		action.Suggested, string(action.Status), action.ResolvedAt, string(triage.ActionPending),
	)
	if err != nil {
		return s.fail(span, fmt.Errorf("resolve action: %w", err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM triage_actions WHERE id = $1)`, action.ID,
	).Scan(&exists); err != nil {
		return s.fail(span, fmt.Errorf("check action: %w", err))
	}
	if !exists {
		return triage.ErrNotFound
	}
	return triage.ErrConflict
}

func (s *Store) startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func (s *Store) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func scanMessage(row pgx.Row) (*triage.Message, error) {
	var (
		m         triage.Message
		patientID *string
		status    string
	)
	err := row.Scan(&m.ID, &patientID, &m.Subject, &m.Body, &m.Channel, &m.ReceivedAt, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if patientID != nil {
		m.PatientID = *patientID
	}
	m.Status = triage.MessageStatus(status)
	return &m, nil
}

func scanAction(row pgx.Row) (*triage.TriageAction, error) {
	var (
		a       triage.TriageAction
		urgency string
		route   string
		summary *string
		status  string
	)
	err := row.Scan(&a.ID, &a.MessageID, &a.AgentRunID, &urgency, &route, &summary,
		&a.Suggested, &status, &a.CreatedAt, &a.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan action: %w", err)
	}
	a.Urgency = triage.Urgency(urgency)
	a.Route = triage.Route(route)
	a.Status = triage.ActionStatus(status)
	if summary != nil {
		a.Summary = *summary
	}
	return &a, nil
}

//nolint:gocyclo // flat null-handling over a wide LATERAL join row
func scanMessageView(rows pgx.Rows) (*triage.MessageView, error) {
	var (
		view      triage.MessageView
		patientID *string
		msgStatus string

		aID, aMsgID, aRunID, aUrgency, aRoute, aSummary, aStatus *string
		aSuggested                                               *bool
		aCreatedAt, aResolvedAt                                  *time.Time

		rID, rMsgID, rModel, rPrompt, rRaw *string
		rConfidence                        *float64
		rCreatedAt                         *time.Time
	)

	err := rows.Scan(
		&view.ID, &patientID, &view.Subject, &view.Body, &view.Channel, &view.ReceivedAt, &msgStatus,
		&aID, &aMsgID, &aRunID, &aUrgency, &aRoute, &aSummary, &aSuggested, &aStatus, &aCreatedAt, &aResolvedAt,
		&rID, &rMsgID, &rModel, &rPrompt, &rRaw, &rConfidence, &rCreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan message view: %w", err)
	}

	if patientID != nil {
		view.PatientID = *patientID
	}
	view.Status = triage.MessageStatus(msgStatus)

	if aID != nil {
		action := &triage.TriageAction{
			ID:         *aID,
			MessageID:  *aMsgID,
			AgentRunID: *aRunID,
			Urgency:    triage.Urgency(*aUrgency),
			Route:      triage.Route(*aRoute),
			Suggested:  *aSuggested,
			Status:     triage.ActionStatus(*aStatus),
			CreatedAt:  *aCreatedAt,
			ResolvedAt: aResolvedAt,
		}
		if aSummary != nil {
			action.Summary = *aSummary
		}
		view.LatestAction = action
	}

	if rID != nil {
		view.LatestRun = &triage.AgentRun{
			ID:          *rID,
			MessageID:   *rMsgID,
			ModelName:   *rModel,
			Prompt:      *rPrompt,
			RawResponse: *rRaw,
			Confidence:  rConfidence,
			CreatedAt:   *rCreatedAt,
		}
	}

	return &view, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
