package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the PostgreSQL journal. The pool lets the journal goroutine
// write while the CLI reads.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			profile TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS cycles (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			frame_number BIGINT NOT NULL,
			state TEXT NOT NULL,
			action TEXT NOT NULL,
			committed BOOLEAN NOT NULL,
			results INT NOT NULL,
			found INT NOT NULL,
			vision_ns BIGINT NOT NULL,
			brain_ns BIGINT NOT NULL,
			total_ns BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS cycles_session_id_idx ON cycles (session_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

func (p *Postgres) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

func (p *Postgres) CreateSession(ctx context.Context, profile, source string) (string, error) {
	id := uuid.New()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sessions (id, profile, source, started_at) VALUES ($1, $2, $3, NOW())`,
		id, profile, source)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (p *Postgres) EndSession(ctx context.Context, id string) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET ended_at = NOW() WHERE id = $1`, sid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

func (p *Postgres) RecordCycle(ctx context.Context, session string, rec types.CycleRecord) error {
	sid, err := uuid.Parse(session)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, session)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO cycles (session_id, frame_number, state, action, committed, results, found,
			vision_ns, brain_ns, total_ns, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sid, int64(rec.FrameNumber), rec.State.String(), rec.Action.Kind.String(), rec.Committed,
		rec.Results, rec.Found, rec.VisionLatency.Nanoseconds(), rec.BrainLatency.Nanoseconds(),
		rec.TotalLatency.Nanoseconds(), rec.At)
	return err
}

// ListSessions returns every session, newest first, with cycle aggregates.
func (p *Postgres) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT s.id::text, s.profile, s.source, s.started_at, s.ended_at,
			COUNT(c.id),
			COUNT(c.id) FILTER (WHERE c.committed),
			COALESCE(AVG(c.total_ns), 0)::BIGINT,
			COALESCE(MAX(c.total_ns), 0)
		FROM sessions s
		LEFT JOIN cycles c ON c.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var ended *time.Time
		var avg, worst int64
		if err := rows.Scan(&s.ID, &s.Profile, &s.Source, &s.StartedAt, &ended,
			&s.Cycles, &s.Committed, &avg, &worst); err != nil {
			return nil, err
		}
		if ended != nil {
			s.EndedAt = *ended
		}
		s.AvgTotal, s.MaxTotal = time.Duration(avg), time.Duration(worst)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CycleCount returns the number of cycles journaled for a session.
func (p *Postgres) CycleCount(ctx context.Context, session string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cycles WHERE session_id = $1::uuid`, session).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Reset drops all journal tables. The next NewPostgres recreates them.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		DROP TABLE IF EXISTS cycles CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
	`)
	return err
}
