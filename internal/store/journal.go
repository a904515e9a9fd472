// Package store persists the cycle journal: one session per run or replay,
// one row per processed cycle.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresmejia3/rashplayer/internal/types"
)

var (
	ErrNoJournal      = errors.New("no journal configured")
	ErrUnknownSession = errors.New("unknown session")
	ErrUnsupportedDSN = errors.New("unsupported journal DSN")
)

// Session summarizes one journaled run.
type Session struct {
	ID        string
	Profile   string
	Source    string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open

	Cycles    int64
	Committed int64
	AvgTotal  time.Duration
	MaxTotal  time.Duration
}

func (s Session) Open() bool { return s.EndedAt.IsZero() }

// Journal is the cycle journal. Implementations must allow RecordCycle from
// one goroutine while another lists sessions.
type Journal interface {
	CreateSession(ctx context.Context, profile, source string) (string, error)
	EndSession(ctx context.Context, id string) error
	RecordCycle(ctx context.Context, session string, rec types.CycleRecord) error
	ListSessions(ctx context.Context) ([]Session, error)
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open picks a backend from the DSN: postgres:// and postgresql:// URLs go
// to PostgreSQL, sqlite://<path> or a bare file path to SQLite.
func Open(ctx context.Context, dsn string) (Journal, error) {
	switch {
	case dsn == "":
		return nil, ErrNoJournal
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, dsn)
	default:
		return NewSQLite(dsn)
	}
}
