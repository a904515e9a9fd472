package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/rashplayer/internal/types"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type sessionRow struct {
	ID        string `gorm:"column:id;primaryKey"`
	Profile   string `gorm:"column:profile;not null"`
	Source    string `gorm:"column:source;not null;default:''"`
	StartedAt int64  `gorm:"column:started_at;not null;default:0"`
	EndedAt   int64  `gorm:"column:ended_at;not null;default:0"`
}

func (sessionRow) TableName() string { return "sessions" }

type cycleRow struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID   string `gorm:"column:session_id;not null;index"`
	FrameNumber int64  `gorm:"column:frame_number;not null"`
	State       string `gorm:"column:state;not null"`
	Action      string `gorm:"column:action;not null"`
	Committed   bool   `gorm:"column:committed;not null"`
	Results     int    `gorm:"column:results;not null"`
	Found       int    `gorm:"column:found;not null"`
	VisionNs    int64  `gorm:"column:vision_ns;not null"`
	BrainNs     int64  `gorm:"column:brain_ns;not null"`
	TotalNs     int64  `gorm:"column:total_ns;not null"`
	RecordedAt  int64  `gorm:"column:recorded_at;not null"`
}

func (cycleRow) TableName() string { return "cycles" }

// SQLite is the single-file journal, opened through gorm on the pure-Go
// modernc driver.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, ErrNoJournal
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := gdb.Exec(`PRAGMA journal_mode=WAL;`).Error; err != nil {
		return nil, err
	}
	if err := gdb.Exec(`PRAGMA busy_timeout=5000;`).Error; err != nil {
		return nil, err
	}
	if err := gdb.AutoMigrate(&sessionRow{}, &cycleRow{}); err != nil {
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &SQLite{db: gdb}, nil
}

func (s *SQLite) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) CreateSession(ctx context.Context, profile, source string) (string, error) {
	row := sessionRow{
		ID:        uuid.NewString(),
		Profile:   profile,
		Source:    source,
		StartedAt: time.Now().UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func (s *SQLite) EndSession(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", id).
		Update("ended_at", time.Now().UnixNano())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

func (s *SQLite) RecordCycle(ctx context.Context, session string, rec types.CycleRecord) error {
	row := cycleRow{
		SessionID:   session,
		FrameNumber: int64(rec.FrameNumber),
		State:       rec.State.String(),
		Action:      rec.Action.Kind.String(),
		Committed:   rec.Committed,
		Results:     rec.Results,
		Found:       rec.Found,
		VisionNs:    rec.VisionLatency.Nanoseconds(),
		BrainNs:     rec.BrainLatency.Nanoseconds(),
		TotalNs:     rec.TotalLatency.Nanoseconds(),
		RecordedAt:  rec.At.UnixNano(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

type sessionSummary struct {
	sessionRow
	Cycles    int64
	Committed int64
	AvgTotal  float64
	MaxTotal  int64
}

func (s *SQLite) ListSessions(ctx context.Context) ([]Session, error) {
	var rows []sessionSummary
	err := s.db.WithContext(ctx).Raw(`
		SELECT s.id, s.profile, s.source, s.started_at, s.ended_at,
			COUNT(c.id) AS cycles,
			COALESCE(SUM(CASE WHEN c.committed THEN 1 ELSE 0 END), 0) AS committed,
			COALESCE(AVG(c.total_ns), 0) AS avg_total,
			COALESCE(MAX(c.total_ns), 0) AS max_total
		FROM sessions s
		LEFT JOIN cycles c ON c.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		sess := Session{
			ID:        r.ID,
			Profile:   r.Profile,
			Source:    r.Source,
			StartedAt: time.Unix(0, r.StartedAt),
			Cycles:    r.Cycles,
			Committed: r.Committed,
			AvgTotal:  time.Duration(r.AvgTotal),
			MaxTotal:  time.Duration(r.MaxTotal),
		}
		if r.EndedAt != 0 {
			sess.EndedAt = time.Unix(0, r.EndedAt)
		}
		out = append(out, sess)
	}
	return out, nil
}

// Reset drops all journal tables. The next NewSQLite recreates them.
func (s *SQLite) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Migrator().DropTable(&cycleRow{}, &sessionRow{})
}
