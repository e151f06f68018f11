package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/maniack/logpurge/internal/logging"
	"github.com/maniack/logpurge/internal/purge"
)

// PurgeRun is one finished purge pass.
type PurgeRun struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	StartedAt  time.Time `gorm:"index" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Dir     string `gorm:"index" json:"dir"`
	Trigger string `json:"trigger"` // startup, tick, manual
	Outcome string `gorm:"index" json:"outcome"`
	DryRun  bool   `json:"dry_run"`

	Scanned int    `json:"scanned"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

type Store struct {
	DB  *gorm.DB
	Dir string
}

// Open initializes the history database (SQLite or PostgreSQL based on DSN) and
// runs auto-migrations. dir labels the rows written through RecordPass.
// DSNs starting with postgres:// or postgresql://, or made of key=val pairs like
// host=/user=/dbname=, select Postgres; anything else is a SQLite path/DSN.
func Open(dsn, dir string) (*Store, error) {
	log := logging.L()
	gcfg := &gorm.Config{Logger: logging.NewGormLogger(log, 100*time.Millisecond)}

	isPg := isPostgresDSN(dsn)
	var db *gorm.DB
	var err error
	if isPg {
		log.Infof("Opening PostgreSQL history database...")
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
	} else {
		log.Infof("Opening SQLite history database (path: %s)...", dsn)
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if !isPg {
		// SQLite works best with a single writer connection
		sqlDB.SetMaxOpenConns(1)
	}

	if err = db.AutoMigrate(&PurgeRun{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &Store{DB: db, Dir: dir}, nil
}

func isPostgresDSN(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") {
		return true
	}
	return strings.Contains(s, "host=") || strings.Contains(s, "user=") || strings.Contains(s, "dbname=")
}

// RecordPass implements purge.Recorder.
func (s *Store) RecordPass(ctx context.Context, r purge.PassResult) error {
	run := PurgeRun{
		ID:         r.ID,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Dir:        s.Dir,
		Trigger:    string(r.Trigger),
		Outcome:    r.Outcome(),
		DryRun:     r.DryRun,
		Scanned:    r.Scanned,
		Deleted:    r.Deleted,
		Failed:     r.Failed,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return s.DB.WithContext(ctx).Create(&run).Error
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]PurgeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var runs []PurgeRun
	err := s.DB.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// PruneRuns deletes runs started before the given time.
func (s *Store) PruneRuns(before time.Time) (int64, error) {
	res := s.DB.Where("started_at < ?", before.UTC()).Delete(&PurgeRun{})
	return res.RowsAffected, res.Error
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
