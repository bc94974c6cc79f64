// Package store persists test runs in a relational database. Runs are
// append-only; the row id defines the canonical order of each test's
// score series.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/regressoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides append-only persistence for test runs. Reads may run
// concurrently with an append and observe either the pre- or post-append
// state, never a partial record.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Append records a run and returns its row id.
	Append(ctx context.Context, run *TestRun) (uint, error)

	// Query returns all runs for a test in insertion order, oldest
	// first. An unknown test name yields an empty slice. A limit > 0
	// keeps only the most recent runs (order preserved).
	Query(ctx context.Context, testName string, limit int) ([]TestRun, error)

	// ListTestNames returns the distinct test names with recorded runs.
	ListTestNames(ctx context.Context) ([]string, error)

	// LastRunTime returns the most recent run timestamp for a test, or
	// nil when the test has never run.
	LastRunTime(ctx context.Context, testName string) (*time.Time, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		// WAL lets analysis reads proceed while a result is being
		// appended; the busy timeout covers checkpoint stalls.
		dsn := s.cfg.SQLite.Path +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening results database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&TestRun{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Results database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Append records a run. The run's ID must be zero; reusing a row is a
// schema violation.
func (s *store) Append(ctx context.Context, run *TestRun) (uint, error) {
	if run.TestName == "" {
		return 0, fmt.Errorf("appending run: test name is required")
	}

	if !ValidStatus(run.Status) {
		return 0, fmt.Errorf("appending run: invalid status %q", run.Status)
	}

	if run.ID != 0 {
		return 0, fmt.Errorf("appending run: row id must not be set")
	}

	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return 0, fmt.Errorf("appending run: %w", err)
	}

	s.log.WithField("test", run.TestName).
		WithField("run_id", run.ID).
		Debug("Run appended")

	return run.ID, nil
}

// Query returns all runs for a test in insertion order, oldest first.
func (s *store) Query(
	ctx context.Context, testName string, limit int,
) ([]TestRun, error) {
	runs := []TestRun{}

	q := s.db.WithContext(ctx).
		Where("test_name = ?", testName).
		Order("id ASC")

	if limit > 0 {
		// Keep the most recent rows but return them oldest first.
		var ids []uint
		if err := s.db.WithContext(ctx).
			Model(&TestRun{}).
			Where("test_name = ?", testName).
			Order("id DESC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return nil, fmt.Errorf("querying runs: %w", err)
		}

		if len(ids) == 0 {
			return runs, nil
		}

		q = s.db.WithContext(ctx).
			Where("id IN ?", ids).
			Order("id ASC")
	}

	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	return runs, nil
}

// ListTestNames returns the distinct test names with recorded runs.
func (s *store) ListTestNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&TestRun{}).
		Distinct("test_name").
		Order("test_name ASC").
		Pluck("test_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing test names: %w", err)
	}

	return names, nil
}

// LastRunTime returns the most recent run timestamp for a test.
func (s *store) LastRunTime(
	ctx context.Context, testName string,
) (*time.Time, error) {
	var run TestRun

	err := s.db.WithContext(ctx).
		Where("test_name = ?", testName).
		Order("id DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting last run time: %w", err)
	}

	t := run.Timestamp

	return &t, nil
}
