package store

import (
	"time"
)

// Run status constants, recorded by the test body and never inferred.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// TestRun is one recorded execution of a functional test. The
// auto-incrementing ID is the canonical series axis: analysis walks runs
// in insertion order, not timestamp order, because timestamp skew across
// machines is expected.
type TestRun struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TestName      string    `gorm:"index;not null" json:"test_name"`
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
	LibraryCommit string    `json:"library_commit"`
	HarnessCommit string    `json:"harness_commit"`
	Seed          int64     `json:"seed"`
	Status        string    `gorm:"not null" json:"status"`
	MetricsBlob   string    `json:"-"`
}

// validStatuses is the set of accepted run statuses.
var validStatuses = map[string]struct{}{
	StatusPassed: {},
	StatusFailed: {},
	StatusError:  {},
}

// ValidStatus checks if the given run status is accepted.
func ValidStatus(status string) bool {
	_, ok := validStatuses[status]

	return ok
}
