// Package audit implements the optional, non-authoritative submission
// log spec.md §9 mentions some source variants keep: a local relational
// record of every submission for observability, with columns
// `(id, course, submit_id, submit_path, package_path, mod_time, state)`.
// It never gates correctness: a crash between dispatch and callback is
// fine, the janitor cleans up, and this log simply falls behind.
//
// Grounded on pkg/fx/database/provider.go's gorm+sqlite wiring, using
// glebarez/sqlite instead of the cgo-based driver so the broker stays a
// single static binary.
package audit

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"gorm.io/gorm"
)

var log = logging.Logger("audit")

// Record is one submission's audit trail row.
type Record struct {
	ID          string `gorm:"primaryKey"`
	Course      string
	SubmitID    string `gorm:"index"`
	SubmitPath  string
	PackagePath string
	ModTime     time.Time
	State       string
}

// Log persists Records best-effort. A nil *Log (or one whose db is nil)
// is valid and every method becomes a no-op, so callers need not branch
// on whether auditing is enabled.
type Log struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite file at path and migrates
// the Record schema.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record inserts a row tracking one transition of a submission. Failures
// are logged, not returned: the audit log must never affect the
// broker's own control flow (spec.md §9).
//
// course has no equivalent in the wire protocol (SubmissionRequest
// carries no course identifier); it is kept as a column for parity with
// the variants spec.md §6 describes and left empty here.
func (l *Log) Record(submitID, submitPath, packagePath, state string) {
	if l == nil || l.db == nil {
		return
	}
	rec := Record{
		ID:          uuid.NewString(),
		SubmitID:    submitID,
		SubmitPath:  submitPath,
		PackagePath: packagePath,
		ModTime:     time.Now(),
		State:       state,
	}
	if err := l.db.Create(&rec).Error; err != nil {
		log.Warnw("failed to write audit record", "submit_id", submitID, "error", err)
	}
}
