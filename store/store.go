// Package store keeps the history of compilation runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound indicates no run matches the query.
var ErrRunNotFound = errors.New("run not found")

var log = commonlog.GetLogger("rat25s.store")

// Run is one recorded case outcome.
type Run struct {
	ID          int64
	Case        string
	Fingerprint string // hex SHA-256 of the output, empty on failure
	Status      string // "ok" or "error"
	Category    string // error category, empty on success
	Message     string
	Transcript  string
	CreatedAt   time.Time
}

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Store handles SQLite storage for runs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting busy timeout")
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		case_name   TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL DEFAULT '',
		transcript  TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating table")
	}

	log.Debugf("opened run store %s", path)
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun records r and returns its id. A zero CreatedAt is set to now.
func (s *Store) SaveRun(ctx context.Context, r *Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (case_name, fingerprint, status, category, message, transcript, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Case, r.Fingerprint, r.Status, r.Category, r.Message, r.Transcript, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "saving run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "saving run")
	}
	r.ID = id
	return id, nil
}

const selectRun = `SELECT id, case_name, fingerprint, status, category, message, transcript, created_at FROM runs`

// LatestRun returns the most recent run of the named case.
func (s *Store) LatestRun(ctx context.Context, name string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE case_name = ? ORDER BY id DESC LIMIT 1`, name)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, errors.Wrap(err, "querying run")
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := selectRun + ` ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning run")
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "listing runs")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var created int64
	if err := sc.Scan(&r.ID, &r.Case, &r.Fingerprint, &r.Status, &r.Category, &r.Message, &r.Transcript, &created); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created)
	return &r, nil
}
