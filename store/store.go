// Package store keeps a log of evaluated expectation values in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
)

const (
	tableRuns = "runs"
)

// Run is one evaluation of an observable.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Target      string
	Kernel      string
	Hamiltonian string
	Params      []float64
	// Shots is zero for exact evaluations.
	Shots       int
	Seed        uint64
	Size        int
	Mode        string
	Expectation float64
	Variance    float64
}

type Store struct {
	db *sql.DB
}

// Open opens the run log at path, creating it if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{db: db}, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		created INTEGER,
		target TEXT,
		kernel TEXT,
		hamiltonian TEXT,
		params TEXT,
		shots INTEGER,
		seed INTEGER,
		size INTEGER,
		mode TEXT,
		expectation REAL,
		variance REAL
	) STRICT`, tableRuns)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "")
}

// Record inserts r, assigning its ID and creation time if they are unset.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Run{}, errors.Wrap(err, "")
		}
		r.ID = id.String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	params, err := json.Marshal(r.Params)
	if err != nil {
		return Run{}, errors.Wrap(err, "")
	}

	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, created, target, kernel, hamiltonian, params, shots, seed, size, mode, expectation, variance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableRuns)
	// seed is stored by its bits, since SQLite integers are signed.
	args := []any{r.ID, r.CreatedAt.UnixNano(), r.Target, r.Kernel, r.Hamiltonian, string(params), r.Shots, int64(r.Seed), r.Size, r.Mode, r.Expectation, r.Variance}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Run{}, errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return r, nil
}

const columns = `id, created, target, kernel, hamiltonian, params, shots, seed, size, mode, expectation, variance`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var created, seed int64
	var params string
	if err := row.Scan(&r.ID, &created, &r.Target, &r.Kernel, &r.Hamiltonian, &params, &r.Shots, &seed, &r.Size, &r.Mode, &r.Expectation, &r.Variance); err != nil {
		return Run{}, errors.Wrap(err, "")
	}
	r.CreatedAt = time.Unix(0, created)
	r.Seed = uint64(seed)
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return Run{}, errors.Wrap(err, params)
	}
	return r, nil
}

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	sqlStr := fmt.Sprintf(`SELECT %s FROM %s WHERE id=?`, columns, tableRuns)
	r, err := scanRun(s.db.QueryRowContext(ctx, sqlStr, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return Run{}, errors.Wrap(err, "")
	}
	return r, nil
}

// List returns up to limit runs, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	sqlStr := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created DESC, id DESC LIMIT ?`, columns, tableRuns)
	rows, err := s.db.QueryContext(ctx, sqlStr, limit)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return runs, nil
}
