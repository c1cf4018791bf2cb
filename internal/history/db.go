// internal/history/db.go
//
// SQLite audit log of game sessions.
// Responsibilities:
//   - Opening SQLite with safe defaults (WAL, busy timeout, foreign keys).
//   - Applying embedded migrations (idempotent, recorded in _migrations).
//   - Recording when a session starts, restarts and is won.
//
// Rows are written for diagnostics only; a game is never rebuilt from them.

package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var migrations embed.FS

// Status values stored in games.status.
const (
	StatusPlaying = "playing"
	StatusWon     = "won"
)

// Record is one games row.
type Record struct {
	ID         string     `json:"id"`
	Daily      bool       `json:"daily"`
	Status     string     `json:"status"`
	Presses    int        `json:"presses"`
	Restarts   int        `json:"restarts"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Log wraps the database handle.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and creates if missing) the SQLite file at path and migrates it.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database handle.
func (l *Log) Close() error { return l.db.Close() }

// migrate applies embedded sql/*.sql files in lexical order, once each.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	files, err := fs.Glob(migrations, "sql/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", f).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		body, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

// Started inserts the row for a new session.
func (l *Log) Started(ctx context.Context, id string, daily bool) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO games (id, daily, status, started_at) VALUES (?,?,?,?)`,
		id, daily, StatusPlaying, l.now().Format(time.RFC3339))
	return err
}

// Restarted resets the row after the player asked for a new deal.
func (l *Log) Restarted(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE games SET status=?, presses=0, restarts=restarts+1, started_at=?, finished_at=NULL WHERE id=?`,
		StatusPlaying, l.now().Format(time.RFC3339), id)
	return err
}

// Won marks a playing session as won after presses pointer presses.
// Repeated calls for the same deal are ignored.
func (l *Log) Won(ctx context.Context, id string, presses int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE games SET status=?, presses=?, finished_at=? WHERE id=? AND status=?`,
		StatusWon, presses, l.now().Format(time.RFC3339), id, StatusPlaying)
	return err
}

// Get loads one row.
func (l *Log) Get(ctx context.Context, id string) (*Record, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, daily, status, presses, restarts, started_at, COALESCE(finished_at,'')
		 FROM games WHERE id=?`, id)
	return scanRecord(row)
}

// Recent returns the newest rows first; limit defaults to 20.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, daily, status, presses, restarts, started_at, COALESCE(finished_at,'')
		 FROM games ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var started, finished string
	if err := row.Scan(&r.ID, &r.Daily, &r.Status, &r.Presses, &r.Restarts, &started, &finished); err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	if finished != "" {
		t, _ := time.Parse(time.RFC3339, finished)
		r.FinishedAt = &t
	}
	return &r, nil
}
