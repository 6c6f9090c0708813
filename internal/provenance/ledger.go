// Package provenance records which source files produced which index
// entries, the file hashes of the last successful build, and a history
// of build runs. It is backed by SQLite.
package provenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/annodex/internal/errors"
)

// SchemaVersion is the ledger schema this package reads and writes.
const SchemaVersion = 1

// Build statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusErrors  = "errors"
	StatusFailed  = "failed"
)

// Build modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// FileRecord is the state of a source file at its last successful build.
type FileRecord struct {
	Path    string // Slash-separated, relative to the source root
	Hash    string
	Package string
	Size    int64
	ModTime time.Time
}

// Entry ties one index location to a source file that produced it.
type Entry struct {
	Location string
	File     string
}

// Build is one recorded build run.
type Build struct {
	ID          string
	Mode        string
	Status      string
	Message     string
	Files       int
	Annotations int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Summary describes the ledger contents.
type Summary struct {
	Files     int
	Resources int
	Locations int
	LastBuild *Build
}

// Ledger is the SQLite provenance store. It is safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens or creates the ledger at path. An empty path creates an
// in-memory ledger. A corrupt ledger file is discarded, which makes the
// next build a full one.
func Open(path string) (*Ledger, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.WriteError(path, err)
		}
		if err := checkIntegrity(path); err != nil {
			slog.Warn("ledger corrupted, discarding",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, errors.New(errors.ErrCodeLedgerCorrupt,
					fmt.Sprintf("ledger %s is corrupted and cannot be removed", path), rmErr).
					WithSuggestion("Delete the ledger file manually and rebuild")
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func checkIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		package TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL DEFAULT 0
	);

	-- One row per (resource, location, file); a location produced by
	-- several files (a type and its methods) has several rows.
	CREATE TABLE IF NOT EXISTS provenance (
		resource TEXT NOT NULL,
		location TEXT NOT NULL,
		file TEXT NOT NULL,
		PRIMARY KEY (resource, location, file)
	);
	CREATE INDEX IF NOT EXISTS idx_provenance_file ON provenance(file);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		files INTEGER NOT NULL DEFAULT 0,
		annotations INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}

	var v sql.NullInt64
	if err := l.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch version := int(v.Int64); {
	case !v.Valid:
		if _, err := l.db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case version > SchemaVersion:
		return errors.New(errors.ErrCodeLedgerCorrupt,
			fmt.Sprintf("ledger schema version %d is newer than supported version %d", version, SchemaVersion), nil).
			WithDetail("path", l.path).
			WithSuggestion("Upgrade annodex or delete the ledger and rebuild")
	}
	return nil
}

// Path returns the ledger file path, "" for in-memory ledgers.
func (l *Ledger) Path() string { return l.path }

// Close checkpoints and closes the ledger.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.path != "" {
		_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return l.db.Close()
}

func (l *Ledger) lock() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("ledger is closed")
	}
	return nil
}

// Files returns the recorded file states keyed by path.
func (l *Ledger) Files(ctx context.Context) (map[string]FileRecord, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx, "SELECT path, hash, package, size, mod_time FROM files")
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]FileRecord)
	for rows.Next() {
		var r FileRecord
		var mod int64
		if err := rows.Scan(&r.Path, &r.Hash, &r.Package, &r.Size, &mod); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		if mod != 0 {
			r.ModTime = time.Unix(0, mod)
		}
		out[r.Path] = r
	}
	return out, rows.Err()
}

// SaveFiles upserts file records and drops deleted paths in one
// transaction.
func (l *Ledger) SaveFiles(ctx context.Context, records []FileRecord, deleted []string) error {
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	return l.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO files (path, hash, package, size, mod_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				hash = excluded.hash,
				package = excluded.package,
				size = excluded.size,
				mod_time = excluded.mod_time
		`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			var mod int64
			if !r.ModTime.IsZero() {
				mod = r.ModTime.UnixNano()
			}
			if _, err := stmt.ExecContext(ctx, r.Path, r.Hash, r.Package, r.Size, mod); err != nil {
				return fmt.Errorf("upsert file %s: %w", r.Path, err)
			}
		}
		for _, p := range deleted {
			if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", p); err != nil {
				return fmt.Errorf("delete file %s: %w", p, err)
			}
		}
		return nil
	})
}

// Stale returns, per resource, the locations produced only by the given
// files. Locations also produced by other files survive. The ledger is
// not modified; see Replace and Forget.
func (l *Ledger) Stale(ctx context.Context, files []string) (map[string][]string, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	stale := make(map[string][]string)
	if len(files) == 0 {
		return stale, nil
	}

	err := l.tx(ctx, func(tx *sql.Tx) error {
		if err := stageChanged(ctx, tx, files); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT resource, location
			FROM provenance
			GROUP BY resource, location
			HAVING SUM(CASE WHEN file IN (SELECT file FROM changed) THEN 0 ELSE 1 END) = 0
			ORDER BY resource, location
		`)
		if err != nil {
			return fmt.Errorf("query stale locations: %w", err)
		}
		for rows.Next() {
			var res, loc string
			if err := rows.Scan(&res, &loc); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan stale row: %w", err)
			}
			stale[res] = append(stale[res], loc)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

// Replace drops the provenance rows of resource that point at the given
// files and records entries in their place, in one transaction. With no
// files it only adds entries.
func (l *Ledger) Replace(ctx context.Context, resource string, files []string, entries []Entry) error {
	if len(files) == 0 && len(entries) == 0 {
		return nil
	}
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	return l.tx(ctx, func(tx *sql.Tx) error {
		if len(files) > 0 {
			if err := stageChanged(ctx, tx, files); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM provenance WHERE resource = ? AND file IN (SELECT file FROM changed)", resource); err != nil {
				return fmt.Errorf("delete provenance: %w", err)
			}
		}
		return insertEntries(ctx, tx, resource, entries)
	})
}

// Forget removes every provenance row of the given files, except rows
// of the resources listed in keep.
func (l *Ledger) Forget(ctx context.Context, files []string, keep ...string) error {
	if len(files) == 0 {
		return nil
	}
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	return l.tx(ctx, func(tx *sql.Tx) error {
		if err := stageChanged(ctx, tx, files); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "CREATE TEMP TABLE IF NOT EXISTS kept (resource TEXT PRIMARY KEY)"); err != nil {
			return fmt.Errorf("create temp table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM kept"); err != nil {
			return fmt.Errorf("clear temp table: %w", err)
		}
		for _, r := range keep {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO kept (resource) VALUES (?)", r); err != nil {
				return fmt.Errorf("stage kept resource: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM provenance
			WHERE file IN (SELECT file FROM changed)
			AND resource NOT IN (SELECT resource FROM kept)
		`); err != nil {
			return fmt.Errorf("delete provenance: %w", err)
		}
		return nil
	})
}

// stageChanged fills the temporary changed table with files.
func stageChanged(ctx context.Context, tx *sql.Tx, files []string) error {
	if _, err := tx.ExecContext(ctx, "CREATE TEMP TABLE IF NOT EXISTS changed (file TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM changed"); err != nil {
		return fmt.Errorf("clear temp table: %w", err)
	}
	for _, f := range files {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO changed (file) VALUES (?)", f); err != nil {
			return fmt.Errorf("stage changed file: %w", err)
		}
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, resource string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO provenance (resource, location, file) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, resource, e.Location, e.File); err != nil {
			return fmt.Errorf("record provenance: %w", err)
		}
	}
	return nil
}

// Reset drops all provenance and file records. Build history is kept.
func (l *Ledger) Reset(ctx context.Context) error {
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	return l.tx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"provenance", "files"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// BeginBuild records the start of a build run.
func (l *Ledger) BeginBuild(ctx context.Context, mode string) (*Build, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()

	b := &Build{ID: uuid.New().String(), Mode: mode, Status: StatusRunning, StartedAt: time.Now()}
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO builds (id, mode, status, started_at) VALUES (?, ?, ?, ?)",
		b.ID, b.Mode, b.Status, b.StartedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("record build start: %w", err)
	}
	return b, nil
}

// FinishBuild records the outcome of a build run.
func (l *Ledger) FinishBuild(ctx context.Context, b *Build) error {
	if err := l.lock(); err != nil {
		return err
	}
	defer l.mu.Unlock()

	if b.FinishedAt.IsZero() {
		b.FinishedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE builds SET status = ?, message = ?, files = ?, annotations = ?, finished_at = ?
		WHERE id = ?
	`, b.Status, b.Message, b.Files, b.Annotations, b.FinishedAt.UnixNano(), b.ID)
	if err != nil {
		return fmt.Errorf("record build finish: %w", err)
	}
	return nil
}

// Builds returns the most recent builds, newest first.
func (l *Ledger) Builds(ctx context.Context, limit int) ([]*Build, error) {
	if err := l.lock(); err != nil {
		return nil, err
	}
	defer l.mu.Unlock()
	return l.builds(ctx, limit)
}

func (l *Ledger) builds(ctx context.Context, limit int) ([]*Build, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, mode, status, message, files, annotations, started_at, finished_at
		FROM builds
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []*Build
	for rows.Next() {
		var b Build
		var started, finished int64
		if err := rows.Scan(&b.ID, &b.Mode, &b.Status, &b.Message, &b.Files, &b.Annotations, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		b.StartedAt = time.Unix(0, started)
		if finished != 0 {
			b.FinishedAt = time.Unix(0, finished)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// Summary counts ledger contents.
func (l *Ledger) Summary(ctx context.Context) (Summary, error) {
	if err := l.lock(); err != nil {
		return Summary{}, err
	}
	defer l.mu.Unlock()

	var s Summary
	row := l.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(DISTINCT resource) FROM provenance),
			(SELECT COUNT(*) FROM (SELECT DISTINCT resource, location FROM provenance))
	`)
	if err := row.Scan(&s.Files, &s.Resources, &s.Locations); err != nil {
		return Summary{}, fmt.Errorf("summarize ledger: %w", err)
	}

	builds, err := l.builds(ctx, 1)
	if err != nil {
		return Summary{}, err
	}
	if len(builds) > 0 {
		s.LastBuild = builds[0]
	}
	return s, nil
}

func (l *Ledger) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
