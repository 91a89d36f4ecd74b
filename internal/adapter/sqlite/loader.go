// Package sqlite appends CSV outputs to a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/csvout"
	"github.com/couchcryptid/argo-profile-etl/internal/config"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

const (
	sqliteBusyCode     = 5
	busyRetryAttempts  = 5
	busyInitialBackoff = 10 * time.Millisecond
	busyMaxBackoff     = 200 * time.Millisecond

	loadedTable = "loaded_files"
)

// textColumns are stored with TEXT affinity; every other column is REAL.
var textColumns = map[string]bool{
	domain.ColFloatID:    true,
	domain.ColSourceFile: true,
}

// Loader appends CSV outputs to one table. Each source file is loaded at
// most once; the loaded_files table records which.
type Loader struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Summary counts the work done by Load.
type Summary struct {
	Files   int
	Skipped int
	Rows    int64
}

// Open opens or creates the database at path.
func Open(path, table string, logger *slog.Logger) (*Loader, error) {
	if !config.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	const ddl = `CREATE TABLE IF NOT EXISTS ` + loadedTable + ` (
		source_file TEXT PRIMARY KEY,
		rows INTEGER NOT NULL,
		loaded_at TEXT NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s: %w", loadedTable, err)
	}

	return &Loader{db: db, table: table, logger: logger}, nil
}

// Close closes the database.
func (l *Loader) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Load appends every CSV file in paths. A file whose rows were already loaded
// is skipped.
func (l *Loader) Load(ctx context.Context, paths []string) (Summary, error) {
	var s Summary
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		n, skipped, err := l.LoadFile(ctx, p)
		if err != nil {
			return s, err
		}
		if skipped {
			s.Skipped++
			continue
		}
		s.Files++
		s.Rows += n
	}
	return s, nil
}

// LoadFile appends the rows of one CSV output in a single transaction.
func (l *Loader) LoadFile(ctx context.Context, path string) (rows int64, skipped bool, err error) {
	key := filepath.Base(path)
	done, err := l.loaded(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if done {
		l.logger.Debug("already loaded", "file", key)
		return 0, true, nil
	}

	r, err := csvout.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer r.Close()

	header := r.Header()
	for _, h := range header {
		if !config.ValidIdentifier(h) {
			return 0, false, fmt.Errorf("%s: invalid column name %q", key, h)
		}
	}

	err = retryOnBusy(ctx, func() error {
		return l.ensureColumns(ctx, header)
	})
	if err != nil {
		return 0, false, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin load of %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.table, strings.Join(header, ", "), placeholders))
	if err != nil {
		return 0, false, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(header))
	for {
		rec, rerr := r.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			err = fmt.Errorf("%s: %w", key, rerr)
			return 0, false, err
		}
		for i, v := range rec {
			args[i] = value(header[i], v)
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			err = fmt.Errorf("insert row %d of %s: %w", rows+1, key, err)
			return 0, false, err
		}
		rows++
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO "+loadedTable+" (source_file, rows, loaded_at) VALUES (?, ?, ?)",
		key, rows, domain.Now().UTC().Format(time.RFC3339))
	if err != nil {
		err = fmt.Errorf("mark %s loaded: %w", key, err)
		return 0, false, err
	}
	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit load of %s: %w", key, err)
		return 0, false, err
	}
	l.logger.Info("file loaded", "file", key, "rows", rows, "table", l.table)
	return rows, false, nil
}

func (l *Loader) loaded(ctx context.Context, key string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+loadedTable+" WHERE source_file = ?", key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return n > 0, nil
}

// ensureColumns creates the table or adds the header columns it lacks.
// Research variables differ between files, so the column set only grows.
func (l *Loader) ensureColumns(ctx context.Context, header []string) error {
	existing, err := l.Columns(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		defs := make([]string, len(header))
		for i, h := range header {
			defs[i] = h + " " + affinity(h)
		}
		q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", l.table, strings.Join(defs, ", "))
		if _, err := l.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", l.table, err)
		}
		return nil
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, h := range header {
		if have[h] {
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", l.table, h, affinity(h))
		if _, err := l.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("add column %s: %w", h, err)
		}
	}
	return nil
}

// Columns lists the columns of the target table, or nil if it does not
// exist yet.
func (l *Loader) Columns(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", l.table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", l.table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", l.table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Count returns the number of rows in the target table.
func (l *Loader) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+l.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", l.table, err)
	}
	return n, nil
}

func affinity(column string) string {
	if textColumns[column] {
		return "TEXT"
	}
	return "REAL"
}

// value converts a CSV cell: empty is NULL, numbers are float64, anything
// else stays text.
func value(column, cell string) any {
	if cell == "" {
		return nil
	}
	if textColumns[column] {
		return cell
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		if !sharedretry.SleepWithContext(ctx, delay) {
			return ctx.Err()
		}
		delay = sharedretry.NextBackoff(delay, busyMaxBackoff)
	}
	return lastErr
}
