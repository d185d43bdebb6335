package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"botkit/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteRecorder struct {
	db  *sql.DB
	log logx.Logger
}

// Open returns a Recorder backed by cfg. A disabled config yields the
// no-op recorder, so callers can always Append unconditionally.
func Open(cfg Config, log logx.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	r := &sqliteRecorder{db: db, log: log}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *sqliteRecorder) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, string(b))
	return err
}

func (r *sqliteRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *sqliteRecorder) Append(ctx context.Context, rec Record) error {
	if r == nil || r.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit(at, kind, name, chat_id, from_id, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		rec.At.Format(time.RFC3339Nano), rec.Kind, rec.Name, rec.ChatID, rec.FromID,
		rec.OK, nullStr(rec.Error), rec.TookMS,
	)
	return err
}

func (r *sqliteRecorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT at, kind, name, chat_id, from_id, ok, err, took_ms
		 FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var at string
		var errStr sql.NullString
		if err := rows.Scan(&at, &rec.Kind, &rec.Name, &rec.ChatID, &rec.FromID, &rec.OK, &errStr, &rec.TookMS); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			rec.At = t
		}
		rec.Error = errStr.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
