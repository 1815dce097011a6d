package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jobalertbot/internal/alert"
	"jobalertbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite repository.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (and migrates) the alert database.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, a alert.Alert) error {
	crit, err := json.Marshal(a.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts(id, user_id, chat_id, criteria, period, cron_spec, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   criteria=excluded.criteria, period=excluded.period,
		   cron_spec=excluded.cron_spec, updated_at=excluded.updated_at`,
		a.ID, a.UserID, a.ChatID, string(crit), a.Schedule.Period, a.Schedule.CronSpec,
		a.CreatedAt.Format(time.RFC3339Nano), a.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) FindByID(ctx context.Context, id string) (alert.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, chat_id, criteria, period, cron_spec, created_at, updated_at
		 FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.Alert{}, alert.ErrNotFound
	}
	return a, err
}

func (s *Store) FindByUser(ctx context.Context, userID int64) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chat_id, criteria, period, cron_spec, created_at, updated_at
		 FROM alerts WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chat_id, criteria, period, cron_spec, created_at, updated_at
		 FROM alerts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(r rowScanner) (alert.Alert, error) {
	var (
		a       alert.Alert
		crit    string
		created string
		updated string
	)
	if err := r.Scan(&a.ID, &a.UserID, &a.ChatID, &crit, &a.Schedule.Period, &a.Schedule.CronSpec, &created, &updated); err != nil {
		return alert.Alert{}, err
	}
	if err := json.Unmarshal([]byte(crit), &a.Criteria); err != nil {
		return alert.Alert{}, fmt.Errorf("unmarshal criteria for %s: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return a, nil
}

func collectAlerts(rows *sql.Rows) ([]alert.Alert, error) {
	var out []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
