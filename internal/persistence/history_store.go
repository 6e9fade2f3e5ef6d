package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shorts-uploader/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// HistoryStore keeps the append-only record of every upload attempt so
// operators can audit runs and recover failed jobs by hand.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(path string) (*HistoryStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &HistoryStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *HistoryStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// HistoryEntry is one attempted upload as recorded for a run.
type HistoryEntry struct {
	RunID      string
	Mode       string
	File       string
	Title      string
	Status     jobs.OutcomeStatus
	VideoID    string
	Error      string
	Privacy    jobs.PrivacyStatus
	UploadedAt time.Time
}

// AppendOutcomes records every outcome of a run under one run ID.
func (s *HistoryStore) AppendOutcomes(ctx context.Context, runID, mode string, outcomes []jobs.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO upload_history
		(run_id, mode, file, title, status, video_id, error, privacy_status, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx,
			runID,
			mode,
			o.Job.File,
			o.Job.Title,
			string(o.Status),
			o.VideoID,
			o.Err,
			string(o.Job.Privacy),
			o.Timestamp.UTC(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RunOutcomes lists the history of a single run in insertion order.
func (s *HistoryStore) RunOutcomes(ctx context.Context, runID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, mode, file, title, status, video_id, error, privacy_status, uploaded_at
		 FROM upload_history
		 WHERE run_id = ?
		 ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Stats summarizes the whole history table.
type Stats struct {
	TotalUploads int
	Succeeded    int
	Failed       int
	ByPrivacy    map[jobs.PrivacyStatus]int
	FirstUpload  time.Time
	LastUpload   time.Time
}

func (s *HistoryStore) Statistics(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, mode, file, title, status, video_id, error, privacy_status, uploaded_at
		 FROM upload_history
		 ORDER BY id ASC`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ByPrivacy: make(map[jobs.PrivacyStatus]int)}
	for _, e := range entries {
		stats.TotalUploads++
		if e.Status == jobs.StatusSuccess {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		stats.ByPrivacy[e.Privacy]++
		if stats.FirstUpload.IsZero() || e.UploadedAt.Before(stats.FirstUpload) {
			stats.FirstUpload = e.UploadedAt
		}
		if e.UploadedAt.After(stats.LastUpload) {
			stats.LastUpload = e.UploadedAt
		}
	}
	return stats, nil
}

func scanEntries(rows *sql.Rows) ([]HistoryEntry, error) {
	ret := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var status, privacy string
		if err := rows.Scan(
			&e.RunID,
			&e.Mode,
			&e.File,
			&e.Title,
			&status,
			&e.VideoID,
			&e.Error,
			&privacy,
			&e.UploadedAt,
		); err != nil {
			return nil, err
		}
		e.Status = jobs.OutcomeStatus(status)
		e.Privacy = jobs.PrivacyStatus(privacy)
		ret = append(ret, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
