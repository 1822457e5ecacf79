// Package ledger records completed output in SQLite so an interrupted run
// can resume without redoing finished cases.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/forPelevin/phasesplit/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Ledger struct {
	conn   *sql.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	l := &Ledger{conn: conn, logger: logger}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := l.markInterruptedRuns(); err != nil {
		logger.Warn("failed to mark interrupted runs", zap.Error(err))
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if l.isMigrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := l.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := l.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		l.logger.Debug("applied migration", zap.String("name", name))
	}
	return nil
}

func (l *Ledger) isMigrationApplied(name string) bool {
	var exists int
	if err := l.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := l.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (l *Ledger) markInterruptedRuns() error {
	_, err := l.conn.Exec(`UPDATE runs SET status = 'interrupted', finished_at = datetime('now') WHERE status = 'running'`)
	return err
}

func (l *Ledger) StartRun(ctx context.Context, runID, convention, mode string) error {
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO runs (id, convention, mode) VALUES (?, ?, ?)`, runID, convention, mode)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

func (l *Ledger) FinishRun(ctx context.Context, runID, status string) error {
	_, err := l.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = datetime('now') WHERE id = ?`, status, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordSegment stores a finished segment. Only written and truncated
// segments are final; anything else is ignored.
func (l *Ledger) RecordSegment(ctx context.Context, runID, caseKey, fingerprint string, seg types.ManifestSegment) error {
	if seg.Status != types.StatusWritten && seg.Status != types.StatusTruncated {
		return nil
	}
	key := seg.File
	if key == "" && len(seg.Stills) > 0 {
		key = fmt.Sprintf("%s#%s#%d", caseKey, seg.Label, seg.Occurrence)
	}
	if key == "" {
		return errors.New("record segment: segment has no destination")
	}
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO segments (path, case_key, fingerprint, run_id, label, occurrence, start_frame, end_frame, status, frames_written, stills)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			case_key = excluded.case_key,
			fingerprint = excluded.fingerprint,
			run_id = excluded.run_id,
			label = excluded.label,
			occurrence = excluded.occurrence,
			start_frame = excluded.start_frame,
			end_frame = excluded.end_frame,
			status = excluded.status,
			frames_written = excluded.frames_written,
			stills = excluded.stills,
			updated_at = datetime('now')`,
		key, caseKey, fingerprint, runID, seg.Label, seg.Occurrence, seg.StartFrame, seg.EndFrame,
		seg.Status, seg.FramesWritten, strings.Join(seg.Stills, "\n"))
	if err != nil {
		return fmt.Errorf("record segment %s: %w", key, err)
	}
	return nil
}

// CompleteCase marks a case done under fingerprint.
func (l *Ledger) CompleteCase(ctx context.Context, runID, caseKey, fingerprint string, segments int) error {
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO cases (case_key, fingerprint, run_id, segments) VALUES (?, ?, ?, ?)
		ON CONFLICT(case_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			run_id = excluded.run_id,
			segments = excluded.segments,
			completed_at = datetime('now')`,
		caseKey, fingerprint, runID, segments)
	if err != nil {
		return fmt.Errorf("complete case %s: %w", caseKey, err)
	}
	return nil
}

// CaseComplete reports whether caseKey finished under the same fingerprint
// and every one of its segments is still recorded.
func (l *Ledger) CaseComplete(ctx context.Context, caseKey, fingerprint string) (bool, error) {
	var want int
	err := l.conn.QueryRowContext(ctx,
		`SELECT segments FROM cases WHERE case_key = ? AND fingerprint = ?`, caseKey, fingerprint).Scan(&want)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query case %s: %w", caseKey, err)
	}
	var have int
	err = l.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM segments WHERE case_key = ? AND fingerprint = ?`, caseKey, fingerprint).Scan(&have)
	if err != nil {
		return false, fmt.Errorf("count segments of %s: %w", caseKey, err)
	}
	return have >= want, nil
}

// Segments returns the recorded segments of a case in timeline order.
func (l *Ledger) Segments(ctx context.Context, caseKey, fingerprint string) ([]types.ManifestSegment, error) {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT path, label, occurrence, start_frame, end_frame, status, frames_written, stills
		FROM segments WHERE case_key = ? AND fingerprint = ?
		ORDER BY start_frame`, caseKey, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list segments of %s: %w", caseKey, err)
	}
	defer rows.Close()

	var out []types.ManifestSegment
	for rows.Next() {
		var s types.ManifestSegment
		var path, stills string
		if err := rows.Scan(&path, &s.Label, &s.Occurrence, &s.StartFrame, &s.EndFrame, &s.Status, &s.FramesWritten, &stills); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if stills != "" {
			s.Stills = strings.Split(stills, "\n")
		} else {
			s.File = path
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
