package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

const sectionsSchema = `
CREATE TABLE IF NOT EXISTS sections (
	scope_id    TEXT NOT NULL,
	section_key TEXT NOT NULL,
	content     TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (scope_id, section_key)
);
CREATE INDEX IF NOT EXISTS idx_sections_updated ON sections(updated_at);`

// SQLiteSectionRepo persists section documents in a local SQLite file. It
// backs the offline CLI and the sqlite section backend.
type SQLiteSectionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteSectionRepo opens (creating if needed) the database at path.
func OpenSQLiteSectionRepo(path string) (*SQLiteSectionRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=10000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(sectionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sections schema: %w", err)
	}
	return &SQLiteSectionRepo{db: db, now: time.Now}, nil
}

func (r *SQLiteSectionRepo) Close() error { return r.db.Close() }

// ReadSection returns the stored document, or a zero Document when none exists.
func (r *SQLiteSectionRepo) ReadSection(ctx context.Context, scopeID, sectionKey string) (questionnaire.Document, error) {
	rec, err := r.find(ctx, scopeID, sectionKey)
	if err != nil || rec == nil {
		return questionnaire.Document{}, err
	}
	return decodeContent(rec)
}

// SaveSection upserts the document of (scopeID, sectionKey).
func (r *SQLiteSectionRepo) SaveSection(ctx context.Context, scopeID, sectionKey string, doc questionnaire.Document) error {
	content, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode section %s: %w", sectionKey, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sections (scope_id, section_key, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (scope_id, section_key)
		DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		scopeID, sectionKey, string(content), r.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save section %s/%s: %w", scopeID, sectionKey, err)
	}
	return nil
}

func (r *SQLiteSectionRepo) Get(ctx context.Context, scopeID, sectionKey string) (*models.Section, error) {
	rec, err := r.find(ctx, scopeID, sectionKey)
	if err != nil || rec == nil {
		return nil, err
	}
	return toSection(rec)
}

func (r *SQLiteSectionRepo) ListByScope(ctx context.Context, scopeID string) ([]models.Section, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scope_id, section_key, content, updated_at
		FROM sections WHERE scope_id = ? ORDER BY section_key`, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []models.Section
	for rows.Next() {
		var rec sectionRecord
		if err := rows.Scan(&rec.ScopeID, &rec.SectionKey, &rec.Content, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		s, err := toSection(&rec)
		if err != nil {
			continue
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SQLiteSectionRepo) Delete(ctx context.Context, scopeID, sectionKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE scope_id = ? AND section_key = ?`, scopeID, sectionKey)
	return err
}

// ListIndexes reports the indexes of the sections table in the same shape
// the OxiDB repository returns.
func (r *SQLiteSectionRepo) ListIndexes(ctx context.Context) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, `PRAGMA index_list(sections)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Compact runs VACUUM and reports the page count before and after.
func (r *SQLiteSectionRepo) Compact(ctx context.Context) (map[string]any, error) {
	before, err := r.pageCount(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `VACUUM`); err != nil {
		return nil, fmt.Errorf("vacuum: %w", err)
	}
	after, err := r.pageCount(ctx)
	if err != nil {
		return nil, err
	}
	var kept int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections`).Scan(&kept); err != nil {
		return nil, err
	}
	return map[string]any{"old_size": before, "new_size": after, "docs_kept": kept}, nil
}

func (r *SQLiteSectionRepo) pageCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&n)
	return n, err
}

func (r *SQLiteSectionRepo) find(ctx context.Context, scopeID, sectionKey string) (*sectionRecord, error) {
	rec := sectionRecord{ScopeID: scopeID, SectionKey: sectionKey}
	err := r.db.QueryRowContext(ctx, `
		SELECT content, updated_at FROM sections
		WHERE scope_id = ? AND section_key = ?`, scopeID, sectionKey).Scan(&rec.Content, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read section %s/%s: %w", scopeID, sectionKey, err)
	}
	return &rec, nil
}
