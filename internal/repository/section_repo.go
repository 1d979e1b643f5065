package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/db"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/oxidb"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

const SectionsCollection = "_audit_sections"

// sectionRecord is the stored form of a section. Content is kept as JSON
// text so group order survives the round trip.
type sectionRecord struct {
	ScopeID    string `json:"scopeId"`
	SectionKey string `json:"sectionKey"`
	Content    string `json:"content"`
	UpdatedAt  string `json:"updatedAt"`
}

// SectionRepo persists section documents in OxiDB.
type SectionRepo struct {
	pool *db.Pool
	now  func() time.Time
}

func NewSectionRepo(pool *db.Pool) *SectionRepo {
	return &SectionRepo{pool: pool, now: time.Now}
}

func (r *SectionRepo) EnsureIndexes(ctx context.Context) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	if err := c.CreateIndex(ctx, SectionsCollection, "scopeId"); err != nil {
		return err
	}
	return c.CreateCompositeIndex(ctx, SectionsCollection, []string{"scopeId", "sectionKey"})
}

// ReadSection returns the stored document, or a zero Document when none exists.
func (r *SectionRepo) ReadSection(ctx context.Context, scopeID, sectionKey string) (questionnaire.Document, error) {
	rec, err := r.find(ctx, scopeID, sectionKey)
	if err != nil || rec == nil {
		return questionnaire.Document{}, err
	}
	return decodeContent(rec)
}

// SaveSection upserts the document of (scopeID, sectionKey).
func (r *SectionRepo) SaveSection(ctx context.Context, scopeID, sectionKey string, doc questionnaire.Document) error {
	content, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode section %s: %w", sectionKey, err)
	}
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	rec := sectionRecord{
		ScopeID:    scopeID,
		SectionKey: sectionKey,
		Content:    string(content),
		UpdatedAt:  r.now().UTC().Format(time.RFC3339Nano),
	}
	query := map[string]any{"scopeId": scopeID, "sectionKey": sectionKey}
	n, err := c.UpdateOne(ctx, SectionsCollection, query, map[string]any{"$set": toDoc(rec)})
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = c.Insert(ctx, SectionsCollection, toDoc(rec))
	return err
}

// Get returns the full stored section, or nil.
func (r *SectionRepo) Get(ctx context.Context, scopeID, sectionKey string) (*models.Section, error) {
	rec, err := r.find(ctx, scopeID, sectionKey)
	if err != nil || rec == nil {
		return nil, err
	}
	return toSection(rec)
}

// ListByScope returns every stored section of one engagement, ordered by key.
func (r *SectionRepo) ListByScope(ctx context.Context, scopeID string) ([]models.Section, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := c.Find(ctx, SectionsCollection, map[string]any{"scopeId": scopeID}, &oxidb.FindOptions{
		Sort: map[string]any{"sectionKey": 1},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Section, 0, len(docs))
	for _, rec := range fromDocs[sectionRecord](docs) {
		s, err := toSection(&rec)
		if err != nil {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *SectionRepo) Delete(ctx context.Context, scopeID, sectionKey string) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	_, err = c.Delete(ctx, SectionsCollection, map[string]any{"scopeId": scopeID, "sectionKey": sectionKey})
	return err
}

func (r *SectionRepo) ListIndexes(ctx context.Context) ([]map[string]any, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListIndexes(ctx, SectionsCollection)
}

func (r *SectionRepo) Compact(ctx context.Context) (map[string]any, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.Compact(ctx, SectionsCollection)
}

func (r *SectionRepo) find(ctx context.Context, scopeID, sectionKey string) (*sectionRecord, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := c.FindOne(ctx, SectionsCollection, map[string]any{"scopeId": scopeID, "sectionKey": sectionKey})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return fromDoc[sectionRecord](doc)
}

func decodeContent(rec *sectionRecord) (questionnaire.Document, error) {
	doc, err := questionnaire.DecodeDocument([]byte(rec.Content))
	if err != nil {
		return questionnaire.Document{}, fmt.Errorf("decode section %s/%s: %w", rec.ScopeID, rec.SectionKey, err)
	}
	return doc, nil
}

func toSection(rec *sectionRecord) (*models.Section, error) {
	doc, err := decodeContent(rec)
	if err != nil {
		return nil, err
	}
	return &models.Section{
		ScopeID:    rec.ScopeID,
		SectionKey: rec.SectionKey,
		Content:    doc,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}
