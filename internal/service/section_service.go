package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/workflow"
)

var (
	ErrTemplateNotFound = errors.New("section template not found")
	ErrInvalidKey       = errors.New("invalid key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidKey reports whether k can name an engagement or a section.
func ValidKey(k string) bool { return keyPattern.MatchString(k) && len(k) <= 128 }

// SectionRepository is the section storage both backends provide.
type SectionRepository interface {
	workflow.SectionStore
	Get(ctx context.Context, scopeID, sectionKey string) (*models.Section, error)
	ListByScope(ctx context.Context, scopeID string) ([]models.Section, error)
	Delete(ctx context.Context, scopeID, sectionKey string) error
	ListIndexes(ctx context.Context) ([]map[string]any, error)
	Compact(ctx context.Context) (map[string]any, error)
}

// TemplateStore reads sections from a repository and falls back to the
// template file of a section that has never been stored. The template is
// written back so later edits apply to the engagement's own copy.
type TemplateStore struct {
	SectionRepository
	dir string
}

func NewTemplateStore(repo SectionRepository, dir string) *TemplateStore {
	return &TemplateStore{SectionRepository: repo, dir: dir}
}

func (t *TemplateStore) ReadSection(ctx context.Context, scopeID, sectionKey string) (questionnaire.Document, error) {
	doc, err := t.SectionRepository.ReadSection(ctx, scopeID, sectionKey)
	if err != nil || !doc.IsZero() || t.dir == "" {
		return doc, err
	}
	tpl, err := t.Template(sectionKey)
	if errors.Is(err, ErrTemplateNotFound) {
		return doc, nil
	}
	if err != nil {
		return questionnaire.Document{}, err
	}
	if err := t.SaveSection(ctx, scopeID, sectionKey, tpl); err != nil {
		log.Printf("Warning: store template copy %s/%s: %v", scopeID, sectionKey, err)
	}
	return tpl, nil
}

// Template loads <dir>/<sectionKey>.json, .yaml or .yml.
func (t *TemplateStore) Template(sectionKey string) (questionnaire.Document, error) {
	if !ValidKey(sectionKey) || t.dir == "" {
		return questionnaire.Document{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, sectionKey)
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(t.dir, sectionKey+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return questionnaire.Document{}, err
		}
		if ext == ".json" {
			return questionnaire.DecodeDocument(data)
		}
		return questionnaire.DecodeYAMLDocument(data)
	}
	return questionnaire.Document{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, sectionKey)
}

// Templates lists the section keys that have a template file.
func (t *TemplateStore) Templates() ([]string, error) {
	if t.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(t.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var keys []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".json" && ext != ".yaml" && ext != ".yml") {
			continue
		}
		k := e.Name()[:len(e.Name())-len(ext)]
		if ValidKey(k) && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// SectionService serves the live sessions of the engagement sections.
type SectionService struct {
	store    *TemplateStore
	sessions *workflow.Registry
	docs     *DocumentService
	cross    map[string][]string
}

func NewSectionService(store *TemplateStore, sessions *workflow.Registry, docs *DocumentService, cross map[string][]string) *SectionService {
	return &SectionService{store: store, sessions: sessions, docs: docs, cross: cross}
}

// Session returns the open session of one section, loading it on first use.
func (s *SectionService) Session(ctx context.Context, scopeID, sectionKey string) (*workflow.Session, error) {
	if !ValidKey(scopeID) {
		return nil, fmt.Errorf("%w: engagement %q", ErrInvalidKey, scopeID)
	}
	if !ValidKey(sectionKey) {
		return nil, fmt.Errorf("%w: section %q", ErrInvalidKey, sectionKey)
	}
	return s.sessions.Get(ctx, scopeID, sectionKey)
}

// Close flushes and forgets a session. The next request reloads from storage.
func (s *SectionService) Close(scopeID, sectionKey string) error {
	return s.sessions.Drop(scopeID, sectionKey)
}

// Engagement summarises the stored sections of scopeID. Sections with an
// open session report their in-memory state.
func (s *SectionService) Engagement(ctx context.Context, scopeID string) (*models.Engagement, error) {
	sections, err := s.store.ListByScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]questionnaire.Document, len(sections))
	for _, sec := range sections {
		byKey[sec.SectionKey] = sec.Content
	}

	e := &models.Engagement{ScopeID: scopeID, Sections: make([]models.SectionSummary, 0, len(sections))}
	var all questionnaire.Progress
	for _, sec := range sections {
		sum := models.SectionSummary{SectionKey: sec.SectionKey, UpdatedAt: sec.UpdatedAt}
		if live, ok := s.sessions.Lookup(scopeID, sec.SectionKey); ok {
			sum.Progress = live.Progress()
		} else {
			external := questionnaire.AnswerMap{}
			for _, k := range s.cross[sec.SectionKey] {
				if k != sec.SectionKey {
					external = external.Merge(questionnaire.ExtractDocumentAnswers(byKey[k]))
				}
			}
			sum.Progress = questionnaire.SectionProgress(sec.Content, external)
		}
		all.Total += sum.Progress.All.Total
		all.Answered += sum.Progress.All.Answered
		e.Sections = append(e.Sections, sum)
	}
	e.Total, e.Answered, e.Percent = all.Total, all.Answered, all.Percent()

	if s.docs != nil {
		n, err := s.docs.Count(ctx, scopeID)
		if err != nil {
			log.Printf("Warning: count documents of %s: %v", scopeID, err)
		}
		e.Documents = n
	}
	return e, nil
}

// Templates lists the section keys available as templates.
func (s *SectionService) Templates() ([]string, error) { return s.store.Templates() }

func (s *SectionService) ListIndexes(ctx context.Context) ([]map[string]any, error) {
	return s.store.ListIndexes(ctx)
}

func (s *SectionService) Compact(ctx context.Context) (map[string]any, error) {
	return s.store.Compact(ctx)
}

// OpenSessions is the number of sections currently held in memory.
func (s *SectionService) OpenSessions() int { return s.sessions.Len() }
