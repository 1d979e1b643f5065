// Package workflow binds a section document to its store and to the upload
// service: every edit is applied in memory, saved in the background, and
// attach actions get their own upload linker.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
)

var (
	ErrClosed     = errors.New("workflow: session closed")
	ErrNoUploader = errors.New("workflow: no upload service configured")
	ErrNoFiles    = errors.New("workflow: no files to attach")
)

// SectionStore loads and saves whole section documents. ReadSection returns
// a zero Document when nothing is stored yet.
type SectionStore interface {
	ReadSection(ctx context.Context, scopeID, sectionKey string) (questionnaire.Document, error)
	SaveSection(ctx context.Context, scopeID, sectionKey string, doc questionnaire.Document) error
}

// Uploader stores files and reports progress on the shared hub.
type Uploader interface {
	Upload(ctx context.Context, sources []uploads.Source, category string, uctx uploads.Context) []uploads.Outcome
	AcceptedTypes() []string
}

// Options configures a Session.
type Options struct {
	Uploader Uploader
	Hub      *uploads.Hub
	// SaveTimeout bounds each background save. Zero means 10s.
	SaveTimeout time.Duration
	// CrossSections are other sections whose answers feed conditions here.
	CrossSections []string
	// StrictIDs rejects documents that reuse a question id.
	StrictIDs bool
	// UploadedBy is recorded on attached documents.
	UploadedBy string
	Clock      func() time.Time
}

type linkKey struct{ group, item string }

type uploadedByKey struct{}

// WithUploadedBy tags ctx with the user attaching files. It overrides
// Options.UploadedBy for that Attach call.
func WithUploadedBy(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, uploadedByKey{}, user)
}

// Session is one activated section of one engagement.
type Session struct {
	store      SectionStore
	scopeID    string
	sectionKey string
	opts       Options

	mu       sync.Mutex
	doc      questionnaire.Document
	external questionnaire.AnswerMap
	linkers  map[linkKey]*uploads.Linker
	closed   bool
	loadErr  error

	saver  *autosaver
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open loads the section. A read failure is logged and treated as an empty
// document; it is still available through LoadErr.
func Open(ctx context.Context, store SectionStore, scopeID, sectionKey string, opts Options) (*Session, error) {
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	doc, err := store.ReadSection(ctx, scopeID, sectionKey)
	if err != nil {
		log.Printf("Warning: read section %s/%s: %v (starting empty)", scopeID, sectionKey, err)
		doc = questionnaire.Document{}
	}
	if opts.StrictIDs {
		if issues := questionnaire.Validate(doc); questionnaire.HasDuplicates(issues) {
			return nil, fmt.Errorf("section %s: %w", sectionKey, questionnaire.IssuesErr(issues))
		}
	}

	s := &Session{
		store:      store,
		scopeID:    scopeID,
		sectionKey: sectionKey,
		opts:       opts,
		doc:        doc,
		external:   questionnaire.AnswerMap{},
		linkers:    map[linkKey]*uploads.Linker{},
		loadErr:    err,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.saver = newAutosaver(scopeID+"/"+sectionKey, opts.SaveTimeout, opts.Clock,
		func(ctx context.Context, d questionnaire.Document) error {
			return store.SaveSection(ctx, scopeID, sectionKey, d)
		})

	if len(opts.CrossSections) > 0 {
		if err := s.LoadCrossSection(ctx, opts.CrossSections...); err != nil {
			log.Printf("Warning: cross-section answers for %s/%s: %v", scopeID, sectionKey, err)
		}
	}
	return s, nil
}

func (s *Session) ScopeID() string    { return s.scopeID }
func (s *Session) SectionKey() string { return s.sectionKey }

// LoadErr is the error ReadSection returned on Open, if any.
func (s *Session) LoadErr() error { return s.loadErr }

// Document returns the current in-memory document.
func (s *Session) Document() questionnaire.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Groups returns the section's top-level groups.
func (s *Session) Groups() []questionnaire.Group {
	return questionnaire.TopLevelGroups(s.Document())
}

// Replace swaps the whole document, e.g. after loading a template, and
// schedules a save.
func (s *Session) Replace(doc questionnaire.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.doc = doc
	s.saver.schedule(doc)
	return nil
}

// SetField applies one edit and schedules a save. The edit is visible to
// the next read immediately; the save runs in the background.
func (s *Session) SetField(groupKey, itemID, field string, value any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	next, err := questionnaire.SetField(s.doc, groupKey, itemID, field, value, merge)
	if err != nil {
		return err
	}
	s.doc = next
	s.saver.schedule(next)
	return nil
}

// SetAnswer replaces the answer of itemID.
func (s *Session) SetAnswer(groupKey, itemID string, value any) error {
	return s.SetField(groupKey, itemID, questionnaire.FieldAnswer, value, false)
}

// SetSubAnswer stores the answer of a revealed sub-question, or its table
// rows when subID is a sub-table key.
func (s *Session) SetSubAnswer(groupKey, itemID, subID string, value any) error {
	return s.SetField(groupKey, itemID, questionnaire.FieldSubAnswers, map[string]any{subID: value}, true)
}

// SetDetails replaces the dynamic-table rows of itemID.
func (s *Session) SetDetails(groupKey, itemID string, rows any) error {
	return s.SetField(groupKey, itemID, questionnaire.FieldDetails, rows, false)
}

// Answers is the evaluation input for groupKey: the group's own answers laid
// over answers imported from other sections.
func (s *Session) Answers(groupKey string) questionnaire.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.external.Merge(s.doc.AnswerMap(groupKey))
}

// LoadCrossSection imports the answers of other sections of the same
// engagement. Later keys override earlier ones.
func (s *Session) LoadCrossSection(ctx context.Context, keys ...string) error {
	imported := questionnaire.AnswerMap{}
	var errs []error
	for _, key := range keys {
		if key == s.sectionKey {
			continue
		}
		doc, err := s.store.ReadSection(ctx, s.scopeID, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		imported = imported.Merge(questionnaire.ExtractDocumentAnswers(doc))
	}
	s.mu.Lock()
	s.external = s.external.Merge(imported)
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Render returns the visible items of groupKey.
func (s *Session) Render(groupKey string, f questionnaire.Filter) ([]questionnaire.ItemView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.doc.Items(groupKey)
	if !ok {
		return nil, fmt.Errorf("%w: group %q", questionnaire.ErrNodeNotFound, groupKey)
	}
	answers := s.external.Merge(questionnaire.BuildAnswerMap(items))
	return questionnaire.Render(items, answers, f), nil
}

// Progress reports completion of the whole section.
func (s *Session) Progress() questionnaire.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return questionnaire.SectionProgress(s.doc, s.external)
}

// Attach creates temporary records for sources right away and uploads them
// in the background. Progress reaches the records through the hub.
func (s *Session) Attach(ctx context.Context, groupKey, itemID, label string, sources []uploads.Source) ([]uploads.Record, error) {
	if s.opts.Uploader == nil {
		return nil, ErrNoUploader
	}
	if len(sources) == 0 {
		return nil, ErrNoFiles
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	items, ok := s.doc.Items(groupKey)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: group %q", questionnaire.ErrNodeNotFound, groupKey)
	}
	node, ok := questionnaire.FindNode(items, itemID)
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q in group %q", questionnaire.ErrNodeNotFound, itemID, groupKey)
	}
	if label == "" {
		label = uploads.Label(itemID, node.Question())
	}
	linker := s.linkerLocked(groupKey, itemID)
	s.wg.Add(1)
	s.mu.Unlock()

	pending := make([]uploads.Pending, len(sources))
	for i, src := range sources {
		pending[i] = src.Pending()
	}
	records := linker.AddPending(pending)

	uctx := uploads.Context{
		ScopeID:      s.scopeID,
		ContextID:    itemID,
		ContextLabel: label,
		GroupKey:     groupKey,
		UploadedBy:   s.opts.UploadedBy,
	}
	if by, ok := ctx.Value(uploadedByKey{}).(string); ok && by != "" {
		uctx.UploadedBy = by
	}
	go func() {
		defer s.wg.Done()
		for _, out := range s.opts.Uploader.Upload(s.ctx, sources, s.sectionKey, uctx) {
			if !out.OK {
				linker.Fail(out.FileName, out.FileSize, out.Error)
			}
		}
	}()
	return records, nil
}

func (s *Session) linkerLocked(groupKey, itemID string) *uploads.Linker {
	k := linkKey{groupKey, itemID}
	l, ok := s.linkers[k]
	if !ok {
		scope := uploads.Scope{
			ScopeID:   s.scopeID,
			Category:  s.sectionKey,
			ContextID: itemID,
			GroupKey:  groupKey,
		}
		l = uploads.NewLinker(scope, s.opts.Hub, s.opts.Clock)
		s.linkers[k] = l
	}
	return l
}

// Uploads returns the upload records of one question.
func (s *Session) Uploads(groupKey, itemID string) []uploads.Record {
	s.mu.Lock()
	l, ok := s.linkers[linkKey{groupKey, itemID}]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Records()
}

// AcceptedTypes lists the extensions the upload service takes.
func (s *Session) AcceptedTypes() []string {
	if s.opts.Uploader == nil {
		return nil
	}
	return s.opts.Uploader.AcceptedTypes()
}

// LastSaved is the time of the last successful save, zero if none.
func (s *Session) LastSaved() time.Time {
	t, _ := s.saver.saved()
	return t
}

// Flush waits for pending saves and returns the last save error.
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.flush(ctx)
}

// Close stops upload listeners, cancels uploads still running and writes
// any pending save. Records and the document stay readable.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	linkers := s.linkers
	s.mu.Unlock()

	for _, l := range linkers {
		l.Close()
	}
	s.cancel()
	s.wg.Wait()
	s.saver.close()
	return s.saver.err()
}
