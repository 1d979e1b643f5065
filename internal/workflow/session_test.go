package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
)

type memStore struct {
	mu      sync.Mutex
	docs    map[string]questionnaire.Document
	saves   int
	readErr error
	saveErr error
}

func newMemStore() *memStore { return &memStore{docs: map[string]questionnaire.Document{}} }

func (m *memStore) ReadSection(_ context.Context, scopeID, key string) (questionnaire.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return questionnaire.Document{}, m.readErr
	}
	return m.docs[scopeID+"/"+key], nil
}

func (m *memStore) SaveSection(_ context.Context, scopeID, key string, doc questionnaire.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs[scopeID+"/"+key] = doc
	m.saves++
	return nil
}

func (m *memStore) get(scopeID, key string) questionnaire.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[scopeID+"/"+key]
}

func (m *memStore) put(scopeID, key, js string) {
	doc, err := questionnaire.DecodeDocument([]byte(js))
	if err != nil {
		panic(err)
	}
	m.docs[scopeID+"/"+key] = doc
}

// fakeUploader confirms every file through the hub, failing names in reject
// before any event is published.
type fakeUploader struct {
	hub    *uploads.Hub
	reject map[string]string
	calls  chan uploads.Context
}

func (f *fakeUploader) Upload(_ context.Context, srcs []uploads.Source, category string, uctx uploads.Context) []uploads.Outcome {
	var out []uploads.Outcome
	for _, s := range srcs {
		if msg, ok := f.reject[s.Name]; ok {
			out = append(out, uploads.Outcome{FileName: s.Name, FileSize: s.Size, Error: msg})
			continue
		}
		id := "doc-" + s.Name
		ev := uploads.Event{
			ID: id, FileName: s.Name, FileSize: s.Size, Extension: s.Extension(),
			ScopeID: uctx.ScopeID, Category: category, ContextID: uctx.ContextID, GroupKey: uctx.GroupKey,
		}
		ev.Status = uploads.StatusUploading
		f.hub.Publish(ev)
		ev.Progress, ev.Status = 100, uploads.StatusSuccess
		f.hub.Publish(ev)
		out = append(out, uploads.Outcome{ID: id, FileName: s.Name, FileSize: s.Size, OK: true})
	}
	if f.calls != nil {
		f.calls <- uctx
	}
	return out
}

func (f *fakeUploader) AcceptedTypes() []string { return []string{".pdf"} }

const materiality = `{"materiality":{
	"Entity":[
		{"id":"A","question":"Any subsidiaries?","type":"radio","options":["Yes","No"]},
		{"condition":{"questionId":"A","operator":"==","value":"Yes"},"questions":[
			{"id":"B","question":"How many?","type":"text"}
		]}
	],
	"Finance":[
		{"id":"F","question":"Revenue","type":"text","answer":"10"}
	]
}}`

func openSession(t *testing.T, store *memStore, opts Options) *Session {
	t.Helper()
	s, err := Open(context.Background(), store, "eng-1", "materiality", opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenEmptyWhenMissing(t *testing.T) {
	s := openSession(t, newMemStore(), Options{})
	assert.True(t, s.Document().IsZero())
	assert.Empty(t, s.Groups())
	assert.NoError(t, s.LoadErr())
}

func TestOpenReadFailureStartsEmpty(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("connection refused")
	s := openSession(t, store, Options{})
	assert.True(t, s.Document().IsZero())
	assert.Error(t, s.LoadErr())
}

func TestOpenStrictIDs(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", `{"m":[{"id":"x","type":"text"},{"id":"x","type":"text"}]}`)
	_, err := Open(context.Background(), store, "eng-1", "materiality", Options{StrictIDs: true})
	require.ErrorIs(t, err, questionnaire.ErrDuplicateID)

	s := openSession(t, store, Options{})
	assert.Len(t, s.Groups(), 1)
}

func TestSetAnswerSavesInBackground(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := openSession(t, store, Options{Clock: func() time.Time { return clock }})

	assert.True(t, s.LastSaved().IsZero())
	require.NoError(t, s.SetAnswer("Entity", "A", "Yes"))
	assert.Equal(t, "Yes", s.Answers("Entity")["A"])

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, clock, s.LastSaved())

	saved := store.get("eng-1", "materiality")
	items, _ := saved.Items("Entity")
	n, ok := questionnaire.FindNode(items, "A")
	require.True(t, ok)
	assert.Equal(t, "Yes", n.Answer())
}

func TestSetAnswerMissingItem(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	s := openSession(t, store, Options{})

	err := s.SetAnswer("Entity", "nope", "x")
	require.ErrorIs(t, err, questionnaire.ErrNodeNotFound)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 0, store.saves)
}

func TestSaveFailureKeepsLastSaved(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	s := openSession(t, store, Options{})

	require.NoError(t, s.SetAnswer("Entity", "A", "No"))
	require.NoError(t, s.Flush(context.Background()))
	first := s.LastSaved()
	require.False(t, first.IsZero())

	store.mu.Lock()
	store.saveErr = errors.New("disk full")
	store.mu.Unlock()

	require.NoError(t, s.SetAnswer("Entity", "A", "Yes"))
	assert.Error(t, s.Flush(context.Background()))
	assert.Equal(t, first, s.LastSaved())

	// the in-memory edit is kept
	assert.Equal(t, "Yes", s.Answers("Entity")["A"])
}

func TestRenderAndProgressFollowEdits(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	s := openSession(t, store, Options{})

	views, err := s.Render("Entity", questionnaire.Filter{})
	require.NoError(t, err)
	require.Len(t, views, 1)

	require.NoError(t, s.SetAnswer("Entity", "A", "Yes"))
	views, err = s.Render("Entity", questionnaire.Filter{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "B", views[1].ID)

	require.NoError(t, s.SetAnswer("Entity", "B", "3"))
	r := s.Progress()
	assert.Equal(t, questionnaire.Progress{Total: 3, Answered: 3}, r.All)

	_, err = s.Render("Missing", questionnaire.Filter{})
	assert.ErrorIs(t, err, questionnaire.ErrNodeNotFound)
}

func TestSubAnswersAndDetails(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	s := openSession(t, store, Options{})

	require.NoError(t, s.SetSubAnswer("Entity", "A", "A-1", "because"))
	require.NoError(t, s.SetSubAnswer("Entity", "A", questionnaire.SubTableKey("A-1"), []any{"row"}))
	require.NoError(t, s.SetDetails("Finance", "F", []any{map[string]any{"k": "v"}}))

	items, _ := s.Document().Items("Entity")
	n, _ := questionnaire.FindNode(items, "A")
	assert.Equal(t, map[string]any{"A-1": "because", "A-1__table": []any{"row"}}, n["subAnswers"])
}

func TestCrossSectionAnswers(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "general", `{"general":[{"id":"A","type":"radio","answer":"Yes"}]}`)
	store.put("eng-1", "materiality", `{"materiality":[
		{"condition":{"questionId":"A","value":"Yes"},"questions":[{"id":"Q","type":"text"}]}
	]}`)
	s := openSession(t, store, Options{CrossSections: []string{"general", "materiality"}})

	assert.Equal(t, "Yes", s.Answers("materiality")["A"])
	views, err := s.Render("materiality", questionnaire.Filter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Q", views[0].ID)
	assert.Equal(t, 1, s.Progress().Visible.Total)
}

func TestAttachReconcilesThroughHub(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	hub := uploads.NewHub()
	calls := make(chan uploads.Context, 1)
	up := &fakeUploader{hub: hub, calls: calls}
	s := openSession(t, store, Options{Uploader: up, Hub: hub, Clock: func() time.Time { return time.UnixMilli(42) }})

	recs, err := s.Attach(context.Background(), "Entity", "A", "", []uploads.Source{
		uploads.BytesSource("a.pdf", []byte("%PDF")),
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "temp-42-0", recs[0].ID)
	assert.True(t, recs[0].Temporary)

	uctx := <-calls
	assert.Equal(t, "A • Any subsidiaries?", uctx.ContextLabel)
	assert.Equal(t, "eng-1", uctx.ScopeID)

	got := s.Uploads("Entity", "A")
	require.Len(t, got, 1)
	assert.Equal(t, "doc-a.pdf", got[0].ID)
	assert.Equal(t, uploads.StatusSuccess, got[0].Status)
	assert.Equal(t, 100, got[0].Progress)
	assert.Empty(t, s.Uploads("Entity", "B"))
}

func TestAttachUploadedBy(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	hub := uploads.NewHub()
	calls := make(chan uploads.Context, 2)
	up := &fakeUploader{hub: hub, calls: calls}
	s := openSession(t, store, Options{Uploader: up, Hub: hub, UploadedBy: "system"})

	src := []uploads.Source{uploads.BytesSource("a.pdf", []byte("%PDF"))}
	_, err := s.Attach(context.Background(), "Entity", "A", "", src)
	require.NoError(t, err)
	assert.Equal(t, "system", (<-calls).UploadedBy)

	_, err = s.Attach(WithUploadedBy(context.Background(), "7"), "Entity", "A", "", src)
	require.NoError(t, err)
	assert.Equal(t, "7", (<-calls).UploadedBy)
}

func TestAttachRejectedFileMarksError(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	hub := uploads.NewHub()
	calls := make(chan uploads.Context, 1)
	up := &fakeUploader{hub: hub, calls: calls, reject: map[string]string{"x.exe": "unsupported file type .exe"}}
	s := openSession(t, store, Options{Uploader: up, Hub: hub})

	_, err := s.Attach(context.Background(), "Entity", "A", "label", []uploads.Source{
		uploads.BytesSource("x.exe", []byte("MZ")),
	})
	require.NoError(t, err)
	<-calls
	require.NoError(t, s.Close())

	got := s.Uploads("Entity", "A")
	require.Len(t, got, 1)
	assert.Equal(t, uploads.StatusError, got[0].Status)
	assert.Equal(t, "unsupported file type .exe", got[0].Error)
}

func TestAttachErrors(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	s := openSession(t, store, Options{})
	_, err := s.Attach(context.Background(), "Entity", "A", "", []uploads.Source{uploads.BytesSource("a.pdf", nil)})
	assert.ErrorIs(t, err, ErrNoUploader)

	hub := uploads.NewHub()
	s2 := openSession(t, store, Options{Uploader: &fakeUploader{hub: hub}, Hub: hub})
	_, err = s2.Attach(context.Background(), "Entity", "A", "", nil)
	assert.ErrorIs(t, err, ErrNoFiles)
	_, err = s2.Attach(context.Background(), "Entity", "zz", "", []uploads.Source{uploads.BytesSource("a.pdf", nil)})
	assert.ErrorIs(t, err, questionnaire.ErrNodeNotFound)
}

func TestCloseUnsubscribesAndFlushes(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	hub := uploads.NewHub()
	calls := make(chan uploads.Context, 1)
	s, err := Open(context.Background(), store, "eng-1", "materiality",
		Options{Uploader: &fakeUploader{hub: hub, calls: calls}, Hub: hub})
	require.NoError(t, err)

	_, err = s.Attach(context.Background(), "Entity", "A", "", []uploads.Source{uploads.BytesSource("a.pdf", []byte("x"))})
	require.NoError(t, err)
	<-calls
	require.NoError(t, s.SetAnswer("Entity", "A", "No"))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, hub.Len())
	assert.ErrorIs(t, s.SetAnswer("Entity", "A", "Yes"), ErrClosed)

	items, _ := store.get("eng-1", "materiality").Items("Entity")
	n, _ := questionnaire.FindNode(items, "A")
	assert.Equal(t, "No", n.Answer())
}

func TestRegistry(t *testing.T) {
	store := newMemStore()
	store.put("eng-1", "materiality", materiality)
	store.put("eng-1", "general", `{"general":[{"id":"G","type":"text","answer":"g"}]}`)
	reg := NewRegistry(store, Options{}, WithCrossSections(map[string][]string{"materiality": {"general"}}))
	defer reg.Close()

	s1, err := reg.Get(context.Background(), "eng-1", "materiality")
	require.NoError(t, err)
	s2, err := reg.Get(context.Background(), "eng-1", "materiality")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, "g", s1.Answers("Entity")["G"])

	_, ok := reg.Lookup("eng-2", "materiality")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, s1.SetAnswer("Entity", "A", "Yes"))
	require.NoError(t, reg.Drop("eng-1", "materiality"))
	assert.Equal(t, 0, reg.Len())
	require.NoError(t, reg.Drop("eng-1", "materiality"))

	s3, err := reg.Get(context.Background(), "eng-1", "materiality")
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, "Yes", s3.Answers("Entity")["A"])
}

// gatedStore blocks reads of one section until release is closed.
type gatedStore struct {
	*memStore
	gated   string
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	reads   map[string]int
}

func (g *gatedStore) ReadSection(ctx context.Context, scopeID, key string) (questionnaire.Document, error) {
	g.mu.Lock()
	g.reads[key]++
	first := g.reads[key] == 1
	g.mu.Unlock()
	if key == g.gated && first {
		close(g.entered)
		<-g.release
	}
	return g.memStore.ReadSection(ctx, scopeID, key)
}

func TestRegistrySlowOpenDoesNotBlockOtherSections(t *testing.T) {
	store := &gatedStore{
		memStore: newMemStore(),
		gated:    "slow",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
		reads:    map[string]int{},
	}
	reg := NewRegistry(store, Options{})
	defer reg.Close()

	type result struct {
		s   *Session
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := reg.Get(context.Background(), "eng-1", "slow")
			results <- result{s, err}
		}()
	}
	<-store.entered

	done := make(chan error, 1)
	go func() {
		_, err := reg.Get(context.Background(), "eng-2", "fast")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Get on another section waited for the slow read")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Get(ctx, "eng-1", "slow")
	assert.ErrorIs(t, err, context.Canceled)

	close(store.release)
	a, b := <-results, <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.s, b.s)
	assert.Equal(t, 1, store.reads["slow"])
	assert.Equal(t, 2, reg.Len())
}
