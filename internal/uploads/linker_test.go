package uploads

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

func testScope() Scope {
	return Scope{ScopeID: "eng-1", Category: "materiality", ContextID: "q1", GroupKey: "Entity"}
}

func inScope(e Event) Event {
	s := testScope()
	e.ScopeID, e.Category, e.ContextID, e.GroupKey = s.ScopeID, s.Category, s.ContextID, s.GroupKey
	return e
}

func TestAddPending(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	recs := l.AddPending([]Pending{
		{FileName: "a.pdf", FileSize: 100},
		{FileName: "b.PNG", FileSize: 20, PreviewRef: "blob:1"},
	})
	require.Len(t, recs, 2)
	assert.Equal(t, "temp-1700000000000-0", recs[0].ID)
	assert.Equal(t, "temp-1700000000000-1", recs[1].ID)
	assert.Equal(t, StatusUploading, recs[0].Status)
	assert.Equal(t, 0, recs[0].Progress)
	assert.True(t, recs[0].Temporary)
	assert.False(t, recs[0].Previewable)
	assert.True(t, recs[1].Previewable)
	assert.Equal(t, ".png", recs[1].Extension)
	assert.Equal(t, "blob:1", recs[1].PreviewRef)

	more := l.AddPending([]Pending{{FileName: "c.txt", FileSize: 1}})
	assert.Equal(t, "temp-1700000000000-2", more[0].ID)
	assert.Len(t, l.Records(), 3)
}

func TestReconciliation(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.AddPending([]Pending{{FileName: "a.pdf", FileSize: 100}})

	ok := l.Apply(inScope(Event{ID: "real-1", FileName: "a.pdf", FileSize: 100, Status: StatusUploading}))
	require.True(t, ok)
	recs := l.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "real-1", recs[0].ID)
	assert.Equal(t, StatusUploading, recs[0].Status)
	assert.False(t, recs[0].Temporary)

	l.Apply(inScope(Event{ID: "real-1", Progress: 100, Status: StatusSuccess}))
	recs = l.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "real-1", recs[0].ID)
	assert.Equal(t, StatusSuccess, recs[0].Status)
	assert.Equal(t, 100, recs[0].Progress)
	assert.Equal(t, "a.pdf", recs[0].FileName)
}

func TestReconciliationIdempotent(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.AddPending([]Pending{{FileName: "a.pdf", FileSize: 100}})

	e := inScope(Event{ID: "real-1", FileName: "a.pdf", FileSize: 100, Progress: 40, Status: StatusUploading})
	l.Apply(e)
	once := l.Records()
	l.Apply(e)
	assert.Equal(t, once, l.Records())
}

func TestReconciliationKeepsPreviewAndPosition(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.AddPending([]Pending{
		{FileName: "first.jpg", FileSize: 5, PreviewRef: "blob:first"},
		{FileName: "second.jpg", FileSize: 6, PreviewRef: "blob:second"},
	})
	l.Apply(inScope(Event{ID: "r2", FileName: "second.jpg", FileSize: 6, Extension: ".jpg", Status: StatusUploading}))

	recs := l.Records()
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Temporary)
	assert.Equal(t, "r2", recs[1].ID)
	assert.Equal(t, "blob:second", recs[1].PreviewRef)
	assert.True(t, recs[1].Previewable)
}

func TestSameNameDifferentSizeNotMatched(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.AddPending([]Pending{{FileName: "a.pdf", FileSize: 100}})
	l.Apply(inScope(Event{ID: "r", FileName: "a.pdf", FileSize: 101, Status: StatusUploading}))
	assert.Len(t, l.Records(), 2)
}

func TestEventWithoutTempIsInserted(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.Apply(inScope(Event{ID: "r9", Status: StatusError, Error: "boom"}))
	r, ok := l.Get("r9")
	require.True(t, ok)
	assert.Equal(t, "r9", r.FileName)
	assert.Equal(t, StatusError, r.Status)
	assert.Equal(t, "boom", r.Error)
}

func TestApplyFiltersScope(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.AddPending([]Pending{{FileName: "a.pdf", FileSize: 100}})

	base := inScope(Event{ID: "x", FileName: "a.pdf", FileSize: 100, Status: StatusUploading})
	others := []func(*Event){
		func(e *Event) { e.Category = "other" },
		func(e *Event) { e.ContextID = "q2" },
		func(e *Event) { e.GroupKey = "Finance" },
		func(e *Event) { e.ScopeID = "eng-2" },
	}
	for _, mutate := range others {
		e := base
		mutate(&e)
		assert.False(t, l.Apply(e))
	}
	recs := l.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Temporary)
}

func TestFail(t *testing.T) {
	l := NewLinker(testScope(), nil, fixedClock)
	l.AddPending([]Pending{{FileName: "a.exe", FileSize: 3}})
	assert.Equal(t, 1, l.Pending())
	assert.True(t, l.Fail("a.exe", 3, "unsupported file type"))
	recs := l.Records()
	assert.Equal(t, StatusError, recs[0].Status)
	assert.Equal(t, "unsupported file type", recs[0].Error)
	assert.Equal(t, 0, l.Pending())
	assert.False(t, l.Fail("a.exe", 3, "again"))
}

func TestLinkerHubLifetime(t *testing.T) {
	hub := NewHub()
	l := NewLinker(testScope(), hub, fixedClock)
	require.Equal(t, 1, hub.Len())

	hub.Publish(inScope(Event{ID: "r1", FileName: "a.pdf", Status: StatusUploading}))
	assert.Len(t, l.Records(), 1)

	l.Close()
	l.Close()
	assert.Equal(t, 0, hub.Len())
	hub.Publish(inScope(Event{ID: "r2", FileName: "b.pdf", Status: StatusUploading}))
	assert.Len(t, l.Records(), 1)

	l.Clear()
	assert.Empty(t, l.Records())
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	var got []string
	a := hub.Subscribe(func(e Event) { got = append(got, "a:"+e.ID) })
	hub.Subscribe(func(e Event) { got = append(got, "b:"+e.ID) })

	hub.Publish(Event{ID: "1"})
	a.Close()
	hub.Publish(Event{ID: "2"})
	assert.Equal(t, []string{"a:1", "b:1", "b:2"}, got)
}

func TestSources(t *testing.T) {
	s := BytesSource("Report.PDF", []byte("hello"))
	assert.Equal(t, int64(5), s.Size)
	assert.Equal(t, ".pdf", s.Extension())
	rc, err := s.Open()
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	fs, err := FileSource(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", fs.Name)
	assert.Equal(t, int64(3), fs.Size)

	_, err = FileSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = Source{Name: "x"}.Open()
	assert.Error(t, err)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "q1", Label("q1", ""))
	assert.Equal(t, "q1 • Board?", Label("q1", "Board?"))
}
