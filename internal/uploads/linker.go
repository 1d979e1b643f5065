package uploads

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Scope is the (category, contextId, groupKey) triple that ties uploads to
// one question. ScopeID narrows it to one engagement; empty matches any.
type Scope struct {
	ScopeID   string `json:"scopeId,omitempty"`
	Category  string `json:"category"`
	ContextID string `json:"contextId"`
	GroupKey  string `json:"groupKey"`
}

// Matches reports whether e belongs to this scope.
func (s Scope) Matches(e Event) bool {
	if s.ScopeID != "" && e.ScopeID != s.ScopeID {
		return false
	}
	return e.Category == s.Category && e.ContextID == s.ContextID && e.GroupKey == s.GroupKey
}

// Record is one upload as seen by the question that started it.
type Record struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	Extension   string `json:"extension,omitempty"`
	Progress    int    `json:"progress"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	PreviewRef  string `json:"previewRef,omitempty"`
	Previewable bool   `json:"previewable"`
	Temporary   bool   `json:"temporary"`
}

// Pending is a file the user has just picked, before the transport sees it.
type Pending struct {
	FileName   string
	FileSize   int64
	PreviewRef string
}

// Linker keeps the upload records of one question. Temporary records are
// created on file selection and replaced by the confirmed record once an
// event with the same file name and size arrives.
type Linker struct {
	scope Scope
	now   func() time.Time

	mu      sync.Mutex
	records []Record
	seq     int
	sub     *Subscription
}

// NewLinker creates a linker for scope. When hub is non-nil the linker
// subscribes to it until Close. A nil clock uses time.Now.
func NewLinker(scope Scope, hub *Hub, clock func() time.Time) *Linker {
	if clock == nil {
		clock = time.Now
	}
	l := &Linker{scope: scope, now: clock}
	if hub != nil {
		l.sub = hub.Subscribe(func(e Event) { l.Apply(e) })
	}
	return l
}

// Scope returns the linker's scope.
func (l *Linker) Scope() Scope { return l.scope }

// AddPending creates one temporary record per file with status uploading and
// progress 0. Ids have the form temp-<unix millis>-<index>; the index keeps
// counting across calls so two batches in the same millisecond never collide.
func (l *Linker) AddPending(files []Pending) []Record {
	ts := l.now().UnixMilli()

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(files))
	for _, f := range files {
		ext := Extension(f.FileName)
		r := Record{
			ID:          fmt.Sprintf("temp-%d-%d", ts, l.seq),
			FileName:    f.FileName,
			FileSize:    f.FileSize,
			Extension:   ext,
			Status:      StatusUploading,
			Previewable: Previewable(ext),
			Temporary:   true,
		}
		if r.Previewable {
			r.PreviewRef = f.PreviewRef
		}
		l.seq++
		l.records = append(l.records, r)
		out = append(out, r)
	}
	return out
}

// Apply folds e into the record set and reports whether e was in scope.
//
// An event for an id already present updates progress, status and error in
// place. Otherwise the first temporary record with the same file name and
// size is replaced at its position by the confirmed record, keeping its
// preview reference. Anything else is appended.
func (l *Linker) Apply(e Event) bool {
	if !l.scope.Matches(e) || e.ID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexOf(e.ID); i >= 0 {
		r := &l.records[i]
		r.Progress = e.Progress
		r.Status = e.Status
		r.Error = e.Error
		if e.Extension != "" {
			r.Extension = e.Extension
		}
		return true
	}

	i := slices.IndexFunc(l.records, func(r Record) bool {
		return r.Temporary && r.FileName == e.FileName && r.FileSize == e.FileSize
	})
	if i >= 0 {
		temp := l.records[i]
		r := recordFromEvent(e)
		if r.FileName == "" {
			r.FileName = temp.FileName
		}
		if r.FileSize == 0 {
			r.FileSize = temp.FileSize
		}
		if r.Extension == "" {
			r.Extension = temp.Extension
		}
		r.PreviewRef = temp.PreviewRef
		r.Previewable = Previewable(r.Extension)
		l.records[i] = r
		return true
	}

	r := recordFromEvent(e)
	if r.FileName == "" {
		r.FileName = e.ID
	}
	l.records = append(l.records, r)
	return true
}

// Fail marks the first temporary record for the given file as failed. It is
// used when the upload call rejects a file before any event is emitted.
func (l *Linker) Fail(fileName string, fileSize int64, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.records, func(r Record) bool {
		return r.Temporary && r.Status == StatusUploading && r.FileName == fileName && r.FileSize == fileSize
	})
	if i < 0 {
		return false
	}
	l.records[i].Status = StatusError
	l.records[i].Error = msg
	return true
}

// Records returns a snapshot in insertion order.
func (l *Linker) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// Get returns the record with the given id.
func (l *Linker) Get(id string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexOf(id); i >= 0 {
		return l.records[i], true
	}
	return Record{}, false
}

// Pending reports how many records have not reached a terminal status.
func (l *Linker) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if !r.Status.Terminal() {
			n++
		}
	}
	return n
}

// Clear drops every record, terminal ones included.
func (l *Linker) Clear() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}

// Close stops listening to the hub. Records stay readable.
func (l *Linker) Close() {
	if l.sub != nil {
		l.sub.Close()
	}
}

func (l *Linker) indexOf(id string) int {
	return slices.IndexFunc(l.records, func(r Record) bool { return r.ID == id })
}

func recordFromEvent(e Event) Record {
	return Record{
		ID:          e.ID,
		FileName:    e.FileName,
		FileSize:    e.FileSize,
		Extension:   e.Extension,
		Progress:    e.Progress,
		Status:      e.Status,
		Error:       e.Error,
		Previewable: Previewable(e.Extension),
	}
}
