package workflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/questionnaire"
)

// autosaver pushes the latest document of a session to its store on a single
// goroutine. Scheduling never blocks; when several documents are scheduled
// while a save is running only the newest one is written next.
type autosaver struct {
	name    string
	save    func(ctx context.Context, doc questionnaire.Document) error
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	pending   questionnaire.Document
	dirty     bool
	lastSaved time.Time
	lastErr   error
	saves     int

	kick   chan struct{}
	flushc chan chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newAutosaver(name string, timeout time.Duration, now func() time.Time, save func(context.Context, questionnaire.Document) error) *autosaver {
	a := &autosaver{
		name:    name,
		save:    save,
		timeout: timeout,
		now:     now,
		kick:    make(chan struct{}, 1),
		flushc:  make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// schedule replaces the pending document and wakes the loop.
func (a *autosaver) schedule(doc questionnaire.Document) {
	a.mu.Lock()
	a.pending = doc
	a.dirty = true
	a.mu.Unlock()

	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *autosaver) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.kick:
			a.drain()
		case reply := <-a.flushc:
			a.drain()
			close(reply)
		case <-a.stop:
			a.drain()
			return
		}
	}
}

func (a *autosaver) drain() {
	for {
		a.mu.Lock()
		if !a.dirty {
			a.mu.Unlock()
			return
		}
		doc := a.pending
		a.dirty = false
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.save(ctx, doc)
		cancel()

		a.mu.Lock()
		if err != nil {
			log.Printf("Warning: autosave %s failed: %v", a.name, err)
			a.lastErr = err
		} else {
			a.lastSaved = a.now()
			a.lastErr = nil
			a.saves++
		}
		a.mu.Unlock()
	}
}

// flush waits until every scheduled document has been attempted and returns
// the result of the last attempt.
func (a *autosaver) flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case a.flushc <- reply:
	case <-a.done:
		return a.err()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return a.err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *autosaver) close() {
	a.once.Do(func() {
		close(a.stop)
		<-a.done
	})
}

func (a *autosaver) err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *autosaver) saved() (time.Time, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSaved, a.saves
}
