package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/oxidb"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("pool: closed")

// Pool is a round-robin connection pool for OxiDB with auto-reconnect.
type Pool struct {
	addr    string
	timeout time.Duration

	clients []*oxidb.Client
	mu      []sync.Mutex
	idx     uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool
}

// NewPool creates a pool of size OxiDB connections to addr.
func NewPool(ctx context.Context, addr string, size int, timeout time.Duration) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		addr:    addr,
		timeout: timeout,
		clients: make([]*oxidb.Client, size),
		mu:      make([]sync.Mutex, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		c, err := oxidb.Connect(ctx, addr, timeout)
		if err != nil {
			close(p.done)
			p.Close()
			return nil, fmt.Errorf("pool: connect client %d: %w", i, err)
		}
		p.clients[i] = c
	}
	// Keepalive pings every 10 seconds to prevent idle timeout
	go p.keepalive(10 * time.Second)
	return p, nil
}

// Get returns the next client in round-robin order. A client that lost
// frame sync is replaced before being handed out.
func (p *Pool) Get(ctx context.Context) (*oxidb.Client, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	n := atomic.AddUint64(&p.idx, 1)
	i := int(n % uint64(len(p.clients)))

	p.mu[i].Lock()
	defer p.mu[i].Unlock()
	c := p.clients[i]
	if c != nil && !c.Broken() {
		return c, nil
	}
	c, err := p.dial(ctx, i)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Size is the number of connections in the pool.
func (p *Pool) Size() int { return len(p.clients) }

// dial replaces the client at index i. Caller holds p.mu[i].
func (p *Pool) dial(ctx context.Context, i int) (*oxidb.Client, error) {
	if p.clients[i] != nil {
		p.clients[i].Close()
		p.clients[i] = nil
	}
	c, err := oxidb.Connect(ctx, p.addr, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("pool: reconnect client %d: %w", i, err)
	}
	p.clients[i] = c
	return c, nil
}

func (p *Pool) keepalive(every time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for i := range p.clients {
				p.ping(i)
			}
		}
	}
}

func (p *Pool) ping(i int) {
	p.mu[i].Lock()
	defer p.mu[i].Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if c := p.clients[i]; c != nil && !c.Broken() {
		_, err := c.Ping(ctx)
		if err == nil {
			return
		}
		log.Printf("Warning: pool: client %d ping failed, reconnecting: %v", i, err)
	}
	if _, err := p.dial(ctx, i); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// Close stops the keepalive loop and closes all connections.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
		<-p.done
		for i := range p.clients {
			p.mu[i].Lock()
			if p.clients[i] != nil {
				p.clients[i].Close()
				p.clients[i] = nil
			}
			p.mu[i].Unlock()
		}
	})
}
