package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultProducerTTL is how long a silent producer stays listed.
const DefaultProducerTTL = 5 * time.Minute

// Producer is what the server knows about one sample source.
type Producer struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"` // grpc, mqtt or websocket
	Samples   uint64    `json:"samples"`
	Dropped   uint64    `json:"dropped"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Producers is a thread-safe registry of sample producers, keyed by ID.
// A background goroutine (Run) periodically evicts producers that have not
// delivered anything within the configured TTL.
type Producers struct {
	mu   sync.RWMutex
	data map[string]*Producer
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewProducers creates a registry with the given TTL.
func NewProducers(ttl time.Duration) *Producers {
	if ttl <= 0 {
		ttl = DefaultProducerTTL
	}
	return &Producers{
		data: make(map[string]*Producer),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen records a delivery of accepted samples and dropped ones from id.
func (p *Producers) Seen(id, transport string, accepted, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	e, ok := p.data[id]
	if !ok {
		e = &Producer{ID: id, FirstSeen: now}
		p.data[id] = e
	}
	e.Transport = transport
	e.Samples += uint64(accepted)
	e.Dropped += uint64(dropped)
	e.LastSeen = now
}

// Get returns a copy of the producer with the given ID.
func (p *Producers) Get(id string) (Producer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.data[id]
	if !ok {
		return Producer{}, false
	}
	return *e, true
}

// List returns copies of all producers seen within the TTL, sorted by ID.
// Stale entries that have not yet been evicted are excluded.
func (p *Producers) List() []Producer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cutoff := p.now().Add(-p.ttl)
	out := make([]Producer, 0, len(p.data))
	for _, e := range p.data {
		if e.LastSeen.After(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the total number of producers held, including stale ones.
func (p *Producers) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}

// Evict removes producers whose LastSeen is older than now minus TTL.
// It returns the number removed.
func (p *Producers) Evict(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := now.Add(-p.ttl)
	removed := 0
	for id, e := range p.data {
		if !e.LastSeen.After(cutoff) {
			delete(p.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (p *Producers) Run(ctx context.Context) {
	interval := p.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := p.Evict(now); n > 0 {
				slog.Debug("store: evicted silent producers", "count", n)
			}
		}
	}
}
