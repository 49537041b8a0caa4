package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryProvider is a process-local Provider backed by a synchronized map
// with explicit TTL eviction. A janitor goroutine sweeps expired entries so
// read paths never carry ad hoc timestamp checks.
type MemoryProvider struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryProvider creates a provider sweeping expired entries every
// sweepInterval. A non-positive interval defaults to one minute.
func NewMemoryProvider(sweepInterval time.Duration) *MemoryProvider {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	p := &MemoryProvider{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go p.janitor(sweepInterval)
	return p
}

// Get fetches bytes by key, returning ErrCacheMiss for absent or expired keys.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.data...), nil
}

// Set stores bytes with the provided TTL. A zero TTL keeps the entry until
// the provider is closed.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{data: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.entries[key] = entry
	p.mu.Unlock()
	return nil
}

// Del removes the key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}

// Close stops the janitor and drops all entries.
func (p *MemoryProvider) Close() error {
	p.once.Do(func() { close(p.stop) })
	p.mu.Lock()
	p.entries = make(map[string]memoryEntry)
	p.mu.Unlock()
	return nil
}

// Len reports the current entry count, expired entries included until swept.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

func (p *MemoryProvider) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			for key, entry := range p.entries {
				if entry.expired(now) {
					delete(p.entries, key)
				}
			}
			p.mu.Unlock()
		}
	}
}
