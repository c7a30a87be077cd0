package session

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/signup/pantry/jobs"
	"go.uber.org/zap"
)

// MemoryStore keeps records in process memory. Records do not survive a
// restart and are not shared between instances.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time

	purger *jobs.Periodic
	closed sync.Once
}

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// CleanupInterval is how often expired records are purged.
	// Default: 10 minutes.
	CleanupInterval time.Duration

	Logger *zap.Logger
}

// NewMemoryStore creates a memory store with the default config.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(MemoryStoreConfig{})
}

// NewMemoryStoreWithConfig creates a memory store and starts its purge job.
func NewMemoryStoreWithConfig(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	s := &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
	s.purger = jobs.Every(jobs.PeriodicJob{
		Name:     "snapshot-purge",
		Interval: cfg.CleanupInterval,
		Handler: func(context.Context) error {
			s.Purge()
			return nil
		},
	}, cfg.Logger)
	return s
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	switch {
	case !ok:
		return nil, ErrNotFound
	case rec.Expired(s.now()):
		return nil, ErrExpired
	}
	return rec.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec.Expired(s.now()) {
		return nil
	}
	c := rec.clone()
	s.mu.Lock()
	s.records[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close stops the purge job. Records stay readable. Close may be called
// more than once.
func (s *MemoryStore) Close() error {
	var err error
	s.closed.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.purger.Stop(ctx)
	})
	return err
}

// Purge drops expired records and returns how many it dropped.
func (s *MemoryStore) Purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// Size returns the number of records held, expired ones included.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
