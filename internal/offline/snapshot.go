package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshot is the last known good copy of the four core collections.
// In Save, a nil collection means "keep what is stored".
type Snapshot struct {
	Users     []orders.User      `json:"users"`
	Products  []orders.StockItem `json:"products"`
	Orders    []orders.Order     `json:"orders"`
	Inventory []orders.StockItem `json:"inventory"`
	LastSync  time.Time          `json:"last_sync"`
}

type DurableSnapshotStore interface {
	Save(ctx context.Context, partial Snapshot) error
	Load() (Snapshot, bool)
	Clear(ctx context.Context) error
}

type Options struct {
	Redis  *redis.Client
	Key    string
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

// Store keeps the snapshot in memory for synchronous reads and persists it
// as a single Redis blob.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot

	rdb *redis.Client
	key string
	ttl time.Duration
	now func() time.Time
	log *zap.Logger
}

var _ DurableSnapshotStore = (*Store)(nil)

func New(opts Options) *Store {
	s := &Store{
		rdb: opts.Redis,
		key: opts.Key,
		ttl: opts.TTL,
		now: opts.Now,
		log: logger.OrNop(opts.Logger),
	}
	if s.key == "" {
		s.key = redisx.KeyOfflineSnapshot
	}
	if s.ttl <= 0 {
		s.ttl = redisx.TTLOffline
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Save merges partial over the stored snapshot and stamps LastSync.
// The in-memory copy is updated even when persisting fails.
func (s *Store) Save(ctx context.Context, partial Snapshot) error {
	s.mu.Lock()
	next := Snapshot{}
	if s.snap != nil {
		next = *s.snap
	}
	if partial.Users != nil {
		next.Users = partial.Users
	}
	if partial.Products != nil {
		next.Products = partial.Products
	}
	if partial.Orders != nil {
		next.Orders = partial.Orders
	}
	if partial.Inventory != nil {
		next.Inventory = partial.Inventory
	}
	next.LastSync = s.now().UTC()
	s.snap = &next
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	// Redis keeps it a little longer than it is valid; Load decides validity.
	if err := s.rdb.Set(ctx, s.key, raw, 2*s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot persist: %w", err)
	}
	return nil
}

// Load returns the snapshot unless it was never saved or now - LastSync > TTL.
func (s *Store) Load() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Snapshot{}, false
	}
	if s.now().Sub(s.snap.LastSync) > s.ttl {
		return Snapshot{}, false
	}
	return *s.snap, true
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()

	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.key).Err()
}

// Hydrate reads the persisted blob back into memory. A missing blob is not an error.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot read: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn("discarding unreadable offline snapshot", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil || snap.LastSync.After(s.snap.LastSync) {
		s.snap = &snap
	}
	s.log.Info("offline snapshot restored",
		zap.Time("last_sync", snap.LastSync),
		zap.Int("products", len(snap.Products)), zap.Int("orders", len(snap.Orders)))
	return nil
}

// LastSync is the zero time when nothing was saved.
func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return time.Time{}
	}
	return s.snap.LastSync
}
