package cart

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/storage"
)

// Store is the single source of truth for one cart. Mutations are serialized;
// the snapshot persisted after mutation N reflects mutations 1..N.
type Store struct {
	mu        sync.Mutex
	kv        storage.KV
	key       string
	logger    *zap.Logger
	timeout   time.Duration
	items     []LineItem
	index     map[string]int
	version   uint64
	dirty     bool
	listeners map[uint64]Listener
	nextID    uint64
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key (default DefaultKey).
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithWriteTimeout bounds each storage read/write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New builds a Store and rehydrates it from kv. A missing or unreadable
// snapshot yields an empty cart.
func New(ctx context.Context, kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		key:       DefaultKey,
		timeout:   2 * time.Second,
		index:     make(map[string]int),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger)
	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("cart load failed, starting empty", zap.String("key", s.key), zap.Error(err))
		}
		return
	}
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("cart snapshot unreadable, starting empty", zap.String("key", s.key), zap.Error(err))
		return
	}
	for _, it := range p.Items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" || it.Quantity < 1 || it.UnitPrice.IsNegative() {
			continue
		}
		if i, ok := s.index[id]; ok {
			n, err := MergeQuantity(s.items[i].Quantity, it.Quantity)
			if err != nil {
				n = math.MaxInt
			}
			s.items[i].Quantity = n
			continue
		}
		it.ProductID = id
		s.index[id] = len(s.items)
		s.items = append(s.items, it)
	}
}

// Add puts quantity units of p in the cart. A zero quantity means one unit.
// Adding a product already present increments its quantity and keeps the
// original price snapshot.
func (s *Store) Add(ctx context.Context, p Product, quantity int) error {
	if err := p.validate(); err != nil {
		return err
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if quantity == 0 {
		quantity = 1
	}
	id := strings.TrimSpace(p.ID)

	s.mu.Lock()
	if i, ok := s.index[id]; ok {
		n, err := MergeQuantity(s.items[i].Quantity, quantity)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.items[i].Quantity = n
	} else {
		s.index[id] = len(s.items)
		s.items = append(s.items, LineItem{
			ProductID: id,
			Quantity:  quantity,
			UnitPrice: p.Price,
			Name:      p.Name,
			Brand:     p.Brand,
			Image:     p.Image,
		})
	}
	s.commit(ctx, OpAdd)
	return nil
}

// UpdateQuantity sets the quantity of an existing line. Quantities below one
// are clamped to one; removal is done with Remove. Unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	s.mu.Lock()
	i, ok := s.index[strings.TrimSpace(productID)]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.items[i].Quantity = quantity
	s.commit(ctx, OpUpdateQuantity)
}

// Remove deletes the line for productID if present.
func (s *Store) Remove(ctx context.Context, productID string) {
	s.mu.Lock()
	i, ok := s.index[strings.TrimSpace(productID)]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.reindex()
	s.commit(ctx, OpRemove)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = nil
	s.index = make(map[string]int)
	s.commit(ctx, OpClear)
}

// Total is the sum of quantity * unit price over all lines.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subtotal(s.items)
}

// Items returns the lines in insertion order.
func (s *Store) Items() []LineItem {
	return s.Snapshot().Items
}

// Count is the number of units in the cart.
func (s *Store) Count() int {
	return s.Snapshot().Count()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers l and returns a function that unregisters it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Dirty reports whether the last write to storage failed.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// commit persists and notifies. It must be called with s.mu held and releases it.
func (s *Store) commit(ctx context.Context, op Op) {
	s.version++
	snap := s.snapshotLocked()
	s.persistLocked(ctx, snap)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	ev := Event{Op: op, Snapshot: snap}
	for _, l := range listeners {
		l(ev)
	}
}

func (s *Store) persistLocked(ctx context.Context, snap Snapshot) {
	raw, err := json.Marshal(persisted{Items: snap.Items})
	if err != nil {
		s.dirty = true
		s.logger.Error("cart encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key, string(raw)); err != nil {
		s.dirty = true
		s.logger.Warn("cart persist failed, keeping in-memory state",
			zap.String("key", s.key),
			zap.Uint64("version", snap.Version),
			zap.Error(err),
		)
		return
	}
	if s.dirty {
		s.logger.Info("cart storage re-synced", zap.String("key", s.key), zap.Uint64("version", snap.Version))
	}
	s.dirty = false
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]LineItem, len(s.items))
	copy(items, s.items)
	return Snapshot{Items: items, Version: s.version}
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, it := range s.items {
		s.index[it.ProductID] = i
	}
}
