package cart

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/storage"
)

var (
	ErrActionsRequired   = errors.New("actions required")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrProductRequired   = errors.New("productId required")
	ErrProductNotFound   = errors.New("product not found")
	ErrVisitorRequired   = errors.New("visitor id required")
)

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// Service keeps one cart per storefront visitor. Each visitor's cart lives in
// its own key space of the shared KV; requests for the same visitor are
// serialized so the persisted snapshot follows request order.
type Service struct {
	kv          storage.KV
	productRepo productRepo
	logger      *zap.Logger
	listeners   []cart.Listener

	mu    sync.Mutex
	locks map[string]*visitorLock
}

type visitorLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Service)

// WithListener subscribes l to every visitor cart the service opens.
func WithListener(l cart.Listener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, l) }
}

func New(kv storage.KV, productRepo productRepo, l *zap.Logger, opts ...Option) *Service {
	s := &Service{
		kv:          kv,
		productRepo: productRepo,
		logger:      logger.OrNop(l).Named("cart_service"),
		locks:       make(map[string]*visitorLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UpdateInput struct {
	Actions []UpdateAction `json:"actions"`
}

type UpdateAction struct {
	Action    string `json:"action"`
	ProductID string `json:"productId,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

// Get returns the visitor's current cart.
func (s *Service) Get(ctx context.Context, visitorID string) (cart.Snapshot, error) {
	var snap cart.Snapshot
	err := s.withStore(ctx, visitorID, func(st *cart.Store) error {
		snap = st.Snapshot()
		return nil
	})
	return snap, err
}

// Update applies actions in order. Validation happens before any mutation so a
// rejected request leaves the cart untouched.
func (s *Service) Update(ctx context.Context, visitorID string, in UpdateInput) (cart.Snapshot, error) {
	if len(in.Actions) == 0 {
		return cart.Snapshot{}, ErrActionsRequired
	}
	steps := make([]func(*cart.Store) error, 0, len(in.Actions))
	for _, action := range in.Actions {
		step, err := s.plan(ctx, action)
		if err != nil {
			return cart.Snapshot{}, err
		}
		steps = append(steps, step)
	}

	var snap cart.Snapshot
	err := s.withStore(ctx, visitorID, func(st *cart.Store) error {
		if err := checkQuantities(st.Snapshot(), in.Actions); err != nil {
			return err
		}
		for _, step := range steps {
			if err := step(st); err != nil {
				return err
			}
		}
		snap = st.Snapshot()
		return nil
	})
	return snap, err
}

// Clear empties the visitor's cart.
func (s *Service) Clear(ctx context.Context, visitorID string) (cart.Snapshot, error) {
	return s.Update(ctx, visitorID, UpdateInput{Actions: []UpdateAction{{Action: "clear"}}})
}

func (s *Service) plan(ctx context.Context, action UpdateAction) (func(*cart.Store) error, error) {
	productID := strings.TrimSpace(action.ProductID)
	switch strings.ToLower(strings.TrimSpace(action.Action)) {
	case "addlineitem":
		if productID == "" {
			return nil, ErrProductRequired
		}
		if action.Quantity < 0 {
			return nil, cart.ErrInvalidQuantity
		}
		if s.productRepo == nil {
			return nil, errors.New("product repository unavailable")
		}
		p, err := s.productRepo.GetByID(ctx, productID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, ErrProductNotFound
			}
			return nil, err
		}
		item := fromCatalog(*p)
		qty := action.Quantity
		return func(st *cart.Store) error { return st.Add(ctx, item, qty) }, nil
	case "changelineitemquantity":
		if productID == "" {
			return nil, ErrProductRequired
		}
		qty := action.Quantity
		return func(st *cart.Store) error { st.UpdateQuantity(ctx, productID, qty); return nil }, nil
	case "removelineitem":
		if productID == "" {
			return nil, ErrProductRequired
		}
		return func(st *cart.Store) error { st.Remove(ctx, productID); return nil }, nil
	case "clear":
		return func(st *cart.Store) error { st.Clear(ctx); return nil }, nil
	default:
		return nil, ErrUnsupportedAction
	}
}

// checkQuantities replays actions over the current line quantities and
// rejects the batch when any add would overflow a line.
func checkQuantities(snap cart.Snapshot, actions []UpdateAction) error {
	qty := make(map[string]int, len(snap.Items))
	for _, it := range snap.Items {
		qty[it.ProductID] = it.Quantity
	}
	for _, a := range actions {
		id := strings.TrimSpace(a.ProductID)
		switch strings.ToLower(strings.TrimSpace(a.Action)) {
		case "addlineitem":
			n := a.Quantity
			if n == 0 {
				n = 1
			}
			sum, err := cart.MergeQuantity(qty[id], n)
			if err != nil {
				return err
			}
			qty[id] = sum
		case "changelineitemquantity":
			if _, ok := qty[id]; ok {
				qty[id] = max(a.Quantity, 1)
			}
		case "removelineitem":
			delete(qty, id)
		case "clear":
			clear(qty)
		}
	}
	return nil
}

func (s *Service) withStore(ctx context.Context, visitorID string, fn func(*cart.Store) error) error {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return ErrVisitorRequired
	}
	release := s.lock(visitorID)
	defer release()

	st := cart.New(ctx, storage.WithPrefix(s.kv, "visitor:"+visitorID+":"),
		cart.WithLogger(s.logger.With(zap.String("visitor_id", visitorID))))
	for _, l := range s.listeners {
		unsubscribe := st.Subscribe(l)
		defer unsubscribe()
	}
	return fn(st)
}

func (s *Service) lock(visitorID string) func() {
	s.mu.Lock()
	vl, ok := s.locks[visitorID]
	if !ok {
		vl = &visitorLock{}
		s.locks[visitorID] = vl
	}
	vl.refs++
	s.mu.Unlock()

	vl.mu.Lock()
	return func() {
		vl.mu.Unlock()
		s.mu.Lock()
		vl.refs--
		if vl.refs == 0 {
			delete(s.locks, visitorID)
		}
		s.mu.Unlock()
	}
}

func fromCatalog(p domain.Product) cart.Product {
	return cart.Product{
		ID:    p.ID,
		Price: decimal.New(p.PriceCents, -2),
		Name:  p.Name,
		Brand: p.Brand,
		Image: p.ImageURL,
	}
}
