package cart

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/storage"
)

type flakyKV struct {
	*storage.Memory
	failSet bool
	sets    int
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.sets++
	if f.failSet {
		return errors.New("quota exceeded")
	}
	return f.Memory.Set(ctx, key, value)
}

func product(id string, price int64) Product {
	return Product{ID: id, Price: decimal.NewFromInt(price), Name: "Item " + id, Brand: "Acme", Image: "/img/" + id + ".png"}
}

func TestAddSameProductMergesQuantity(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())

	require.NoError(t, s.Add(ctx, product("p1", 10), 2))
	require.NoError(t, s.Add(ctx, product("p1", 10), 3))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestAddDefaultsToOneUnit(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())

	require.NoError(t, s.Add(ctx, product("p1", 10), 0))
	assert.Equal(t, 1, s.Count())
}

func TestAddKeepsFirstPriceSnapshot(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())

	require.NoError(t, s.Add(ctx, product("p1", 10), 1))
	require.NoError(t, s.Add(ctx, product("p1", 99), 1))

	assert.True(t, s.Items()[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(20)))
}

func TestAddRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: storage.NewMemory()}
	s := New(ctx, kv)
	calls := 0
	s.Subscribe(func(Event) { calls++ })

	assert.ErrorIs(t, s.Add(ctx, Product{ID: "  ", Price: decimal.NewFromInt(1)}, 1), ErrInvalidProduct)
	assert.ErrorIs(t, s.Add(ctx, Product{ID: "p1", Price: decimal.NewFromInt(-1)}, 1), ErrInvalidProduct)
	assert.ErrorIs(t, s.Add(ctx, product("p1", 1), -2), ErrInvalidQuantity)

	assert.Empty(t, s.Items())
	assert.Zero(t, kv.sets)
	assert.Zero(t, calls)
}

func TestTotal(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())

	require.NoError(t, s.Add(ctx, product("p1", 100), 2))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(200)), "got %s", s.Total())

	require.NoError(t, s.Add(ctx, Product{ID: "p2", Price: decimal.RequireFromString("19.99")}, 3))
	assert.Equal(t, "259.97", s.Total().StringFixed(2))
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())
	require.NoError(t, s.Add(ctx, product("p1", 5), 4))

	s.UpdateQuantity(ctx, "p1", 7)
	assert.Equal(t, 7, s.Items()[0].Quantity)

	s.UpdateQuantity(ctx, "p1", 0)
	require.Len(t, s.Items(), 1)
	assert.Equal(t, 1, s.Items()[0].Quantity)

	s.UpdateQuantity(ctx, "p1", -3)
	assert.Equal(t, 1, s.Items()[0].Quantity)
}

func TestUpdateQuantityUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())
	require.NoError(t, s.Add(ctx, product("p1", 5), 1))
	before := s.Snapshot()

	s.UpdateQuantity(ctx, "nope", 3)
	assert.Equal(t, before, s.Snapshot())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())
	require.NoError(t, s.Add(ctx, product("a", 1), 1))
	require.NoError(t, s.Add(ctx, product("b", 2), 1))
	require.NoError(t, s.Add(ctx, product("c", 3), 1))

	s.Remove(ctx, "b")
	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ProductID)
	assert.Equal(t, "c", items[1].ProductID)

	s.UpdateQuantity(ctx, "c", 4)
	assert.Equal(t, 4, s.Items()[1].Quantity)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: storage.NewMemory()}
	s := New(ctx, kv)
	require.NoError(t, s.Add(ctx, product("a", 1), 1))
	before := s.Snapshot()
	sets := kv.sets

	assert.NotPanics(t, func() { s.Remove(ctx, "missing") })
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, sets, kv.sets)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, kv)
	require.NoError(t, s.Add(ctx, product("a", 1), 3))
	require.NoError(t, s.Add(ctx, product("b", 2), 1))

	s.Clear(ctx)
	assert.Empty(t, s.Items())
	assert.True(t, s.Total().IsZero())

	raw, err := kv.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, raw)

	s.Clear(ctx)
	assert.Empty(t, s.Items())
}

type step func(ctx context.Context, s *Store)

func add(id string, price int64, n int) step {
	return func(ctx context.Context, s *Store) { _ = s.Add(ctx, product(id, price), n) }
}

func update(id string, n int) step {
	return func(ctx context.Context, s *Store) { s.UpdateQuantity(ctx, id, n) }
}

func remove(id string) step {
	return func(ctx context.Context, s *Store) { s.Remove(ctx, id) }
}

func clearCart() step {
	return func(ctx context.Context, s *Store) { s.Clear(ctx) }
}

func assertReloadMatches(t *testing.T, kv storage.KV, s *Store) {
	t.Helper()
	reloaded := New(context.Background(), kv)
	want := s.Items()
	got := reloaded.Items()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ProductID, got[i].ProductID)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice))
		assert.Equal(t, want[i].Name, got[i].Name)
	}
	assert.True(t, s.Total().Equal(reloaded.Total()))
}

func TestPersistReloadRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{name: "empty"},
		{name: "merge and reorder", steps: []step{
			add("a", 3, 2), add("b", 1, 1), add("c", 7, 1), update("b", 9), remove("a"), add("a", 3, 1),
		}},
		{name: "clamp", steps: []step{add("a", 5, 4), update("a", -3), update("missing", 7)}},
		{name: "clear then add", steps: []step{add("a", 1, 1), add("b", 2, 2), clearCart(), add("c", 3, 3)}},
		{name: "rejected overflow", steps: []step{add("a", 1, math.MaxInt), add("a", 1, 2), add("b", 2, 1)}},
		{name: "remove everything", steps: []step{add("a", 1, 1), remove("a"), remove("a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := storage.NewMemory()
			s := New(ctx, kv)
			for _, st := range tt.steps {
				st(ctx, s)
			}
			assertReloadMatches(t, kv, s)
		})
	}
}

func TestPersistReloadRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ids := []string{"a", "b", "c", "d"}
	for seq := 0; seq < 50; seq++ {
		ctx := context.Background()
		kv := storage.NewMemory()
		s := New(ctx, kv)
		for i := 0; i < 30; i++ {
			id := ids[rng.IntN(len(ids))]
			switch rng.IntN(5) {
			case 0, 1:
				add(id, int64(rng.IntN(50)), rng.IntN(4))(ctx, s)
			case 2:
				update(id, rng.IntN(6)-1)(ctx, s)
			case 3:
				remove(id)(ctx, s)
			default:
				if rng.IntN(10) == 0 {
					clearCart()(ctx, s)
				}
			}
			for _, it := range s.Items() {
				require.GreaterOrEqual(t, it.Quantity, 1, "sequence %d step %d", seq, i)
			}
		}
		assertReloadMatches(t, kv, s)
	}
}

func TestAddRejectsQuantityOverflow(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, kv)
	require.NoError(t, s.Add(ctx, product("p1", 1), math.MaxInt))

	var events int
	s.Subscribe(func(Event) { events++ })
	err := s.Add(ctx, product("p1", 1), 2)

	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, 0, events)
	require.Len(t, s.Items(), 1)
	assert.Equal(t, math.MaxInt, s.Items()[0].Quantity)
	assert.False(t, s.Total().IsNegative())
	assertReloadMatches(t, kv, s)
}

func TestMergeQuantity(t *testing.T) {
	n, err := MergeQuantity(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = MergeQuantity(math.MaxInt-1, 1)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, n)

	_, err = MergeQuantity(math.MaxInt, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestLoadSaturatesDuplicateLines(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	big := strconv.Itoa(math.MaxInt)
	require.NoError(t, kv.Set(ctx, DefaultKey, `{"items":[
		{"productId":"a","quantity":`+big+`,"unitPrice":"1"},
		{"productId":"a","quantity":`+big+`,"unitPrice":"1"}
	]}`))

	s := New(ctx, kv)
	require.Len(t, s.Items(), 1)
	assert.Equal(t, math.MaxInt, s.Items()[0].Quantity)
}

func TestLoadIgnoresCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, DefaultKey, "{not json"))

	s := New(ctx, kv)
	assert.Empty(t, s.Items())
}

func TestLoadDropsInvalidLines(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(ctx, DefaultKey, `{"items":[
		{"productId":"a","quantity":2,"unitPrice":"1.5"},
		{"productId":"","quantity":1,"unitPrice":"1"},
		{"productId":"b","quantity":0,"unitPrice":"1"},
		{"productId":"a","quantity":1,"unitPrice":"1.5"}
	]}`))

	s := New(ctx, kv)
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestCustomKey(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, kv, WithKey("cart:visitor-1"))
	require.NoError(t, s.Add(ctx, product("a", 1), 1))

	_, err := kv.Get(ctx, DefaultKey)
	assert.Error(t, err)
	_, err = kv.Get(ctx, "cart:visitor-1")
	assert.NoError(t, err)
}

func TestStorageFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{Memory: storage.NewMemory(), failSet: true}
	s := New(ctx, kv)

	require.NoError(t, s.Add(ctx, product("a", 2), 2))
	assert.Equal(t, 2, s.Count())
	assert.True(t, s.Dirty())
	_, err := kv.Get(ctx, DefaultKey)
	assert.Error(t, err)

	kv.failSet = false
	require.NoError(t, s.Add(ctx, product("b", 1), 1))
	assert.False(t, s.Dirty())

	reloaded := New(ctx, kv)
	assert.Equal(t, 3, reloaded.Count())
}

func TestListenersNotifiedAfterPersist(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	s := New(ctx, kv)

	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) {
		raw, err := kv.Get(ctx, DefaultKey)
		require.NoError(t, err)
		assert.Contains(t, raw, "productId")
		events = append(events, ev)
	})

	require.NoError(t, s.Add(ctx, product("a", 2), 1))
	s.UpdateQuantity(ctx, "a", 4)
	s.UpdateQuantity(ctx, "missing", 4)
	require.Len(t, events, 2)
	assert.Equal(t, OpAdd, events[0].Op)
	assert.Equal(t, OpUpdateQuantity, events[1].Op)
	assert.Equal(t, 4, events[1].Snapshot.Count())
	assert.True(t, events[1].Snapshot.Version > events[0].Snapshot.Version)

	unsubscribe()
	unsubscribe()
	s.Remove(ctx, "a")
	assert.Len(t, events, 2)
}

func TestListenerMayReadStore(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, storage.NewMemory())
	var total decimal.Decimal
	s.Subscribe(func(Event) { total = s.Total() })

	require.NoError(t, s.Add(ctx, product("a", 3), 2))
	assert.True(t, total.Equal(decimal.NewFromInt(6)))
}
