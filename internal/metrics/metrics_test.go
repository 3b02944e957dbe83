package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/cart"
	"storefront/internal/session"
	"storefront/internal/storage"
)

func TestCartListenerCountsOps(t *testing.T) {
	m := New()
	ctx := context.Background()
	st := cart.New(ctx, storage.NewMemory())
	st.Subscribe(m.CartListener())

	require.NoError(t, st.Add(ctx, cart.Product{ID: "p-1", Price: decimal.NewFromInt(10)}, 1))
	require.NoError(t, st.Add(ctx, cart.Product{ID: "p-1", Price: decimal.NewFromInt(10)}, 1))
	st.Clear(ctx)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CartMutations.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CartMutations.WithLabelValues("clear")))
}

func TestSessionListener(t *testing.T) {
	m := New()
	l := m.SessionListener()
	l(session.Transition{From: session.Unknown, To: session.Unauthenticated})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues(session.Unauthenticated.String())))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.Uploads.WithLabelValues("stored").Inc()
	m.ObserveRequest("GET", "", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `storefront_uploads_total{outcome="stored"} 1`)
	assert.Contains(t, string(body), `route="unmatched"`)
}
