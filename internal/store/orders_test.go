package store

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// testStore connects to the database named by TEST_DATABASE_URL. Tests
// using it are skipped when the variable is unset, so the suite still
// passes without a running Postgres.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := Connect(ctx, url, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func price(v float64) *float64 { return &v }

func TestUpsertOrderReplacesItemsAndPreservesIdentity(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	storeID := "store-" + uuid.New().String()

	first := model.NormalizedOrder{
		ExternalKey: "A-100",
		Customer:    &model.NormalizedContact{Name: "Sara", Phone: "+212612345678"},
		Items: []model.NormalizedItem{
			{Title: "Blue Tee", Qty: 2, Price: price(99.9), Currency: "MAD"},
			{Title: "Red Tee", Qty: 1, Price: price(89.0), Currency: "MAD"},
		},
		Total: price(288.8),
	}
	ord, created, err := st.UpsertOrder(ctx, storeID, first, map[string]string{"order_id": "A-100"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, ord.CustomerID)

	// An operator decision on the order must survive re-ingestion.
	require.NoError(t, st.SetOrderStatus(ctx, ord.ID, model.OrderStatusConfirmed))

	second := model.NormalizedOrder{
		ExternalKey: "A-100",
		Customer:    &model.NormalizedContact{Name: "Sara", Phone: "+212612345678"},
		Items: []model.NormalizedItem{
			{Title: "Blue Tee", Qty: 3, Price: price(99.9), Currency: "MAD"},
		},
		Total: price(299.7),
	}
	again, created, err := st.UpsertOrder(ctx, storeID, second, map[string]string{"order_id": "A-100"})
	require.NoError(t, err)
	assert.False(t, created, "same (store, external_key) must update, not create")
	assert.Equal(t, ord.ID, again.ID, "order id is stable across re-ingestion")
	assert.Equal(t, ord.CustomerID, again.CustomerID, "same contact must not create a second customer")

	loaded, err := st.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, loaded.Status)
	require.Len(t, loaded.Items, 1, "the item set is replaced wholesale")
	require.NotNil(t, loaded.Items[0].Title)
	assert.Equal(t, "Blue Tee", *loaded.Items[0].Title)
	assert.Equal(t, 3, loaded.Items[0].Qty)
}

func TestUpsertOrderRollsBackOnItemFailure(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	storeID := "store-" + uuid.New().String()

	good := model.NormalizedOrder{
		ExternalKey: "B-7",
		Items:       []model.NormalizedItem{{Title: "Cap", Qty: 1, Price: price(45.0)}},
		Total:       price(45.0),
	}
	ord, _, err := st.UpsertOrder(ctx, storeID, good, map[string]string{"order_id": "B-7"})
	require.NoError(t, err)

	// The qty overflows the items column, so the item insert fails after
	// the order row was already updated inside the transaction.
	bad := model.NormalizedOrder{
		ExternalKey: "B-7",
		Items:       []model.NormalizedItem{{Title: "Cap", Qty: math.MaxInt32 + 1}},
		Total:       price(999.0),
	}
	_, _, err = st.UpsertOrder(ctx, storeID, bad, map[string]string{"order_id": "B-7"})
	require.Error(t, err)

	loaded, err := st.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Total)
	assert.InDelta(t, 45.0, *loaded.Total, 0.001, "the failed run must leave no partial update")
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 1, loaded.Items[0].Qty)
}

func TestResolveCustomerMatchesByEmailWhenPhoneAbsent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	storeID := "store-" + uuid.New().String()

	a := model.NormalizedOrder{
		ExternalKey: "C-1",
		Customer:    &model.NormalizedContact{Name: "Omar", Email: "omar@example.com"},
	}
	first, _, err := st.UpsertOrder(ctx, storeID, a, nil)
	require.NoError(t, err)
	require.NotNil(t, first.CustomerID)

	b := model.NormalizedOrder{
		ExternalKey: "C-2",
		Customer:    &model.NormalizedContact{Name: "Omar B.", Email: "omar@example.com"},
	}
	second, _, err := st.UpsertOrder(ctx, storeID, b, nil)
	require.NoError(t, err)
	require.NotNil(t, second.CustomerID)
	assert.Equal(t, *first.CustomerID, *second.CustomerID, "email match reuses the customer")
}
