package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartFixture struct {
	catalog  *fakeCatalog
	guest    *repository.MemoryCartRepository
	accounts *fakeAccountCarts
	carts    CartService
}

func newCartFixture() *cartFixture {
	f := &cartFixture{
		catalog:  newFakeCatalog(),
		guest:    repository.NewMemoryCartRepository(),
		accounts: newFakeAccountCarts(),
	}
	f.carts = NewCartService(f.guest, f.accounts, f.catalog, nil, nil)
	return f
}

func TestCartService_TotalCorrectness(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	ref := domain.GuestCart("sess-1")

	productA := f.catalog.add("A", "10.00", 10)
	productB := f.catalog.add("B", "5.50", 10)

	_, err := f.carts.AddItem(ctx, ref, productA.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, ref, productB.ID, 1)
	require.NoError(t, err)

	total, err := f.carts.Total(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "25.50", total.StringFixed(2))
	assert.True(t, total.Equal(decimal.RequireFromString("25.50")))
}

func TestCartService_EmptyCartTotalsZero(t *testing.T) {
	f := newCartFixture()

	snapshot, err := f.carts.Snapshot(context.Background(), domain.AccountCart(uuid.New()))
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
	assert.NotNil(t, snapshot.Items)
	assert.True(t, snapshot.Total.IsZero())
}

// Any sequence of adds leaves at most one line per product, quantities summed
func TestProperty_AddItemKeepsOneLinePerProduct(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("add sequences never duplicate a product line", prop.ForAll(
		func(picks []int, deltas []int) bool {
			f := newCartFixture()
			ctx := context.Background()
			ref := domain.AccountCart(uuid.New())
			products := []*domain.Product{
				f.catalog.add("A", "1.00", 100),
				f.catalog.add("B", "2.00", 100),
				f.catalog.add("C", "3.00", 100),
			}

			want := map[uuid.UUID]int{}
			for i, pick := range picks {
				delta := deltas[i%len(deltas)]
				product := products[pick]
				if _, err := f.carts.AddItem(ctx, ref, product.ID, delta); err != nil {
					t.Logf("add failed: %v", err)
					return false
				}
				want[product.ID] += delta
			}

			snapshot, err := f.carts.Snapshot(ctx, ref)
			if err != nil {
				return false
			}
			seen := map[uuid.UUID]bool{}
			for _, item := range snapshot.Items {
				if seen[item.ProductID] {
					return false
				}
				seen[item.ProductID] = true
				if want[item.ProductID] != item.Quantity {
					return false
				}
			}
			return len(seen) == len(want)
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOfN(4, gen.IntRange(1, 3)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCartService_AddItemValidation(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	ref := domain.GuestCart("sess-1")
	product := f.catalog.add("A", "1.00", 1)
	soldOut := f.catalog.add("B", "1.00", 0)

	tests := []struct {
		name      string
		ref       domain.CartRef
		productID uuid.UUID
		delta     int
		field     string
	}{
		{name: "zero quantity", ref: ref, productID: product.ID, delta: 0, field: "quantity"},
		{name: "negative quantity", ref: ref, productID: product.ID, delta: -2, field: "quantity"},
		{name: "unknown product", ref: ref, productID: uuid.New(), delta: 1, field: "product_id"},
		{name: "out of stock", ref: ref, productID: soldOut.ID, delta: 1, field: "product_id"},
		{name: "missing session", ref: domain.GuestCart(""), productID: product.ID, delta: 1, field: "session"},
		{name: "malformed account", ref: domain.CartRef{Kind: domain.CartKindAccount, ID: "x"}, productID: product.ID, delta: 1, field: "account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.carts.AddItem(ctx, tt.ref, tt.productID, tt.delta)
			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}

	lines, err := f.guest.Lines(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, lines, "rejected adds must not change the cart")
}

func TestCartService_SetQuantityAndRemove(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	ref := domain.GuestCart("sess-1")
	product := f.catalog.add("A", "2.25", 10)

	snapshot, err := f.carts.SetQuantity(ctx, ref, product.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, snapshot.ItemCount)
	assert.Equal(t, "9.00", snapshot.Total.StringFixed(2))

	snapshot, err = f.carts.SetQuantity(ctx, ref, product.ID, 0)
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty(), "quantity below one removes the line")

	_, err = f.carts.RemoveItem(ctx, ref, product.ID)
	require.NoError(t, err, "removing an absent line is a no-op")
}

func TestCartService_StaleLinesExcludedFromTotals(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	ref := domain.GuestCart("sess-1")
	kept := f.catalog.add("Kept", "3.00", 10)
	gone := f.catalog.add("Gone", "7.00", 10)

	_, err := f.carts.AddItem(ctx, ref, kept.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, ref, gone.ID, 2)
	require.NoError(t, err)

	f.catalog.remove(gone.ID)

	snapshot, err := f.carts.Snapshot(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, snapshot.Items, 2)
	assert.Equal(t, []uuid.UUID{gone.ID}, snapshot.StaleProductIDs)
	assert.Equal(t, "3.00", snapshot.Total.StringFixed(2))

	count, err := f.carts.Count(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCartService_ListItemsIsRestartable(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	ref := domain.GuestCart("sess-1")
	product := f.catalog.add("A", "1.00", 10)

	_, err := f.carts.AddItem(ctx, ref, product.ID, 1)
	require.NoError(t, err)

	items := f.carts.ListItems(ctx, ref)

	collect := func() []domain.CartItem {
		var out []domain.CartItem
		for item, err := range items {
			require.NoError(t, err)
			out = append(out, item)
		}
		return out
	}

	first := collect()
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].Quantity)

	_, err = f.carts.AddItem(ctx, ref, product.ID, 2)
	require.NoError(t, err)

	second := collect()
	require.Len(t, second, 1)
	assert.Equal(t, 3, second[0].Quantity, "a second range sees the current ledger")
}

func TestCartService_ListItemsStopsEarly(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	ref := domain.GuestCart("sess-1")
	for _, name := range []string{"A", "B", "C"} {
		_, err := f.carts.AddItem(ctx, ref, f.catalog.add(name, "1.00", 5).ID, 1)
		require.NoError(t, err)
	}

	seen := 0
	for range f.carts.ListItems(ctx, ref) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestCartService_CatalogFailureIsPersistenceError(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	product := f.catalog.add("A", "1.00", 10)
	f.catalog.err = errInjected

	_, err := f.carts.AddItem(ctx, domain.GuestCart("sess-1"), product.ID, 1)
	var persistenceErr *domain.PersistenceError
	require.True(t, errors.As(err, &persistenceErr))
	assert.ErrorIs(t, err, errInjected)
}

func TestCartService_GuestAndAccountCartsAreSeparate(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	product := f.catalog.add("A", "1.00", 10)
	accountID := uuid.New()

	_, err := f.carts.AddItem(ctx, domain.GuestCart(accountID.String()), product.ID, 1)
	require.NoError(t, err)

	snapshot, err := f.carts.Snapshot(ctx, domain.AccountCart(accountID))
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
}
