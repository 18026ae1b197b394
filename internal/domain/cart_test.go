package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCartTotal_TwoLines(t *testing.T) {
	a := &Product{ID: uuid.New(), Name: "A", Price: decimal.RequireFromString("10.00"), Stock: 5}
	b := &Product{ID: uuid.New(), Name: "B", Price: decimal.RequireFromString("5.50"), Stock: 5}

	items := []CartItem{
		NewCartItem(CartLine{ProductID: a.ID, Quantity: 2}, a),
		NewCartItem(CartLine{ProductID: b.ID, Quantity: 1}, b),
	}

	assert.Equal(t, "25.50", CartTotal(items).StringFixed(2))
}

func TestCartTotal_EmptyIsZero(t *testing.T) {
	assert.True(t, CartTotal(nil).IsZero())
}

func TestCartTotal_SkipsStaleLines(t *testing.T) {
	a := &Product{ID: uuid.New(), Price: decimal.RequireFromString("3.25")}
	items := []CartItem{
		NewCartItem(CartLine{ProductID: a.ID, Quantity: 2}, a),
		NewCartItem(CartLine{ProductID: uuid.New(), Quantity: 7}, nil),
	}

	snapshot := NewCartSnapshot(GuestCart("s-1"), items)

	assert.Equal(t, "6.50", snapshot.Total.StringFixed(2))
	assert.Len(t, snapshot.StaleProductIDs, 1)
	assert.Equal(t, 2, snapshot.ItemCount)
	assert.Len(t, snapshot.Lines(), 2)
}

func TestRoundMoney_HalfUp(t *testing.T) {
	assert.Equal(t, "0.13", RoundMoney(decimal.RequireFromString("0.125")).StringFixed(2))
	assert.Equal(t, "0.12", RoundMoney(decimal.RequireFromString("0.1249")).StringFixed(2))
	assert.Equal(t, "2.01", RoundMoney(decimal.RequireFromString("2.005")).StringFixed(2))
}

func TestCartRef_Validate(t *testing.T) {
	assert.NoError(t, GuestCart("abc").Validate())
	assert.NoError(t, AccountCart(uuid.New()).Validate())

	var verr *ValidationError
	assert.ErrorAs(t, GuestCart("").Validate(), &verr)
	assert.ErrorAs(t, CartRef{Kind: CartKindAccount, ID: "not-a-uuid"}.Validate(), &verr)
	assert.ErrorAs(t, CartRef{Kind: "other", ID: "x"}.Validate(), &verr)
}

func TestOrderStatus_Transitions(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusPaid))
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusFailed))
	assert.False(t, OrderStatusPaid.CanTransitionTo(OrderStatusFailed))
	assert.False(t, OrderStatusFailed.CanTransitionTo(OrderStatusPaid))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusPending))
}

func TestProperty_FrozenLinesMatchCartTotal(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("order total of frozen lines equals cart total", prop.ForAll(
		func(cents []int64, qtys []int) bool {
			n := len(cents)
			if len(qtys) < n {
				n = len(qtys)
			}
			items := make([]CartItem, 0, n)
			for i := 0; i < n; i++ {
				p := &Product{ID: uuid.New(), Name: "p", Price: decimal.New(cents[i], -2)}
				items = append(items, NewCartItem(CartLine{ProductID: p.ID, Quantity: qtys[i]}, p))
			}
			lines := FreezeLines(uuid.New(), items)
			return OrderTotal(lines).Equal(CartTotal(items))
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
		gen.SliceOf(gen.IntRange(1, 50)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
