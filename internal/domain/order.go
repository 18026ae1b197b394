package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a persisted order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// CanTransitionTo reports whether an order may move from s to next.
// Only pending orders change state; paid and failed are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusPending && (next == OrderStatusPaid || next == OrderStatusFailed)
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed
}

func (s OrderStatus) String() string {
	return string(s)
}

// Order is the durable record of one checkout commit.
// UnitPriceAtPurchase on its lines is frozen at commit time.
type Order struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   *uuid.UUID      `json:"account_id,omitempty"`
	Status      OrderStatus     `json:"status"`
	Contact     string          `json:"contact"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Lines       []OrderLine     `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderLine is one purchased product with its price at purchase time.
type OrderLine struct {
	OrderID             uuid.UUID       `json:"order_id"`
	ProductID           uuid.UUID       `json:"product_id"`
	ProductName         string          `json:"product_name"`
	Quantity            int             `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price_at_purchase"`
	LineTotal           decimal.Decimal `json:"line_total"`
}

// FreezeLines converts validated cart items into order lines with the current price captured.
func FreezeLines(orderID uuid.UUID, items []CartItem) []OrderLine {
	lines := make([]OrderLine, 0, len(items))
	for _, item := range items {
		if item.Stale {
			continue
		}
		lines = append(lines, OrderLine{
			OrderID:             orderID,
			ProductID:           item.ProductID,
			ProductName:         item.Product.Name,
			Quantity:            item.Quantity,
			UnitPriceAtPurchase: item.Product.Price,
			LineTotal:           RoundMoney(item.LineTotal),
		})
	}
	return lines
}

// OrderTotal sums frozen line totals.
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return RoundMoney(total)
}

// ReceiptKind distinguishes account checkouts, which persist an order,
// from guest checkouts, which only clear the session cart.
type ReceiptKind string

const (
	ReceiptKindAccount ReceiptKind = "account"
	ReceiptKindGuest   ReceiptKind = "guest"
)

// OrderReceipt is returned to the caller on a successful checkout.
type OrderReceipt struct {
	Kind        ReceiptKind     `json:"kind"`
	AttemptID   uuid.UUID       `json:"attempt_id"`
	OrderID     *uuid.UUID      `json:"order_id,omitempty"`
	Status      OrderStatus     `json:"status"`
	Contact     string          `json:"contact"`
	Lines       []OrderLine     `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	CompletedAt time.Time       `json:"completed_at"`
}
