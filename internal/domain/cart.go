package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartKind tells which backing store owns a cart.
type CartKind string

const (
	// CartKindGuest is an ephemeral cart keyed by a client session id.
	CartKindGuest CartKind = "guest"
	// CartKindAccount is a durable cart keyed by an account id.
	CartKindAccount CartKind = "account"
)

// CartRef identifies exactly one cart, guest or account.
type CartRef struct {
	Kind CartKind `json:"kind"`
	ID   string   `json:"id"`
}

func GuestCart(sessionID string) CartRef {
	return CartRef{Kind: CartKindGuest, ID: sessionID}
}

func AccountCart(accountID uuid.UUID) CartRef {
	return CartRef{Kind: CartKindAccount, ID: accountID.String()}
}

func (r CartRef) IsGuest() bool {
	return r.Kind == CartKindGuest
}

// AccountID returns the owning account for account carts.
func (r CartRef) AccountID() (uuid.UUID, bool) {
	if r.Kind != CartKindAccount {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Validate rejects refs that cannot name a cart.
func (r CartRef) Validate() error {
	switch r.Kind {
	case CartKindGuest:
		if r.ID == "" {
			return NewValidationError("session", "guest cart requires a session id")
		}
	case CartKindAccount:
		if _, ok := r.AccountID(); !ok {
			return NewValidationError("account", "account cart requires a valid account id")
		}
	default:
		return NewValidationError("cart", fmt.Sprintf("unknown cart kind %q", r.Kind))
	}
	return nil
}

func (r CartRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// CartLine is one product entry in a cart. A cart holds at most one line per product.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// SortLines orders lines by product id so snapshots compare and hash deterministically.
func SortLines(lines []CartLine) {
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
}

// CartItem is a cart line joined with live catalog data.
// Stale items reference a product that no longer exists and carry no price.
type CartItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Product   *Product        `json:"product,omitempty"`
	Stale     bool            `json:"stale"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// NewCartItem joins a line with its product. A nil product marks the item stale.
func NewCartItem(line CartLine, product *Product) CartItem {
	item := CartItem{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Product:   product,
		Stale:     product == nil,
		LineTotal: decimal.Zero,
	}
	if product != nil {
		item.LineTotal = product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
	}
	return item
}

// CartSnapshot is the caller-facing view of a cart: lines plus computed total.
type CartSnapshot struct {
	Ref             CartRef         `json:"cart"`
	Items           []CartItem      `json:"items"`
	StaleProductIDs []uuid.UUID     `json:"stale_product_ids,omitempty"`
	ItemCount       int             `json:"item_count"`
	Total           decimal.Decimal `json:"total"`
}

// Lines returns the raw ledger lines of the snapshot, stale ones included.
func (s *CartSnapshot) Lines() []CartLine {
	lines := make([]CartLine, 0, len(s.Items))
	for _, item := range s.Items {
		lines = append(lines, CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func (s *CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CartTotal sums line totals of non-stale items and rounds to cents.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Stale {
			continue
		}
		total = total.Add(item.LineTotal)
	}
	return RoundMoney(total)
}

// NewCartSnapshot builds a snapshot from joined items.
func NewCartSnapshot(ref CartRef, items []CartItem) *CartSnapshot {
	snapshot := &CartSnapshot{
		Ref:   ref,
		Items: items,
		Total: CartTotal(items),
	}
	if snapshot.Items == nil {
		snapshot.Items = []CartItem{}
	}
	for _, item := range items {
		if item.Stale {
			snapshot.StaleProductIDs = append(snapshot.StaleProductIDs, item.ProductID)
			continue
		}
		snapshot.ItemCount += item.Quantity
	}
	return snapshot
}
