package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderTx is the set of writes a checkout commit performs inside one transaction.
type OrderTx interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	CreateOrderLines(ctx context.Context, lines []domain.OrderLine) error
	MarkStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error
	// ClearCart empties the account cart and fails with domain.ErrCartChanged
	// unless the removed lines equal expected.
	ClearCart(ctx context.Context, accountID uuid.UUID, expected []domain.CartLine) error
}

// OrderRepository persists orders and their frozen lines
type OrderRepository interface {
	// WithinTx runs fn in a transaction. Any error from fn rolls back every write.
	WithinTx(ctx context.Context, fn func(tx OrderTx) error) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) WithinTx(ctx context.Context, fn func(tx OrderTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&orderTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order transaction: %w", err)
	}
	return nil
}

type orderTx struct {
	tx *sql.Tx
}

func (t *orderTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, contact, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		order.ID,
		order.AccountID,
		order.Status,
		order.Contact,
		order.TotalAmount,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

func (t *orderTx) CreateOrderLines(ctx context.Context, lines []domain.OrderLine) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_at_purchase, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare order line insert: %w", err)
	}
	defer stmt.Close()

	for _, line := range lines {
		if _, err := stmt.ExecContext(ctx,
			line.OrderID,
			line.ProductID,
			line.ProductName,
			line.Quantity,
			line.UnitPriceAtPurchase,
			line.LineTotal,
		); err != nil {
			return fmt.Errorf("failed to create order line for product %s: %w", line.ProductID, err)
		}
	}

	return nil
}

func (t *orderTx) MarkStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: order %s from %s to %s", domain.ErrIllegalTransition, orderID, from, to)
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		orderID, from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, accountID uuid.UUID, expected []domain.CartLine) error {
	rows, err := t.tx.QueryContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 RETURNING product_id, quantity`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	defer rows.Close()

	removed := make(map[uuid.UUID]int)
	for rows.Next() {
		var productID uuid.UUID
		var quantity int
		if err := rows.Scan(&productID, &quantity); err != nil {
			return fmt.Errorf("failed to scan cleared cart line: %w", err)
		}
		removed[productID] = quantity
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating cleared cart lines: %w", err)
	}

	if len(removed) != len(expected) {
		return domain.ErrCartChanged
	}
	for _, line := range expected {
		if removed[line.ProductID] != line.Quantity {
			return domain.ErrCartChanged
		}
	}

	return nil
}

const orderColumns = `id, user_id, status, contact, total_amount, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var accountID uuid.NullUUID
	err := row.Scan(
		&order.ID,
		&accountID,
		&order.Status,
		&order.Contact,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accountID.Valid {
		id := accountID.UUID
		order.AccountID = &id
	}
	return order, nil
}

// FindByID loads an order with its lines
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

// ListByAccount returns the newest orders of an account, lines included
func (r *orderRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit,
	)
}

// ListRecent returns the newest orders across all accounts
func (r *orderRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		lines, err := r.lines(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Lines = lines
	}

	return orders, nil
}

func (r *orderRepository) lines(ctx context.Context, orderID uuid.UUID) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price_at_purchase, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_name, product_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.OrderLine{}
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.OrderID,
			&line.ProductID,
			&line.ProductName,
			&line.Quantity,
			&line.UnitPriceAtPurchase,
			&line.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order lines: %w", err)
	}

	return lines, nil
}
