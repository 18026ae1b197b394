package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrCartLocked      = errors.New("cart is locked by another writer")
)

// CartRepository is the durable cart ledger keyed by account id.
// The (user_id, product_id) unique constraint guarantees one line per product;
// every mutation is a single statement so concurrent sessions cannot race.
type CartRepository interface {
	Lines(ctx context.Context, ownerID string) ([]domain.CartLine, error)
	Increment(ctx context.Context, ownerID string, productID uuid.UUID, delta int) (int, error)
	SetQuantity(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) error
	Remove(ctx context.Context, ownerID string, productID uuid.UUID) error
	Clear(ctx context.Context, ownerID string) error
	MergeLines(ctx context.Context, accountID uuid.UUID, mergeKey string, lines []domain.CartLine) (bool, error)
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

func parseOwner(ownerID string) (uuid.UUID, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid account id %q: %w", ownerID, err)
	}
	return id, nil
}

// Lines returns every line of the account cart ordered by product id
func (r *cartRepository) Lines(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	accountID, err := parseOwner(ownerID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY product_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}

	return lines, nil
}

// Increment adds delta to the product line, creating it when absent, in one upsert
func (r *cartRepository) Increment(ctx context.Context, ownerID string, productID uuid.UUID, delta int) (int, error) {
	accountID, err := parseOwner(ownerID)
	if err != nil {
		return 0, err
	}

	var quantity int
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity
	`, accountID, productID, delta).Scan(&quantity)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to increment cart line: %w", err)
	}

	return quantity, nil
}

// SetQuantity overwrites the product line, creating it when absent
func (r *cartRepository) SetQuantity(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) error {
	accountID, err := parseOwner(ownerID)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity
	`, accountID, productID, quantity)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to set cart line quantity: %w", err)
	}

	return nil
}

// Remove deletes the product line. Missing lines are not an error.
func (r *cartRepository) Remove(ctx context.Context, ownerID string, productID uuid.UUID) error {
	accountID, err := parseOwner(ownerID)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		accountID, productID,
	); err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}

	return nil
}

// Clear empties the account cart
func (r *cartRepository) Clear(ctx context.Context, ownerID string) error {
	accountID, err := parseOwner(ownerID)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

// MergeLines sums lines into the account cart in one transaction and records
// mergeKey so a rerun with the same key changes nothing. It reports whether
// the lines were applied by this call.
func (r *cartRepository) MergeLines(ctx context.Context, accountID uuid.UUID, mergeKey string, lines []domain.CartLine) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	if err := tx.QueryRowContext(ctx,
		`SELECT pg_try_advisory_xact_lock(hashtext($1))`,
		cartLockKey(accountID),
	).Scan(&locked); err != nil {
		return false, fmt.Errorf("failed to lock cart: %w", err)
	}
	if !locked {
		return false, ErrCartLocked
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO cart_merges (user_id, merge_key, line_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, merge_key) DO NOTHING
	`, accountID, mergeKey, len(lines))
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrAccountNotFound
		}
		return false, fmt.Errorf("failed to record cart merge: %w", err)
	}

	recorded, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if recorded == 0 {
		// Already merged by an earlier run.
		return false, tx.Commit()
	}

	if len(lines) > 0 {
		query, args := mergeLinesQuery(accountID, lines)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isContention(err) {
				return false, fmt.Errorf("%w: %w", ErrCartLocked, err)
			}
			return false, fmt.Errorf("failed to merge cart lines: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isContention(err) {
			return false, fmt.Errorf("%w: %w", ErrCartLocked, err)
		}
		return false, fmt.Errorf("failed to commit cart merge: %w", err)
	}

	return true, nil
}

func cartLockKey(accountID uuid.UUID) string {
	return "cart:" + accountID.String()
}

// mergeLinesQuery builds one multi-row upsert. Lines must hold distinct products,
// otherwise Postgres rejects the statement for touching a row twice.
func mergeLinesQuery(accountID uuid.UUID, lines []domain.CartLine) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO cart_items (user_id, product_id, quantity) VALUES ")

	args := make([]any, 0, 1+2*len(lines))
	args = append(args, accountID)
	for i, line := range lines {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($1, $%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, line.ProductID, line.Quantity)
	}
	sb.WriteString(" ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity")

	return sb.String(), args
}
