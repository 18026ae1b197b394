package service

import (
	"context"
	"errors"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/repository"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MergeResult describes what one reconciliation did.
type MergeResult struct {
	AccountID uuid.UUID `json:"account_id"`
	MergeKey  string    `json:"merge_key,omitempty"`
	// Lines is the guest snapshot that was folded into the account cart.
	Lines []domain.CartLine `json:"lines"`
	// AlreadyApplied is set when the same snapshot was merged by an earlier run.
	AlreadyApplied bool `json:"already_applied"`
	// GuestCleared is false when the merge committed but the merged lines are
	// still in the guest cart.
	GuestCleared bool `json:"guest_cleared"`
}

// Reconciler folds a guest cart into an account cart on sign-in
type Reconciler interface {
	Reconcile(ctx context.Context, sessionID string, accountID uuid.UUID) (*MergeResult, error)
	MergeSnapshot(ctx context.Context, sessionID string, accountID uuid.UUID, lines []domain.CartLine) (*MergeResult, error)
}

type reconciler struct {
	guest   GuestCartStore
	account AccountCartStore
	metrics *metrics.StoreMetrics
	logger  *zap.Logger
}

// NewReconciler creates a new instance of Reconciler
func NewReconciler(guest GuestCartStore, account AccountCartStore, storeMetrics *metrics.StoreMetrics, log *zap.Logger) Reconciler {
	return &reconciler{
		guest:   guest,
		account: account,
		metrics: storeMetrics,
		logger:  logger.Component(log, "reconciler"),
	}
}

// Reconcile reads the guest cart of sessionID and merges it into the account cart.
// An empty or missing guest cart is a no-op.
func (r *reconciler) Reconcile(ctx context.Context, sessionID string, accountID uuid.UUID) (*MergeResult, error) {
	if sessionID == "" {
		r.metrics.IncMerge("noop")
		return &MergeResult{AccountID: accountID, Lines: []domain.CartLine{}, GuestCleared: true}, nil
	}

	snapshot, err := r.guest.Snapshot(ctx, sessionID)
	if err != nil {
		r.metrics.IncMerge("error")
		return nil, domain.NewPersistenceError("read guest cart", err)
	}

	return r.merge(ctx, sessionID, accountID, snapshot)
}

// MergeSnapshot sums lines into the account cart in one atomic write and then
// drains them from the guest cart. Rerunning with the same snapshot changes
// nothing until the guest cart moves to a new generation.
func (r *reconciler) MergeSnapshot(ctx context.Context, sessionID string, accountID uuid.UUID, lines []domain.CartLine) (*MergeResult, error) {
	snapshot := repository.GuestSnapshot{Lines: lines}
	if sessionID != "" {
		current, err := r.guest.Snapshot(ctx, sessionID)
		if err != nil {
			r.metrics.IncMerge("error")
			return nil, domain.NewPersistenceError("read guest cart", err)
		}
		snapshot.Generation = current.Generation
	}

	return r.merge(ctx, sessionID, accountID, snapshot)
}

func (r *reconciler) merge(ctx context.Context, sessionID string, accountID uuid.UUID, snapshot repository.GuestSnapshot) (*MergeResult, error) {
	lines := collapseLines(snapshot.Lines)
	result := &MergeResult{AccountID: accountID, Lines: lines}

	if len(lines) == 0 {
		r.metrics.IncMerge("noop")
		result.GuestCleared = true
		return result, nil
	}

	result.MergeKey = MergeKey(sessionID, snapshot.Generation, lines)

	applied, err := r.account.MergeLines(ctx, accountID, result.MergeKey, lines)
	if err != nil {
		if errors.Is(err, repository.ErrCartLocked) {
			r.metrics.IncMerge("conflict")
			r.logger.Warn("Cart merge conflict",
				zap.Stringer("account_id", accountID),
				zap.Error(err),
			)
			return nil, &domain.MergeConflictError{AccountID: accountID, Err: err}
		}
		if errors.Is(err, repository.ErrAccountNotFound) {
			r.metrics.IncMerge("error")
			return nil, domain.NewValidationError("account", "account does not exist")
		}
		r.metrics.IncMerge("error")
		r.logger.Error("Cart merge failed",
			zap.Stringer("account_id", accountID),
			zap.Error(err),
		)
		return nil, domain.NewPersistenceError("merge carts", err)
	}
	result.AlreadyApplied = !applied

	if applied {
		r.metrics.IncMerge("merged")
	} else {
		r.metrics.IncMerge("duplicate")
	}

	// The merge is durable at this point; a failed drain only leaves a guest
	// cart whose rerun is a recorded no-op. Lines added since the snapshot
	// was read survive the drain and merge on the next sign-in.
	if sessionID != "" {
		drained, err := r.guest.Drain(ctx, sessionID, repository.GuestSnapshot{Generation: snapshot.Generation, Lines: lines})
		switch {
		case err != nil:
			r.logger.Warn("Failed to drain guest cart after merge",
				zap.String("session", sessionID),
				zap.Error(err),
			)
		case !drained:
			r.logger.Debug("Guest cart already drained by a concurrent merge", zap.String("session", sessionID))
			result.GuestCleared = true
		default:
			result.GuestCleared = true
		}
	}

	r.logger.Info("Guest cart merged",
		zap.Stringer("account_id", accountID),
		zap.String("merge_key", result.MergeKey),
		zap.Int("lines", len(lines)),
		zap.Bool("already_applied", result.AlreadyApplied),
	)

	return result, nil
}

// MergeKey fingerprints a guest snapshot. Equal sessions, generations and
// lines give equal keys.
func MergeKey(sessionID, generation string, lines []domain.CartLine) string {
	sorted := append([]domain.CartLine(nil), lines...)
	domain.SortLines(sorted)

	digest := xxhash.New()
	_, _ = digest.WriteString(generation)
	_, _ = digest.WriteString("|")
	for _, line := range sorted {
		_, _ = digest.WriteString(line.ProductID.String())
		_, _ = digest.WriteString("=")
		_, _ = digest.WriteString(strconv.Itoa(line.Quantity))
		_, _ = digest.WriteString(";")
	}
	return sessionID + ":" + strconv.FormatUint(digest.Sum64(), 16)
}

// collapseLines sums duplicate products and drops non-positive quantities
func collapseLines(lines []domain.CartLine) []domain.CartLine {
	totals := make(map[uuid.UUID]int, len(lines))
	order := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		if _, seen := totals[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}

	collapsed := make([]domain.CartLine, 0, len(order))
	for _, productID := range order {
		collapsed = append(collapsed, domain.CartLine{ProductID: productID, Quantity: totals[productID]})
	}
	domain.SortLines(collapsed)
	return collapsed
}
