package service

import (
	"context"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentRequest struct {
	AttemptID uuid.UUID
	OrderID   *uuid.UUID
	Cart      domain.CartRef
	Contact   string
	Amount    decimal.Decimal
}

// PaymentDecision is the gateway verdict. A decline is a business outcome, not an error.
type PaymentDecision struct {
	Approved  bool
	Reason    string
	Reference string
}

// PaymentGateway decides whether a validated checkout is paid
type PaymentGateway interface {
	Authorize(ctx context.Context, req PaymentRequest) (PaymentDecision, error)
}

// SimulatedGateway approves every validated request synchronously. No money moves.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Authorize(ctx context.Context, req PaymentRequest) (PaymentDecision, error) {
	if err := ctx.Err(); err != nil {
		return PaymentDecision{}, err
	}
	if req.Amount.IsNegative() {
		return PaymentDecision{Reason: "negative amount"}, nil
	}
	return PaymentDecision{
		Approved:  true,
		Reference: "sim-" + req.AttemptID.String(),
	}, nil
}
