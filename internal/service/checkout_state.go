package service

import (
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// CheckoutState is a step of one checkout attempt.
type CheckoutState string

const (
	CheckoutIdle       CheckoutState = "idle"
	CheckoutValidating CheckoutState = "validating"
	CheckoutCommitting CheckoutState = "committing"
	CheckoutSucceeded  CheckoutState = "succeeded"
	CheckoutFailed     CheckoutState = "failed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutIdle:       {CheckoutValidating},
	CheckoutValidating: {CheckoutCommitting, CheckoutIdle},
	CheckoutCommitting: {CheckoutSucceeded, CheckoutFailed},
}

func (s CheckoutState) CanTransitionTo(next CheckoutState) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutSucceeded || s == CheckoutFailed
}

// Attempt is the record of one checkout call. A rejected validation returns it
// to idle with Reason set; a commit always ends succeeded or failed.
type Attempt struct {
	ID         uuid.UUID       `json:"id"`
	Cart       domain.CartRef  `json:"cart"`
	State      CheckoutState   `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	History    []CheckoutState `json:"history"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

func newAttempt(ref domain.CartRef) *Attempt {
	return &Attempt{
		ID:        uuid.New(),
		Cart:      ref,
		State:     CheckoutIdle,
		History:   []CheckoutState{CheckoutIdle},
		StartedAt: time.Now().UTC(),
	}
}

func (a *Attempt) transition(next CheckoutState, reason string) error {
	if !a.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, a.State, next)
	}
	a.State = next
	a.Reason = reason
	a.History = append(a.History, next)
	if next.IsTerminal() || next == CheckoutIdle {
		a.FinishedAt = time.Now().UTC()
	}
	return nil
}

// mustTransition is for transitions the orchestrator controls; failing one is a bug.
func (a *Attempt) mustTransition(next CheckoutState, reason string) {
	if err := a.transition(next, reason); err != nil {
		panic(err)
	}
}
