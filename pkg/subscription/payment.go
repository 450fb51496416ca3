package subscription

import (
	"context"

	"github.com/google/uuid"
)

// ChargeRequest describes a renewal charge for the payment collaborator.
type ChargeRequest struct {
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Amount         int64 // smallest currency unit
	Platform       string
	PaymentMethod  string
}

// ChargeResult is the outcome of a charge attempt. A declined charge is an
// expected business outcome, not an error: Success is false and Reason
// carries the provider's reason code.
type ChargeResult struct {
	Success bool
	Reason  string
}

// PaymentProvider abstracts the payment execution backend. Callers bound
// the wait with a context deadline; a deadline exceeded is treated as a
// failed attempt, never as a crash.
type PaymentProvider interface {
	AttemptRenewalPayment(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
