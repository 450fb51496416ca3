package subscription

import "fmt"

// allowedTransitions is the subscription lifecycle table. Every status
// write in this package goes through transition, so an impossible edge
// (e.g. resurrecting a cancelled subscription) fails instead of silently
// corrupting the ledger.
//
//	active -> pending_renewal        renewal due, driven by the scheduler
//	pending_renewal -> active        payment succeeded
//	pending_renewal -> pending_renewal  payment failed, retry scheduled
//	pending_renewal -> suspended     attempts exhausted
//	active|pending_renewal|suspended -> cancelled  explicit cancellation
//	active|pending_renewal|cancelled -> expired    period end without renewal
var allowedTransitions = map[Status][]Status{
	StatusActive:         {StatusPendingRenewal, StatusCancelled, StatusExpired},
	StatusPendingRenewal: {StatusActive, StatusPendingRenewal, StatusSuspended, StatusCancelled, StatusExpired},
	StatusSuspended:      {StatusCancelled},
	StatusCancelled:      {StatusExpired},
}

// transition moves the subscription to the target status after validating
// the edge against the lifecycle table.
func transition(sub *Subscription, to Status) error {
	for _, next := range allowedTransitions[sub.Status] {
		if next == to {
			sub.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, to)
}

// canTransition reports whether the edge exists without mutating the record.
func canTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
