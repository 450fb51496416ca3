package subscription

import "errors"

var (
	ErrTierNotConfigured = errors.New("subscription tier is not configured")
	ErrTierNotPaid       = errors.New("tier does not require a subscription")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEntryNotFound        = errors.New("waiting list entry not found")
	ErrInvalidTransition    = errors.New("invalid subscription status transition")

	ErrLedgerUnavailable      = errors.New("subscription ledger store unavailable")
	ErrWaitingListUnavailable = errors.New("waiting list store unavailable")

	ErrPaymentTimeout = errors.New("renewal payment timed out")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("payment provider API key is required")
	ErrInvalidProviderEnvironment = errors.New("invalid payment provider environment")
	ErrMissingPriceID             = errors.New("payment method price ID is required")
)
