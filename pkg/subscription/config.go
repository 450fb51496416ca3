package subscription

import "time"

// Config holds the tunables of the admission and renewal machinery.
// Defaults mirror production values; load from the environment with
// pkg/config or override per-field through service options.
type Config struct {
	GlobalCeiling            int           `env:"SUBSCRIPTION_GLOBAL_CEILING" envDefault:"10000"`             // max active subscriptions across all tiers
	BillingPeriodMonths      int           `env:"SUBSCRIPTION_BILLING_PERIOD_MONTHS" envDefault:"1"`          // length of one paid period
	RenewalLeadTime          time.Duration `env:"SUBSCRIPTION_RENEWAL_LEAD_TIME" envDefault:"72h"`            // renewal attempt starts this long before period end
	RenewalRetryInterval     time.Duration `env:"SUBSCRIPTION_RENEWAL_RETRY_INTERVAL" envDefault:"24h"`       // delay between failed renewal attempts
	MaxRenewalAttempts       int           `env:"SUBSCRIPTION_MAX_RENEWAL_ATTEMPTS" envDefault:"3"`           // consecutive failures before suspension
	PaymentTimeout           time.Duration `env:"SUBSCRIPTION_PAYMENT_TIMEOUT" envDefault:"30s"`              // bound on a single payment collaborator call
	PromotionDiscountPercent int           `env:"SUBSCRIPTION_PROMOTION_DISCOUNT" envDefault:"10"`            // discount applied when promoting from the waiting list
	WaitlistActivationRatio  float64       `env:"SUBSCRIPTION_WAITLIST_ACTIVATION_RATIO" envDefault:"0.9"`    // utilization fraction that engages the waiting list
}
