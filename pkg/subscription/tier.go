package subscription

import (
	"context"

	"github.com/google/uuid"
)

// TierConfig describes a paid tier as resolved from the membership catalog.
// Price is in the smallest currency unit. Ceiling is the maximum number of
// simultaneously active subscriptions for the tier. ChurnRate is the
// historical monthly churn fraction used for waiting-time estimates only.
type TierConfig struct {
	Price     int64
	Platform  string
	Ceiling   int
	ChurnRate float64
}

// User is the subset of the user record this package needs for
// waiting-list bookkeeping and notifications.
type User struct {
	Email    string
	Username string
}

// Catalog abstracts the membership/tier catalog collaborator.
// Implementations resolve tier configuration and apply effective-tier
// changes to user records; they own that data, this package never does.
type Catalog interface {
	// GetTierConfig resolves the configuration for a tier.
	// Returns ErrTierNotConfigured if the tier is unknown or has no price.
	GetTierConfig(ctx context.Context, tier Tier) (TierConfig, error)

	// GetUser returns contact details for a user.
	GetUser(ctx context.Context, userID uuid.UUID) (User, error)

	// UpgradeMembership sets the user's effective tier after admission.
	UpgradeMembership(ctx context.Context, userID uuid.UUID, tier Tier) error

	// DowngradeMembership lowers the user's effective tier, used on
	// suspension and on natural period end of a cancelled subscription.
	DowngradeMembership(ctx context.Context, userID uuid.UUID, tier Tier) error
}

// StaticCatalog is a Catalog backed by a fixed tier map. Useful for tests
// and for host applications whose catalog is configuration, not data.
type StaticCatalog struct {
	Tiers map[Tier]TierConfig
	Users map[uuid.UUID]User
}

func (c *StaticCatalog) GetTierConfig(_ context.Context, tier Tier) (TierConfig, error) {
	cfg, ok := c.Tiers[tier]
	if !ok || cfg.Price <= 0 {
		return TierConfig{}, ErrTierNotConfigured
	}
	return cfg, nil
}

func (c *StaticCatalog) GetUser(_ context.Context, userID uuid.UUID) (User, error) {
	return c.Users[userID], nil
}

func (c *StaticCatalog) UpgradeMembership(_ context.Context, _ uuid.UUID, _ Tier) error {
	return nil
}

func (c *StaticCatalog) DowngradeMembership(_ context.Context, _ uuid.UUID, _ Tier) error {
	return nil
}
