package model

import "time"

// Plan identifiers. A user with no active pro subscription is treated as free.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// UserSubscription mirrors one row of user_subscriptions. Status values come
// from the billing provider: active, cancelled, past_due, unpaid, trialing,
// incomplete.
type UserSubscription struct {
	UserID               string    `db:"user_id" json:"user_id"`
	PlanID               string    `db:"plan_id" json:"plan_id"`
	StripeSubscriptionID *string   `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	Status               string    `db:"status" json:"status"`
	CurrentPeriodStart   time.Time `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time `db:"current_period_end" json:"current_period_end"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// IsPro reports whether the subscription grants unlimited operations.
func (s *UserSubscription) IsPro() bool {
	return s != nil && s.PlanID == PlanPro
}

// SubscriptionPlan describes a purchasable plan with its limits.
type SubscriptionPlan struct {
	ID               string `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	PriceCents       int    `db:"price_cents" json:"price_cents"`
	OperationsPerDay int    `db:"operations_per_day" json:"operations_per_day"` // 0 means unlimited
	MaxFileSizeMB    int    `db:"max_file_size_mb" json:"max_file_size_mb"`
}
