package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for accessing subscription data. The
// quota subsystem only reads it; writes come from the billing webhook.
type SubscriptionRepository interface {
	// GetActiveSubscription returns the user's currently effective
	// subscription, or nil when they have none (free tier).
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	UpsertStripeSubscription(ctx context.Context, userID, planID string, periodStart, periodEnd time.Time, status, stripeSubscriptionID string) error
	DowngradeUserToFreePlan(ctx context.Context, userID string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `user_id, plan_id, stripe_subscription_id, status, current_period_start, current_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	var us model.UserSubscription
	err := row.Scan(
		&us.UserID,
		&us.PlanID,
		&us.StripeSubscriptionID,
		&us.Status,
		&us.CurrentPeriodStart,
		&us.CurrentPeriodEnd,
		&us.CreatedAt,
		&us.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &us, nil
}

// GetActiveSubscription returns the current active subscription for a user.
// Cancelled subscriptions stay effective until the paid period ends.
func (r *subscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT ` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1
          AND status IN ('active', 'trialing', 'cancelled')
          AND current_period_end > NOW()
    `
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch active subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

// GetSubscription returns the user's subscription regardless of status.
func (r *subscriptionRepo) GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT ` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1
    `
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

// UpsertStripeSubscription creates or replaces the user's subscription from a
// billing webhook event. At most one row per user.
func (r *subscriptionRepo) UpsertStripeSubscription(ctx context.Context, userID, planID string, periodStart, periodEnd time.Time, status, stripeSubscriptionID string) error {
	var subID *string
	if stripeSubscriptionID != "" {
		subID = &stripeSubscriptionID
	}

	const q = `
		INSERT INTO user_subscriptions (user_id, plan_id, stripe_subscription_id, status, current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET plan_id = EXCLUDED.plan_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = NOW();
	`
	_, err := r.pool.Exec(ctx, q, userID, planID, subID, status, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("upsert stripe subscription for user %s: %w", userID, err)
	}
	return nil
}

// DowngradeUserToFreePlan downgrades a user to the free plan when their
// subscription is deleted
func (r *subscriptionRepo) DowngradeUserToFreePlan(ctx context.Context, userID string) error {
	const q = `
		UPDATE user_subscriptions
		SET
			plan_id = 'free',
			status = 'active',
			current_period_start = NOW(),
			current_period_end = NOW() + INTERVAL '31 days',
			stripe_subscription_id = NULL,
			updated_at = NOW()
		WHERE
			user_id = $1;
	`
	_, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("downgrade user %s to free plan: %w", userID, err)
	}
	return nil
}
