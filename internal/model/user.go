package model

import "time"

// User represents a user in the system
type User struct {
	UserID           string    `db:"user_id" json:"user_id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// UsageStatus is the advisory quota snapshot returned to clients. Remaining is
// UnlimitedOperations for pro users so a finite number is never compared
// against an unbounded allowance.
type UsageStatus struct {
	Remaining int  `json:"remaining"`
	IsProUser bool `json:"is_pro_user"`
}

// UnlimitedOperations is the sentinel for "no daily cap".
const UnlimitedOperations = -1
