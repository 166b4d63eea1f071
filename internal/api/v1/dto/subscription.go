package dto

import "time"

// SubscriptionCheckoutRequest selects the paid billing interval.
type SubscriptionCheckoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=monthly annual"`
}

// SubscriptionResponseDTO is returned when fetching the caller's subscription.
type SubscriptionResponseDTO struct {
	PlanID             string     `json:"planId"`
	Status             string     `json:"status"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
}
