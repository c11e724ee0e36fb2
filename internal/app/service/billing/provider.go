package billing

import (
	"context"
	"time"

	"github.com/epigram-app/entitlement-service/pkg/types"
)

// CheckoutParams describes one subscription-mode checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	PlanID     types.PlanID
	UserID     string
	// TrialDays attaches a provider-side trial when > 0.
	TrialDays int64
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProviderSubscription is the provider's view of a subscription reduced to
// the fields the coordinator syncs.
type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            types.SubscriptionStatus
	PriceID           string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	Metadata          map[string]string
}

// Provider is the billing backend the subscription coordinator drives.
type Provider interface {
	// Create a billing customer for the user, keyed by email and linked back
	// via user_id metadata.
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	// Open a subscription-mode checkout session.
	CreateCheckoutSession(ctx context.Context, p *CheckoutParams) (*CheckoutSession, error)
	// Fetch the provider's current view of a subscription.
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	// Schedule or undo cancellation at the end of the current period.
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*ProviderSubscription, error)
	// Create the configured percent-off coupon and attach it to the
	// subscription.
	ApplyRetentionDiscount(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}
