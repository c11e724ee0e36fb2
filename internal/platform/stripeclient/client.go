// Package stripeclient provides the shared Stripe API client.
package stripeclient

import (
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/fx"
)

// New builds a Stripe client bound to the configured secret key.
func New(cfg *config.Config) *client.API {
	sc := &client.API{}
	sc.Init(cfg.Stripe.APIKey, nil)
	return sc
}

var Module = fx.Options(
	fx.Provide(New),
)
