package billing

import "go.uber.org/fx"

// Module exposes the billing provider via Fx.
var Module = fx.Options(
	fx.Provide(NewStripeProvider),
)
