package eventlog

import "go.uber.org/fx"

// Module exposes the billing event log via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
