package signoff

import "go.uber.org/fx"

var Module = fx.Module("signoff.service",
	fx.Provide(NewService),
)
