package access

import (
	"context"

	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"upkeep/pkg/config"
)

// Checker answers whether a user may mutate maintenance records for a site.
// Mutating operations consult it before any write; read paths do not.
type Checker interface {
	CanEdit(ctx context.Context, userID, siteID string) (bool, error)
}

var Module = fx.Module("access",
	fx.Provide(
		NewEnforcer,
		func(e *Enforcer) Checker { return e },
	),
)

// Enforcer is the casbin-backed Checker used in production.
type Enforcer struct {
	enforcer *casbin.Enforcer
}

func NewEnforcer(cfg *config.Config) (*Enforcer, error) {
	e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	if err != nil {
		zap.L().Error("failed to build casbin enforcer",
			zap.String("model", cfg.AccessControl.Model),
			zap.Error(err),
		)
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

func (e *Enforcer) CanEdit(ctx context.Context, userID, siteID string) (bool, error) {
	return e.enforcer.Enforce(userID, siteID, "edit")
}
