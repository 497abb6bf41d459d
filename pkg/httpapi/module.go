package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"upkeep/pkg/health"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(registerHealthEndpoints, RegisterRoutes),
)

func registerHealthEndpoints(r *gin.Engine, h health.Service) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}
