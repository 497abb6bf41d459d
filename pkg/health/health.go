package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Report struct {
	Status string       `json:"status"`
	Deps   []Dependency `json:"deps,omitempty"`
}

type Service interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type checker struct {
	db    *gorm.DB
	redis *redis.Client
}

type Params struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p Params) Service {
	return &checker{db: p.DB, redis: p.Redis}
}

func (h *checker) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Report{Status: "ok"})
}

// Readiness pings every wired backend. Any failing dependency degrades the
// overall status but the response itself is always 200 with detail.
func (h *checker) Readiness(c *gin.Context) {
	report := &Report{Status: "ok"}

	if h.db != nil {
		dep := Dependency{Name: h.db.Name(), Status: "ok"}
		if sql, err := h.db.DB(); err != nil {
			dep.Status, dep.Message = "unavailable", err.Error()
		} else if err := sql.PingContext(c.Request.Context()); err != nil {
			dep.Status, dep.Message = "unavailable", err.Error()
		}
		report.Deps = append(report.Deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: "ok"}
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			dep.Status, dep.Message = "unavailable", err.Error()
		}
		report.Deps = append(report.Deps, dep)
	}

	for _, dep := range report.Deps {
		if dep.Status != "ok" {
			report.Status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, report)
}
