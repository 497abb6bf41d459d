package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"upkeep/pkg/access"
	"upkeep/pkg/config"
	"upkeep/pkg/db"
	"upkeep/pkg/gen"
	"upkeep/pkg/health"
	"upkeep/pkg/httpapi"
	"upkeep/pkg/logger"
	"upkeep/pkg/objectstore"
	"upkeep/pkg/redis"
	"upkeep/pkg/server"
	"upkeep/pkg/task"
	"upkeep/services/audit"
	"upkeep/services/plan"
	"upkeep/services/signoff"
	"upkeep/services/sweep"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		redis.Module,
		access.Module,
		objectstore.Module,
		health.Module,
		task.Client,

		plan.Module,
		audit.Module,
		signoff.Module,
		sweep.Module,

		httpapi.Module,
		server.ProvideHTTPServer,

		fx.Invoke(
			migrate,
			db.Otel,
			db.Metric,
			sweep.StartScheduler,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&plan.Plan{},
		&plan.Task{},
		&signoff.SignOff{},
		&signoff.ConsumableUsage{},
		&signoff.Attachment{},
		&audit.TaskAudit{},
	)
}
