package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/thenetcircle/dino-sub002/config"
	"github.com/thenetcircle/dino-sub002/modules/auth"
	"github.com/thenetcircle/dino-sub002/modules/broadcast"
	"github.com/thenetcircle/dino-sub002/modules/history"
	"github.com/thenetcircle/dino-sub002/modules/observe"
	"github.com/thenetcircle/dino-sub002/modules/pipeline"
	"github.com/thenetcircle/dino-sub002/modules/presence"
	"github.com/thenetcircle/dino-sub002/modules/registry"
	"github.com/thenetcircle/dino-sub002/modules/wsserver"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := mono.LogLevelInfo
	if cfg.LogLevel == "ERROR" {
		logLevel = mono.LogLevelError
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// The observe module tees every log line into its ring for /logs.
	observeModule := observe.NewModule(app.Logger())
	logger := observeModule.WrapLogger(app.Logger())

	presenceModule := presence.NewModule(cfg, logger)
	registryModule := registry.NewModule(cfg, logger)
	historyModule := history.NewModule(cfg, logger)
	authModule := auth.NewModule(cfg, logger)
	pipelineModule := pipeline.NewModule(cfg, logger)
	broadcastModule := broadcast.NewModule(logger)

	addr := os.Getenv("BIND_ADDR")
	if addr == "" {
		addr = ":5210"
	}
	serverModule := wsserver.NewModule(
		addr,
		pipelineModule,
		broadcastModule,
		registryModule,
		historyModule,
		observeModule,
		logger,
	)

	// Inject the store modules into the pipeline.
	// (This is done manually because the stores are not exposed via ServiceContainer)
	pipelineModule.SetModules(authModule, presenceModule, registryModule, historyModule)

	// Registration order is start order: stores first, then the pipeline
	// over them, then fanout, then the transport on top of everything.
	app.Register(observeModule)
	app.Register(presenceModule)
	app.Register(registryModule)
	app.Register(historyModule)
	app.Register(authModule)
	app.Register(pipelineModule)
	app.Register(broadcastModule)
	app.Register(serverModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	logger.Info("Application started",
		"environment", cfg.Environment,
		"addr", addr,
		"storage", cfg.Storage.Type,
		"redis", cfg.RedisHost,
	)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				logger.Info("Graceful shutdown initiated")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
