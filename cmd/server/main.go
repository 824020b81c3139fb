package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/openwind/approvalflow/internal/config"
	"github.com/openwind/approvalflow/internal/directory"
	"github.com/openwind/approvalflow/internal/domain/event"
	"github.com/openwind/approvalflow/internal/engine"
	"github.com/openwind/approvalflow/internal/export"
	httpserver "github.com/openwind/approvalflow/internal/interfaces/http"
	"github.com/openwind/approvalflow/internal/query"
	"github.com/openwind/approvalflow/internal/repository"
	"github.com/openwind/approvalflow/internal/template"
	"github.com/openwind/approvalflow/migrations"
	"github.com/openwind/approvalflow/pkg/database"
	"github.com/openwind/approvalflow/pkg/utils"
)

// sugarLogger adapts zap's sugared logger to the HTTP server's Logger interface
type sugarLogger struct {
	s *zap.SugaredLogger
}

func (l sugarLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l sugarLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func main() {
	_ = gotenv.Load()

	configPath := "configs/config.yaml"
	if v := os.Getenv("APPROVALFLOW_CONFIG"); v != "" {
		configPath = v
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow service",
		zap.Int("port", cfg.Server.Port),
		zap.String("reject_policy", cfg.Engine.RejectPolicy))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	nodeRepo := repository.NewNodeRepository(db.DB, logger)
	itemRepo := repository.NewItemRepository(db.DB, logger)

	operatorDir := directory.NewSQLiteDirectory(db.DB, logger)
	templateStore := template.NewStore(db, templateRepo, instanceRepo, logger)

	bus := event.NewBus()
	bus.Subscribe(func(e *event.Event) {
		logger.Info("Workflow event",
			zap.String("type", e.Type.String()),
			zap.String("instance_id", e.InstanceID),
			zap.String("doc_id", e.DocID))
	})

	eng := engine.NewEngine(
		db,
		templateStore,
		instanceRepo,
		nodeRepo,
		itemRepo,
		operatorDir,
		engine.PolicyByName(cfg.Engine.RejectPolicy),
		bus,
		logger,
	)

	queries := query.NewService(instanceRepo, nodeRepo, itemRepo, logger)
	exporter := export.NewAuditExporter(queries, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, templateStore, eng, queries, exporter, sugarLogger{logger.Sugar()})

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
