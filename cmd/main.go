package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/uinav/appgraph-backend/internal/data/db"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	"github.com/uinav/appgraph-backend/internal/handlers"
	"github.com/uinav/appgraph-backend/internal/observability"
	"github.com/uinav/appgraph-backend/internal/platform/envutil"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/platform/neo4jdb"
	"github.com/uinav/appgraph-backend/internal/repos"
	"github.com/uinav/appgraph-backend/internal/server"
	"github.com/uinav/appgraph-backend/internal/services"
	"github.com/uinav/appgraph-backend/internal/temporalx"
	"github.com/uinav/appgraph-backend/internal/temporalx/temporalworker"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Tracing
	if shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "appgraph-backend",
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	}); shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	// Postgres (document store)
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Neo4j (graph projection); memory store when unconfigured
	var graphStore graph.Store
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	if neoClient != nil {
		defer neoClient.Close(ctx)
		graphStore = graph.NewNeo4jStore(neoClient, log)
	} else {
		log.Warn("NEO4J_URI not set; using in-memory graph store")
		graphStore = graph.NewMemoryStore()
	}

	// Operation ledger (redis, memory fallback)
	ledger, err := services.NewRedisLedger(log)
	if err != nil {
		log.Error("Redis ledger init failed", "error", err)
		os.Exit(1)
	}
	if ledger == nil {
		log.Warn("REDIS_ADDR not set; using in-memory operation ledger")
		ledger = services.NewMemoryLedger(envutil.Seconds("LEDGER_TTL_SECONDS", 86400))
	}

	// Repos
	screenRepo := repos.NewScreenRepo(thePG, log)
	taskRepo := repos.NewTaskRepo(thePG, log)
	actionRepo := repos.NewActionRepo(thePG, log)
	transitionRepo := repos.NewTransitionRepo(thePG, log)
	groupRepo := repos.NewScreenGroupRepo(thePG, log)
	jobRepo := repos.NewExtractionJobRepo(thePG, log)

	// Services
	matcherService := services.NewMatcherService(thePG, log, screenRepo)
	builderService := services.NewGraphBuilderService(thePG, log, graphStore,
		screenRepo, taskRepo, actionRepo, transitionRepo, groupRepo)
	navigationService := services.NewNavigationService(thePG, log, graphStore, screenRepo, transitionRepo)
	recoveryService := services.NewRecoveryService(thePG, log, groupRepo, screenRepo)
	validatorService := services.NewValidatorService(thePG, log, graphStore,
		screenRepo, taskRepo, actionRepo, transitionRepo)

	ingesterSet := services.NewIngesterSet(log)
	ingesterSet.Register("document", services.NewDocumentAdapter(log))

	pipelineService := services.NewPipelineService(thePG, log, jobRepo, ledger,
		ingesterSet, builderService, validatorService, screenRepo, actionRepo,
		services.RetryConfigFromEnv())

	// Temporal
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Temporal init failed", "error", err)
		os.Exit(1)
	}
	if temporalClient != nil {
		defer temporalClient.Close()
		runner, err := temporalworker.NewRunner(log, temporalClient, pipelineService)
		if err != nil {
			log.Error("Temporal worker init failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Start(ctx); err != nil {
			log.Error("Temporal worker start failed", "error", err)
			os.Exit(1)
		}
	}

	// Handlers
	extractionHandler := handlers.NewExtractionHandler(log, pipelineService, temporalClient)
	navigationHandler := handlers.NewNavigationHandler(navigationService, matcherService)
	recoveryHandler := handlers.NewRecoveryHandler(recoveryService)
	consistencyHandler := handlers.NewConsistencyHandler(validatorService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		ExtractionHandler:  extractionHandler,
		NavigationHandler:  navigationHandler,
		RecoveryHandler:    recoveryHandler,
		ConsistencyHandler: consistencyHandler,
	})

	port := envutil.String("PORT", "8080")
	log.Info("server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
