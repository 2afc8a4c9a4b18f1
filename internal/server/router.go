package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/uinav/appgraph-backend/internal/handlers"
	"github.com/uinav/appgraph-backend/internal/platform/envutil"
)

type RouterConfig struct {
	ExtractionHandler  *handlers.ExtractionHandler
	NavigationHandler  *handlers.NavigationHandler
	RecoveryHandler    *handlers.RecoveryHandler
	ConsistencyHandler *handlers.ConsistencyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	if envutil.Bool("OTEL_ENABLED", false) {
		router.Use(otelgin.Middleware("appgraph"))
	}

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Extraction jobs
		api.POST("/extractions", cfg.ExtractionHandler.Start)
		api.GET("/extractions/:id", cfg.ExtractionHandler.Get)
		api.POST("/extractions/:id/cancel", cfg.ExtractionHandler.Cancel)
		api.GET("/sites/:site_id/extractions", cfg.ExtractionHandler.List)

		// Navigation
		api.GET("/sites/:site_id/path", cfg.NavigationHandler.Path)
		api.GET("/sites/:site_id/screens/search", cfg.NavigationHandler.Search)
		api.GET("/sites/:site_id/screens/:id/neighbors", cfg.NavigationHandler.Neighbors)
		api.POST("/sites/:site_id/identify", cfg.NavigationHandler.Identify)

		// Recovery
		api.GET("/screens/:id/recovery", cfg.RecoveryHandler.Options)

		// Consistency
		api.POST("/sites/:site_id/consistency/validate", cfg.ConsistencyHandler.Validate)
		api.POST("/sites/:site_id/consistency/repair", cfg.ConsistencyHandler.Repair)
	}

	return router
}

func allowedOrigins() []string {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5174")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
