package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanga-finance/yanga/internal/api/handler"
	"github.com/yanga-finance/yanga/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	allowedOrigin string,
	statementHandler *handler.StatementHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(allowedOrigin))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		statements := v1.Group("/statements")
		{
			statements.POST("", statementHandler.Upload)
			statements.GET("/:id/transactions", statementHandler.ListByBatch)
			statements.GET("/:id/uncategorized", statementHandler.ListUncategorized)
			statements.POST("/:id/categories", statementHandler.ApplyCorrections)
			statements.GET("/:id/summary", statementHandler.Summary)
			statements.GET("/:id/export", statementHandler.Export)
		}

		// Convenience view over the most recent upload
		v1.GET("/transactions", statementHandler.ListLatest)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
