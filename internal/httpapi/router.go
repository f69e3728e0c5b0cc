package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/notifyqueue"
	"github.com/codesprinters/twillmanager/internal/response"
	"github.com/codesprinters/twillmanager/internal/supervisor"
)

// NewRouter builds the gin engine serving the control plane, in the
// register of collect/main.go's wiring. Per SPEC_FULL.md §4.6's
// Non-goals, no authentication middleware is attached. notifyQueue may be
// nil when the retry queue's backing Redis was unavailable at startup.
func NewRouter(db *sql.DB, sup *supervisor.Supervisor, notifyQueue *notifyqueue.Queue) *gin.Engine {
	h := NewHandlers(db, sup, notifyQueue)

	router := gin.Default()
	router.Use(logger.GinLogger())
	router.Use(logger.SecurityMiddleware())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	if gin.Mode() == gin.DebugMode {
		corsConf := cors.DefaultConfig()
		corsConf.AllowHeaders = []string{"Authorization", "Content-Type", "Accept"}
		corsConf.AllowAllOrigins = true
		router.Use(cors.New(corsConf))
	}

	api := router.Group("/api")
	api.GET("/health", h.Health)

	watches := api.Group("/watches")
	{
		watches.GET("", h.ListWatches)
		watches.POST("", h.CreateWatch)
		watches.GET("/status/stream", h.StatusStream)
		watches.GET("/:id", h.GetWatch)
		watches.PUT("/:id", h.UpdateWatch)
		watches.DELETE("/:id", h.DeleteWatch)
		watches.POST("/:id/restart", h.RestartWatch)
		watches.POST("/:id/stop", h.StopWatch)
		watches.POST("/:id/check", h.CheckWatch)
		watches.POST("/:id/test-alert", h.TestAlertWatch)
		watches.GET("/:id/status", h.WatchStatus)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.NotFound("API not found", nil))
	})

	return router
}
