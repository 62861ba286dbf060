package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/paulexconde/bizassess/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes mounts the lifecycle API on rg.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.POST("/admins", h.RegisterAdmin)

	rg.POST("/surveys", h.CreateSurvey)
	rg.GET("/surveys", h.ListSurveys)
	rg.GET("/surveys/:surveyId", h.GetSurvey)
	rg.DELETE("/surveys/:surveyId", h.DeleteSurvey)

	rg.POST("/surveys/:surveyId/versions", h.CreateDraftVersion)
	rg.GET("/surveys/:surveyId/versions", h.VersionHistory)
	rg.GET("/surveys/:surveyId/versions/latest", h.LatestVersion)
	rg.POST("/surveys/:surveyId/sessions", h.StartSession)

	rg.GET("/versions/:versionId", h.GetVersion)
	rg.PUT("/versions/:versionId", h.UpdateDraft)
	rg.POST("/versions/:versionId/clone", h.CloneVersion)
	rg.POST("/versions/:versionId/publish", h.PublishVersion)
	rg.POST("/versions/:versionId/unpublish", h.UnpublishVersion)

	rg.GET("/sessions/:sessionId/version", h.SessionVersion)

	rg.POST("/structures/validate", h.ValidateStructure)
	rg.GET("/audit", h.Audit)
}

type RouterOptions struct {
	ServiceName string
	Gatherer    prometheus.Gatherer
	// Ping checks the backing database; nil when there is none.
	Ping         func(ctx context.Context) error
	AllowOrigins []string
}

// NewRouter builds the engine: the API under /api/v1 plus /healthz and /metrics.
func NewRouter(h *Handlers, log *logger.Logger, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(opts.ServiceName), requestLogger(log))

	if len(opts.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "X-Requested-With"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(c *gin.Context) {
		if opts.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ping(ctx); err != nil {
				log.Warn("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	RegisterRoutes(router.Group("/api/v1"), h)
	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
