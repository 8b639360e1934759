package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimbusoft/datagate/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(handler *Handler, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware(cfg.CORS.AllowedOrigin, cfg.Identity.TokenHeader))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.POST("/v1/proxy", handler.Proxy)
	router.OPTIONS("/v1/proxy", func(c *gin.Context) {})

	return router
}
