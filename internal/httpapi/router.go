package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
)

var errRouteNotFound = errors.New("route not found")

type RouterConfig struct {
	Handlers *Handlers
}

// NewRouter builds the read-only introspection server: /healthz,
// /stages, /locks, instrumented with otelgin so each request's span
// nests under whatever the caller's propagated trace context is.
func NewRouter(cfg RouterConfig, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("pipedag-engine"))
	r.Use(attachTraceID())
	r.Use(requestLogger(log))

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not_found", errRouteNotFound)
	})

	if cfg.Handlers != nil {
		r.GET("/healthz", cfg.Handlers.HealthCheck)
		r.GET("/stages", cfg.Handlers.ListStages)
		r.GET("/locks", cfg.Handlers.ListLocks)
	}

	return r
}
