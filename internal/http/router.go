// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"wayfarer/internal/http/handlers"
	"wayfarer/internal/http/middleware"
	"wayfarer/internal/infra"
	"wayfarer/internal/metrics"
	"wayfarer/internal/service"
)

type RouterDeps struct {
	Conversation *service.Conversation
	// Verifier may be nil, which disables authentication.
	Verifier       infra.TokenVerifier
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logging(logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	trips := handlers.NewTripHandler(deps.Conversation, deps.RequestTimeout)
	api.POST("/trips/parse", trips.Parse)
	api.POST("/trips/modify", trips.Modify)
	api.GET("/sessions/:id", trips.GetSession)
	api.DELETE("/sessions/:id", trips.DeleteSession)
	api.POST("/sessions/:id/undo", trips.Undo)
	return r
}
