package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/staffdeck/realtime-api/internal/handler"
	"github.com/staffdeck/realtime-api/internal/handler/ws"
	"github.com/staffdeck/realtime-api/internal/middleware"
	"github.com/staffdeck/realtime-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	wsH           *ws.Handler
	notificationH Handler
	calllogH      Handler
	h             *handler.Handler
	cfg           Config
}

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	wsH *ws.Handler,
	notificationH Handler,
	calllogH Handler,
	h *handler.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		wsH:           wsH,
		notificationH: notificationH,
		calllogH:      calllogH,
		h:             h,
		cfg:           config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		metricsMiddleware(),
	)
	engine.Use(middleware.CORS(config.CORSConfig))

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/healthz", r.h.LivenessCheck)
	r.engine.GET("/readyz", r.h.ReadinessCheck)
	r.engine.GET("/metrics", r.h.MetricsHandler)

	// The websocket endpoint sits outside the rate limited group; it is
	// one long-lived request per client.
	r.engine.GET("/ws", r.auth.Authenticate(), r.wsH.Serve)

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.cfg.RateLimit,
		Burst: r.cfg.RateBurst,
	})
	api.Use(rateLimiter.RateLimit())
	api.Use(r.auth.Authenticate())

	r.notificationH.RegisterRoutes(api)
	r.calllogH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
