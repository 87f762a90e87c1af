package bootstrap

import (
	"context"
	"time"

	httpapi "github.com/andyluo22/mini-hft/internal/api/http"
	"github.com/andyluo22/mini-hft/internal/api/http/middleware"
	"github.com/andyluo22/mini-hft/internal/engine"
	"github.com/andyluo22/mini-hft/internal/healthpage"
	"github.com/andyluo22/mini-hft/internal/upstream"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type APIRouterDeps struct {
	ServiceName    string
	Version        string
	EngineURL      string
	AllowedOrigins []string
	ProxyTimeout   time.Duration
	ProxyRPS       float64
	ProxyBurst     int
	Redis          *redis.Client
	Registry       *prometheus.Registry
}

func newEngine(reg *prometheus.Registry, service string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.NewHTTPMetrics(reg, service).Middleware())
	return r
}

// redisDependency reports redis as disabled when no client is configured.
func redisDependency(rdb *redis.Client) httpapi.Dependency {
	dep := httpapi.Dependency{Name: "redis"}
	if rdb != nil {
		dep.Ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return dep
}

// BuildAPIRouter wires /health, /metrics-proxy and the API's own /metrics.
func BuildAPIRouter(dep APIRouterDeps) *gin.Engine {
	r := newEngine(dep.Registry, dep.ServiceName)

	r.Use(cors.New(cors.Config{
		AllowOrigins:  dep.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}))

	engineClient := upstream.NewClient(dep.EngineURL, dep.ProxyTimeout, upstream.NewMetrics(dep.Registry))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version,
		redisDependency(dep.Redis),
		httpapi.Dependency{Name: "engine", Ping: engineClient.Ping},
	)
	healthHandler.RegisterRoutes(r)

	proxyHandler := httpapi.NewMetricsProxyHandler(engineClient, dep.ProxyRPS, dep.ProxyBurst)
	proxyHandler.RegisterRoutes(r)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dep.Registry, promhttp.HandlerOpts{})))

	return r
}

type WebRouterDeps struct {
	ServiceName string
	Loads       *healthpage.Loads
	ConfigVar   string
	Registry    *prometheus.Registry
}

// BuildWebRouter serves the health page, one page per browser page load.
func BuildWebRouter(dep WebRouterDeps) *gin.Engine {
	r := newEngine(dep.Registry, dep.ServiceName)

	healthpage.NewHandler(dep.Loads, dep.ConfigVar).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dep.Registry, promhttp.HandlerOpts{})))

	return r
}

// BuildEngineRouter serves the order entry routes and the engine's status
// surface. The engine's /metrics is its own registry, so request metrics are
// not mixed in.
func BuildEngineRouter(status *engine.Status, matcher *engine.MatchEngine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	engine.NewOrdersHandler(matcher).RegisterRoutes(r)
	status.RegisterRoutes(r)
	return r
}
