package http

import (
	"context"
	"net/http"

	"github.com/andyluo22/mini-hft/internal/upstream"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// MetricsSource returns the engine's Prometheus exposition text.
type MetricsSource interface {
	Metrics(ctx context.Context) ([]byte, error)
}

// MetricsProxyHandler forwards the engine's /metrics through the API.
type MetricsProxyHandler struct {
	engine  MetricsSource
	limiter *rate.Limiter
}

// NewMetricsProxyHandler allows rps sustained requests with the given burst.
func NewMetricsProxyHandler(engine MetricsSource, rps float64, burst int) *MetricsProxyHandler {
	return &MetricsProxyHandler{
		engine:  engine,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (h *MetricsProxyHandler) rateLimit(c *gin.Context) {
	if !h.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	c.Next()
}

func (h *MetricsProxyHandler) Proxy(c *gin.Context) {
	body, err := h.engine.Metrics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "engine metrics unavailable"})
		return
	}
	c.Data(http.StatusOK, upstream.MetricsContentType, body)
}

func (h *MetricsProxyHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/metrics-proxy", h.rateLimit, h.Proxy)
}
