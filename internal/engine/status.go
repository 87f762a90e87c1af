// Package engine holds the limit order book, the match engine that drives
// it, and the engine's HTTP surface: order entry, Prometheus metrics on
// /metrics, and a plain "ok" on every other path.
package engine

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version string
	GitSHA  string
}

// Status owns the engine's metric registry.
type Status struct {
	registry *prometheus.Registry
	started  time.Time
}

// NewStatus registers build_info and engine_uptime_seconds. now is the clock
// used for uptime; pass time.Now outside tests.
func NewStatus(info BuildInfo, now func() time.Time) *Status {
	s := &Status{
		registry: prometheus.NewRegistry(),
		started:  now(),
	}

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information.",
		},
		[]string{"git_sha", "version"},
	)
	buildInfo.WithLabelValues(info.GitSHA, info.Version).Set(1)

	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "engine_uptime_seconds",
			Help: "Engine uptime in seconds.",
		},
		func() float64 { return now().Sub(s.started).Seconds() },
	)

	s.registry.MustRegister(buildInfo, uptime)
	return s
}

// Registry exposes the registry so callers can add their own collectors.
func (s *Status) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Status) ok(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain", []byte("ok\n"))
}

func (s *Status) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.NoRoute(s.ok)
	r.NoMethod(s.ok)
}
