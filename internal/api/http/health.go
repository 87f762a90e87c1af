package http

import (
	"context"
	"net/http"
	"time"

	"github.com/andyluo22/mini-hft/internal/upstream"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	DependencyDisabled = "disabled"
	DependencyUp       = "up"
	DependencyDown     = "down"

	defaultPingTimeout = time.Second
)

// HealthResponse extends the {"status"} contract the health page reads with
// service details. Status is always upstream.StatusOK while the process
// serves requests; dependency trouble shows up under Dependencies only.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// Dependency is something /health pings. A nil Ping reports it disabled.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	serviceName string
	version     string
	deps        []Dependency
	pingTimeout time.Duration
	now         func() time.Time
}

// NewHealthHandler builds the /health handler for the given dependencies.
func NewHealthHandler(serviceName, version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		deps:        deps,
		pingTimeout: defaultPingTimeout,
		now:         time.Now,
	}
}

// checkDependencies pings every enabled dependency concurrently, each bounded
// by the ping timeout.
func (h *HealthHandler) checkDependencies(ctx context.Context) map[string]string {
	states := make([]string, len(h.deps))

	var g errgroup.Group
	for i, dep := range h.deps {
		if dep.Ping == nil {
			states[i] = DependencyDisabled
			continue
		}
		i, dep := i, dep
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, h.pingTimeout)
			defer cancel()

			states[i] = DependencyUp
			if err := dep.Ping(pingCtx); err != nil {
				states[i] = DependencyDown
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(h.deps))
	for i, dep := range h.deps {
		out[dep.Name] = states[i]
	}
	return out
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       upstream.StatusOK,
		Timestamp:    h.now().UTC(),
		Service:      h.serviceName,
		Version:      h.version,
		Dependencies: h.checkDependencies(c.Request.Context()),
	})
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
