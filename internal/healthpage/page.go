// Package healthpage renders the API health page. The page starts in the
// "checking..." state, runs one health check after its first render and
// then shows either the reported status or "error".
package healthpage

import (
	"context"
	"sync"
	"time"

	"github.com/andyluo22/mini-hft/internal/logging"
)

const (
	// Sentinel is displayed until the health check settles.
	Sentinel = "checking..."

	// ErrorText replaces the sentinel when the health check fails for any reason.
	ErrorText = "error"
)

// Checker reports the status string of a remote health endpoint.
type Checker interface {
	HealthStatus(ctx context.Context) (string, error)
}

// Page owns the displayed status. The one-shot check is its only writer.
type Page struct {
	checker Checker
	timeout time.Duration

	mu     sync.RWMutex
	status string

	once   sync.Once
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPage returns a page showing the sentinel. timeout bounds the check;
// zero leaves it unbounded.
func NewPage(checker Checker, timeout time.Duration) *Page {
	ctx, cancel := context.WithCancel(context.Background())
	return &Page{
		checker: checker,
		timeout: timeout,
		status:  Sentinel,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Status returns the value currently displayed.
func (p *Page) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Settled reports whether the check has finished or been discarded.
func (p *Page) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed once the check has settled.
func (p *Page) Done() <-chan struct{} {
	return p.done
}

// Mount schedules the health check. Only the first call has any effect.
func (p *Page) Mount() {
	p.once.Do(func() {
		go p.run()
	})
}

// Close cancels a pending check. A cancelled check never updates the
// status. Closing an unmounted page settles it without checking.
func (p *Page) Close() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *Page) run() {
	defer close(p.done)

	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	status, err := p.checker.HealthStatus(ctx)
	if err != nil {
		status = ErrorText
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Close cancels under mu, so a page closed at any point before this
	// lock keeps its sentinel.
	if p.ctx.Err() != nil {
		logging.NewLogger(ctx).LogDebugf("health_page", "page closed before health check settled")
		return
	}
	p.status = status
}
