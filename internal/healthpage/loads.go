package healthpage

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLoadTTL is how long a page load survives without being requested.
const DefaultLoadTTL = 30 * time.Second

type load struct {
	page     *Page
	lastSeen time.Time
}

// Loads tracks one Page per browser page load, keyed by a random id carried
// in the refresh URL. A load that is not requested for ttl is evicted and
// closed; a settled page stops refreshing, so it goes after ttl.
type Loads struct {
	checker Checker
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	loads  map[string]*load
	closed bool
}

// NewLoads builds pages that ask checker for health with the given timeout.
// A non-positive ttl uses DefaultLoadTTL.
func NewLoads(checker Checker, timeout, ttl time.Duration) *Loads {
	if ttl <= 0 {
		ttl = DefaultLoadTTL
	}
	return &Loads{
		checker: checker,
		timeout: timeout,
		ttl:     ttl,
		now:     time.Now,
		loads:   make(map[string]*load),
	}
}

// Open starts a new page load. The page is not mounted. After Close the
// returned page is already closed and never checks.
func (l *Loads) Open() (string, *Page) {
	id := uuid.NewString()
	page := NewPage(l.checker, l.timeout)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		page.Close()
		return id, page
	}
	now := l.now()
	l.sweep(now)
	l.loads[id] = &load{page: page, lastSeen: now}
	return id, page
}

// Get returns the page of a live load and marks it as seen.
func (l *Loads) Get(id string) (*Page, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	ld, ok := l.loads[id]
	if !ok {
		return nil, false
	}
	ld.lastSeen = now
	return ld.page, true
}

// Len returns the number of live loads.
func (l *Loads) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loads)
}

// Close closes every live page. Later loads are born closed.
func (l *Loads) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	for id, ld := range l.loads {
		ld.page.Close()
		delete(l.loads, id)
	}
}

// sweep must be called with mu held.
func (l *Loads) sweep(now time.Time) {
	for id, ld := range l.loads {
		if now.Sub(ld.lastSeen) >= l.ttl {
			ld.page.Close()
			delete(l.loads, id)
		}
	}
}
