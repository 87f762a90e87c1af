package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MatchEngine serialises access to one Book and publishes what happens to
// it on a Bus.
type MatchEngine struct {
	mu      sync.Mutex
	book    *Book
	bus     *Bus
	metrics *Metrics
}

// NewMatchEngine builds an engine around an empty book. metrics may be nil.
func NewMatchEngine(bus *Bus, stp STPPolicy, metrics *Metrics) *MatchEngine {
	return &MatchEngine{
		book:    NewBook(stp),
		bus:     bus,
		metrics: metrics,
	}
}

// RegisterBookGauges exposes resting depth and order count on reg.
func (e *MatchEngine) RegisterBookGauges(reg prometheus.Registerer) {
	for _, side := range []Side{Bid, Ask} {
		side := side
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "engine_book_resting_qty",
				Help:        "Resting quantity per side of the book.",
				ConstLabels: prometheus.Labels{"side": side.String()},
			},
			func() float64 { return float64(e.SideQty(side)) },
		))
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "engine_book_resting_orders",
			Help: "Orders resting in the book.",
		},
		func() float64 {
			e.mu.Lock()
			defer e.mu.Unlock()
			return float64(e.book.Len())
		},
	))
}

// Submit runs o through the book and publishes a FillEvent per fill, a
// CancelEvent per self-trade cancellation and a BookChangeEvent when the
// book moved.
func (e *MatchEngine) Submit(o Order) (MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.book.Submit(o)
	if err != nil {
		e.metrics.reject(err)
		return r, err
	}
	e.metrics.order(o)
	e.metrics.match(r)
	e.publishMatch(o, r)
	return r, nil
}

// Limit submits a Day limit order.
func (e *MatchEngine) Limit(trader TraderID, id OrderID, side Side, px Price, qty Qty) (MatchResult, error) {
	return e.Submit(Order{ID: id, Trader: trader, Side: side, Type: Limit, TIF: Day, Price: px, Qty: qty})
}

// Market submits a market order; it never rests.
func (e *MatchEngine) Market(trader TraderID, id OrderID, side Side, qty Qty) (MatchResult, error) {
	return e.Submit(Order{ID: id, Trader: trader, Side: side, Type: Market, TIF: IOC, Qty: qty})
}

func (e *MatchEngine) Cancel(id OrderID) (CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.book.Cancel(id)
	if err != nil {
		e.metrics.reject(err)
		return c, err
	}
	e.metrics.cancel()
	e.publishCancel(c)
	return c, nil
}

func (e *MatchEngine) Replace(trader TraderID, id OrderID, px Price, qty Qty, tif TimeInForce) (ReplaceResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var side Side
	var oldPx Price
	if o, ok := e.book.index[id]; ok {
		side, oldPx = o.side, o.price
	}

	r, err := e.book.Replace(trader, id, px, qty, tif)
	if r.Canceled.QtyCanceled > 0 {
		e.publishCancel(r.Canceled)
	}
	if err != nil {
		e.metrics.reject(err)
		return r, err
	}

	if r.Reduced {
		e.publish(BookChangeEvent{Side: side, Price: oldPx, NewLevelQty: e.book.LevelQty(side, oldPx)})
		return r, nil
	}
	o := Order{ID: id, Trader: trader, Side: side, Type: Limit, TIF: tif, Price: px, Qty: qty}
	e.metrics.order(o)
	e.metrics.match(r.Match)
	e.publishMatch(o, r.Match)
	return r, nil
}

func (e *MatchEngine) Best() BestOfBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Best()
}

func (e *MatchEngine) LevelQty(side Side, px Price) Qty {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.LevelQty(side, px)
}

func (e *MatchEngine) SideQty(side Side) Qty {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.SideQty(side)
}

func (e *MatchEngine) Has(id OrderID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Has(id)
}

func (e *MatchEngine) CheckInvariants() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.CheckInvariants()
}

func (e *MatchEngine) publishMatch(o Order, r MatchResult) {
	for _, f := range r.Fills {
		e.publish(FillEvent{TakerID: f.TakerID, MakerID: f.MakerID, TakerSide: o.Side, Price: f.Price, Qty: f.Qty})
	}
	for _, c := range r.STPCanceled {
		e.publish(CancelEvent{ID: c.MakerID, Side: c.Side, Price: c.Price, QtyCanceled: c.Qty})
	}
	if !r.BookChanged {
		return
	}
	if o.Type == Market {
		e.publish(BookChangeEvent{Side: o.Side})
		return
	}
	e.publish(BookChangeEvent{Side: o.Side, Price: o.Price, NewLevelQty: e.book.LevelQty(o.Side, o.Price)})
}

func (e *MatchEngine) publishCancel(c CancelResult) {
	e.publish(CancelEvent{ID: c.ID, Side: c.Side, Price: c.Price, QtyCanceled: c.QtyCanceled})
	e.publish(BookChangeEvent{Side: c.Side, Price: c.Price, NewLevelQty: e.book.LevelQty(c.Side, c.Price)})
}

func (e *MatchEngine) publish(ev Event) {
	if e.bus == nil {
		return
	}
	if !e.bus.TryPublish(ev) {
		e.metrics.dropped()
	}
}
