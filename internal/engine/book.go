package engine

import (
	"container/list"
	"errors"
	"fmt"
	"slices"
	"strings"
)

type (
	OrderID  uint64
	TraderID uint64
	// Price is expressed in integer ticks.
	Price int64
	Qty   int64
)

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (s Side) opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ParseSide accepts bid/buy and ask/sell.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(raw) {
	case "bid", "buy":
		return Bid, nil
	case "ask", "sell":
		return Ask, nil
	}
	return Bid, fmt.Errorf("unknown side %q", raw)
}

type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

type TimeInForce uint8

const (
	// Day rests any unfilled limit quantity.
	Day TimeInForce = iota
	// IOC fills what it can and drops the rest.
	IOC
	// FOK fills completely or not at all.
	FOK
)

func (t TimeInForce) String() string {
	switch t {
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	}
	return "day"
}

// STPPolicy decides what happens when an order would trade against a
// resting order of the same trader.
type STPPolicy uint8

const (
	STPNone STPPolicy = iota
	// STPCancelTaker drops the incoming order's remaining quantity.
	STPCancelTaker
	// STPCancelMaker cancels the overlapping quantity of the resting order
	// and consumes the same quantity of the incoming order.
	STPCancelMaker
)

func (p STPPolicy) String() string {
	switch p {
	case STPCancelTaker:
		return "cancel_taker"
	case STPCancelMaker:
		return "cancel_maker"
	}
	return "none"
}

// ParseSTPPolicy accepts none, cancel_taker and cancel_maker.
func ParseSTPPolicy(raw string) (STPPolicy, error) {
	switch strings.ToLower(raw) {
	case "", "none":
		return STPNone, nil
	case "cancel_taker":
		return STPCancelTaker, nil
	case "cancel_maker":
		return STPCancelMaker, nil
	}
	return STPNone, fmt.Errorf("unknown self-trade prevention policy %q", raw)
}

var (
	ErrInvalidQty     = errors.New("quantity must be positive")
	ErrInvalidPrice   = errors.New("limit price must be positive")
	ErrDuplicateOrder = errors.New("order id already resting")
	ErrUnknownOrder   = errors.New("unknown order id")
	ErrNotOwner       = errors.New("order belongs to another trader")
	ErrFOKUnfilled    = errors.New("fill-or-kill order could not be fully filled")
)

// Order is an instruction submitted to the book.
type Order struct {
	ID     OrderID
	Trader TraderID
	Side   Side
	Type   OrderType
	TIF    TimeInForce
	Price  Price
	Qty    Qty
}

type Fill struct {
	TakerID OrderID `json:"taker_id"`
	MakerID OrderID `json:"maker_id"`
	Price   Price   `json:"price"`
	Qty     Qty     `json:"qty"`
}

// STPCancel records resting quantity removed by self-trade prevention.
type STPCancel struct {
	MakerID OrderID `json:"maker_id"`
	Side    Side    `json:"-"`
	Price   Price   `json:"price"`
	Qty     Qty     `json:"qty"`
}

type MatchResult struct {
	Fills       []Fill      `json:"fills"`
	STPCanceled []STPCancel `json:"stp_canceled,omitempty"`
	// PostedQty is the quantity left resting; always zero for market, IOC and FOK.
	PostedQty   Qty  `json:"posted_qty"`
	BookChanged bool `json:"book_changed"`
}

// FilledQty sums the quantity of all fills.
func (r MatchResult) FilledQty() Qty {
	var sum Qty
	for _, f := range r.Fills {
		sum += f.Qty
	}
	return sum
}

type CancelResult struct {
	ID          OrderID `json:"id"`
	Side        Side    `json:"-"`
	Price       Price   `json:"price"`
	QtyCanceled Qty     `json:"qty_canceled"`
}

// BestOfBook holds the top of each side. A side with no orders has its
// Has flag unset.
type BestOfBook struct {
	Bid    Price
	HasBid bool
	Ask    Price
	HasAsk bool
}

// Mid returns the midpoint when both sides are present.
func (b BestOfBook) Mid() (float64, bool) {
	if !b.HasBid || !b.HasAsk {
		return 0, false
	}
	return 0.5 * (float64(b.Bid) + float64(b.Ask)), true
}

// Spread returns ask minus bid when both sides are present.
func (b BestOfBook) Spread() (Price, bool) {
	if !b.HasBid || !b.HasAsk {
		return 0, false
	}
	return b.Ask - b.Bid, true
}

type restingOrder struct {
	id     OrderID
	trader TraderID
	side   Side
	price  Price
	qty    Qty
	elem   *list.Element
}

// priceLevel keeps its orders in arrival order.
type priceLevel struct {
	price  Price
	total  Qty
	orders *list.List
}

func (l *priceLevel) pushBack(o *restingOrder) {
	o.elem = l.orders.PushBack(o)
	l.total += o.qty
}

func (l *priceLevel) remove(o *restingOrder) {
	l.orders.Remove(o.elem)
	o.elem = nil
	l.total -= o.qty
}

func (l *priceLevel) head() *restingOrder {
	if e := l.orders.Front(); e != nil {
		return e.Value.(*restingOrder)
	}
	return nil
}

// bookSide keeps its price keys sorted so that keys[0] is the best level.
// Bids are keyed by negated price, so key maps a key back to its price too.
type bookSide struct {
	side   Side
	keys   []Price
	levels map[Price]*priceLevel
	total  Qty
}

func newBookSide(side Side) *bookSide {
	return &bookSide{side: side, levels: make(map[Price]*priceLevel)}
}

func (s *bookSide) key(px Price) Price {
	if s.side == Bid {
		return -px
	}
	return px
}

func (s *bookSide) best() *priceLevel {
	if len(s.keys) == 0 {
		return nil
	}
	return s.levels[s.key(s.keys[0])]
}

func (s *bookSide) level(px Price) *priceLevel {
	if lvl, ok := s.levels[px]; ok {
		return lvl
	}
	lvl := &priceLevel{price: px, orders: list.New()}
	s.levels[px] = lvl
	k := s.key(px)
	i, _ := slices.BinarySearch(s.keys, k)
	s.keys = slices.Insert(s.keys, i, k)
	return lvl
}

func (s *bookSide) dropLevel(px Price) {
	delete(s.levels, px)
	if i, ok := slices.BinarySearch(s.keys, s.key(px)); ok {
		s.keys = slices.Delete(s.keys, i, i+1)
	}
}

// crosses reports whether a taker at px on the other side can trade at lvl.
func (s *bookSide) crosses(lvl *priceLevel, o Order) bool {
	if o.Type == Market {
		return true
	}
	if s.side == Ask {
		return o.Price >= lvl.price
	}
	return o.Price <= lvl.price
}

// Book is a price-time priority limit order book. It is not safe for
// concurrent use; MatchEngine serialises access.
type Book struct {
	stp   STPPolicy
	bids  *bookSide
	asks  *bookSide
	index map[OrderID]*restingOrder
}

func NewBook(stp STPPolicy) *Book {
	return &Book{
		stp:   stp,
		bids:  newBookSide(Bid),
		asks:  newBookSide(Ask),
		index: make(map[OrderID]*restingOrder),
	}
}

func (b *Book) sideOf(s Side) *bookSide {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// Has reports whether id is resting.
func (b *Book) Has(id OrderID) bool {
	_, ok := b.index[id]
	return ok
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return len(b.index)
}

func (b *Book) Best() BestOfBook {
	var out BestOfBook
	if lvl := b.bids.best(); lvl != nil {
		out.Bid, out.HasBid = lvl.price, true
	}
	if lvl := b.asks.best(); lvl != nil {
		out.Ask, out.HasAsk = lvl.price, true
	}
	return out
}

// LevelQty returns the resting quantity at px, zero when the level is empty.
func (b *Book) LevelQty(side Side, px Price) Qty {
	if lvl, ok := b.sideOf(side).levels[px]; ok {
		return lvl.total
	}
	return 0
}

// SideQty returns the total resting quantity on one side.
func (b *Book) SideQty(side Side) Qty {
	return b.sideOf(side).total
}

// Submit matches o against the opposite side and rests any remainder of a
// Day limit order. A FOK order that cannot fill completely returns
// ErrFOKUnfilled and leaves the book untouched.
func (b *Book) Submit(o Order) (MatchResult, error) {
	var out MatchResult
	if o.Qty <= 0 {
		return out, ErrInvalidQty
	}
	if o.Type == Limit && o.Price <= 0 {
		return out, ErrInvalidPrice
	}
	if b.Has(o.ID) {
		return out, ErrDuplicateOrder
	}
	if o.TIF == FOK && b.fillable(o) < o.Qty {
		return out, ErrFOKUnfilled
	}

	makers := b.sideOf(o.Side.opposite())
	qty := o.Qty

match:
	for qty > 0 {
		lvl := makers.best()
		if lvl == nil || !makers.crosses(lvl, o) {
			break
		}

		for qty > 0 {
			maker := lvl.head()
			if maker == nil {
				break
			}
			traded := min(qty, maker.qty)

			if b.stp != STPNone && maker.trader == o.Trader {
				if b.stp == STPCancelTaker {
					qty = 0
					break match
				}
				out.STPCanceled = append(out.STPCanceled, STPCancel{
					MakerID: maker.id, Side: maker.side, Price: lvl.price, Qty: traded,
				})
			} else {
				out.Fills = append(out.Fills, Fill{
					TakerID: o.ID, MakerID: maker.id, Price: lvl.price, Qty: traded,
				})
			}

			qty -= traded
			b.take(makers, lvl, maker, traded)
			out.BookChanged = true
		}
	}

	if qty > 0 && o.Type == Limit && o.TIF == Day {
		b.rest(o, qty)
		out.PostedQty = qty
		out.BookChanged = true
	}
	return out, nil
}

// fillable sums the quantity o could trade before running out of crossing
// levels, honouring the self-trade policy.
func (b *Book) fillable(o Order) Qty {
	makers := b.sideOf(o.Side.opposite())
	var avail Qty
	for _, k := range makers.keys {
		lvl := makers.levels[makers.key(k)]
		if !makers.crosses(lvl, o) {
			break
		}
		for e := lvl.orders.Front(); e != nil; e = e.Next() {
			maker := e.Value.(*restingOrder)
			if b.stp != STPNone && maker.trader == o.Trader {
				if b.stp == STPCancelTaker {
					return avail
				}
				continue
			}
			avail += maker.qty
			if avail >= o.Qty {
				return avail
			}
		}
	}
	return avail
}

// take removes dq from a resting order, dropping the order and its level
// when they empty.
func (b *Book) take(side *bookSide, lvl *priceLevel, o *restingOrder, dq Qty) {
	o.qty -= dq
	lvl.total -= dq
	side.total -= dq
	if o.qty > 0 {
		return
	}
	lvl.orders.Remove(o.elem)
	o.elem = nil
	delete(b.index, o.id)
	if lvl.orders.Len() == 0 {
		side.dropLevel(lvl.price)
	}
}

func (b *Book) rest(o Order, qty Qty) {
	side := b.sideOf(o.Side)
	n := &restingOrder{id: o.ID, trader: o.Trader, side: o.Side, price: o.Price, qty: qty}
	side.level(o.Price).pushBack(n)
	side.total += qty
	b.index[o.ID] = n
}

// Cancel removes a resting order.
func (b *Book) Cancel(id OrderID) (CancelResult, error) {
	o, ok := b.index[id]
	if !ok {
		return CancelResult{}, ErrUnknownOrder
	}
	side := b.sideOf(o.side)
	lvl := side.levels[o.price]

	lvl.remove(o)
	side.total -= o.qty
	delete(b.index, id)
	if lvl.orders.Len() == 0 {
		side.dropLevel(o.price)
	}
	return CancelResult{ID: id, Side: o.side, Price: o.price, QtyCanceled: o.qty}, nil
}

// Reduce subtracts dq from a resting order in place, keeping its queue
// position. Reducing by the full quantity removes the order.
func (b *Book) Reduce(id OrderID, dq Qty) error {
	if dq < 0 {
		return ErrInvalidQty
	}
	o, ok := b.index[id]
	if !ok {
		return ErrUnknownOrder
	}
	if dq > o.qty {
		return fmt.Errorf("reduce %d by %d: %w", id, dq, ErrInvalidQty)
	}
	if dq == 0 {
		return nil
	}
	side := b.sideOf(o.side)
	b.take(side, side.levels[o.price], o, dq)
	return nil
}

type ReplaceResult struct {
	// Canceled is the original order as it was removed; zero when the
	// replace was an in-place reduction.
	Canceled CancelResult `json:"canceled"`
	Match    MatchResult  `json:"match"`
	// Reduced is set when the order kept its queue position.
	Reduced bool `json:"reduced"`
}

// Replace amends a resting order. A quantity decrease at the same price
// keeps time priority. Any other change cancels the original and submits a
// new limit order under the same id, which may trade. When that new order
// is rejected the original stays canceled.
func (b *Book) Replace(trader TraderID, id OrderID, px Price, qty Qty, tif TimeInForce) (ReplaceResult, error) {
	var out ReplaceResult
	if qty <= 0 {
		return out, ErrInvalidQty
	}
	o, ok := b.index[id]
	if !ok {
		return out, ErrUnknownOrder
	}
	if o.trader != trader {
		return out, ErrNotOwner
	}

	if px == o.price && qty <= o.qty && tif == Day {
		out.Reduced = true
		return out, b.Reduce(id, o.qty-qty)
	}

	side := o.side
	canceled, err := b.Cancel(id)
	if err != nil {
		return out, err
	}
	out.Canceled = canceled

	match, err := b.Submit(Order{
		ID: id, Trader: trader, Side: side, Type: Limit, TIF: tif, Price: px, Qty: qty,
	})
	out.Match = match
	if err != nil {
		return out, fmt.Errorf("replace %d: %w", id, err)
	}
	return out, nil
}

// CheckInvariants walks the whole book and describes every inconsistency it
// finds. An empty result means the book is sound.
func (b *Book) CheckInvariants() []string {
	var errs []string
	seen := 0

	for _, side := range []*bookSide{b.bids, b.asks} {
		if len(side.keys) != len(side.levels) {
			errs = append(errs, fmt.Sprintf("%s: %d keys for %d levels", side.side, len(side.keys), len(side.levels)))
		}
		if !slices.IsSorted(side.keys) {
			errs = append(errs, fmt.Sprintf("%s: price keys out of order", side.side))
		}

		var sideTotal Qty
		for px, lvl := range side.levels {
			if lvl.price != px {
				errs = append(errs, fmt.Sprintf("%s: level keyed %d holds price %d", side.side, px, lvl.price))
			}
			if lvl.orders.Len() == 0 {
				errs = append(errs, fmt.Sprintf("%s: empty level @%d", side.side, px))
			}
			var walk Qty
			for e := lvl.orders.Front(); e != nil; e = e.Next() {
				o := e.Value.(*restingOrder)
				seen++
				walk += o.qty
				if o.qty <= 0 {
					errs = append(errs, fmt.Sprintf("non-positive qty id=%d", o.id))
				}
				if idx, ok := b.index[o.id]; !ok || idx != o {
					errs = append(errs, fmt.Sprintf("index mismatch id=%d", o.id))
				}
				if o.price != px || o.side != side.side {
					errs = append(errs, fmt.Sprintf("order on wrong level id=%d", o.id))
				}
				if o.elem != e {
					errs = append(errs, fmt.Sprintf("stale list element id=%d", o.id))
				}
			}
			if walk != lvl.total {
				errs = append(errs, fmt.Sprintf("%s: level total mismatch @%d", side.side, px))
			}
			sideTotal += lvl.total
		}
		if sideTotal != side.total {
			errs = append(errs, fmt.Sprintf("%s: side total mismatch", side.side))
		}
	}

	if seen != len(b.index) {
		errs = append(errs, fmt.Sprintf("index holds %d ids for %d resting orders", len(b.index), seen))
	}

	best := b.Best()
	if best.HasBid && best.HasAsk && best.Bid >= best.Ask {
		errs = append(errs, "locked/crossed book: best bid >= best ask")
	}
	return errs
}
