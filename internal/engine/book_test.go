package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limit(trader TraderID, id OrderID, side Side, px Price, qty Qty, tif TimeInForce) Order {
	return Order{ID: id, Trader: trader, Side: side, Type: Limit, TIF: tif, Price: px, Qty: qty}
}

func market(trader TraderID, id OrderID, side Side, qty Qty) Order {
	return Order{ID: id, Trader: trader, Side: side, Type: Market, TIF: IOC, Qty: qty}
}

func mustSubmit(t *testing.T, b *Book, o Order) MatchResult {
	t.Helper()
	r, err := b.Submit(o)
	require.NoError(t, err)
	return r
}

func requireSound(t *testing.T, b *Book) {
	t.Helper()
	errs := b.CheckInvariants()
	require.Empty(t, errs)
}

func makers(r MatchResult) []OrderID {
	var ids []OrderID
	for _, f := range r.Fills {
		ids = append(ids, f.MakerID)
	}
	return ids
}

func TestBook_FIFOAndPartialFill(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(1, 1, Ask, 100, 3, Day))
	mustSubmit(t, b, limit(1, 2, Ask, 100, 5, Day))

	r := mustSubmit(t, b, limit(2, 42, Bid, 100, 6, Day))

	assert.Equal(t, []OrderID{1, 2}, makers(r))
	assert.Equal(t, Qty(6), r.FilledQty())
	assert.Equal(t, Qty(0), r.PostedQty)
	assert.False(t, b.Has(1))
	assert.True(t, b.Has(2))
	assert.False(t, b.Has(42))
	assert.Equal(t, Qty(2), b.LevelQty(Ask, 100))
	requireSound(t, b)
}

func TestBook_Matching(t *testing.T) {
	tests := []struct {
		name       string
		resting    []Order
		taker      Order
		wantMakers []OrderID
		wantPrices []Price
		wantPosted Qty
		wantBest   BestOfBook
	}{
		{
			name:       "limit bid walks asks lowest first",
			resting:    []Order{limit(1, 1, Ask, 101, 2, Day), limit(1, 2, Ask, 100, 2, Day)},
			taker:      limit(2, 9, Bid, 101, 3, Day),
			wantMakers: []OrderID{2, 1},
			wantPrices: []Price{100, 101},
			wantBest:   BestOfBook{Ask: 101, HasAsk: true},
		},
		{
			name:       "limit ask walks bids highest first",
			resting:    []Order{limit(1, 1, Bid, 99, 2, Day), limit(1, 2, Bid, 100, 2, Day)},
			taker:      limit(2, 9, Ask, 99, 4, Day),
			wantMakers: []OrderID{2, 1},
			wantPrices: []Price{100, 99},
		},
		{
			name:       "remainder rests at limit price",
			resting:    []Order{limit(1, 1, Ask, 100, 2, Day)},
			taker:      limit(2, 9, Bid, 100, 5, Day),
			wantMakers: []OrderID{1},
			wantPrices: []Price{100},
			wantPosted: 3,
			wantBest:   BestOfBook{Bid: 100, HasBid: true},
		},
		{
			name:       "non-marketable limit rests without fills",
			resting:    []Order{limit(1, 1, Ask, 101, 2, Day)},
			taker:      limit(2, 9, Bid, 100, 5, Day),
			wantPosted: 5,
			wantBest:   BestOfBook{Bid: 100, HasBid: true, Ask: 101, HasAsk: true},
		},
		{
			name:       "market order sweeps and never rests",
			resting:    []Order{limit(1, 1, Bid, 100, 2, Day), limit(1, 2, Bid, 95, 2, Day)},
			taker:      market(2, 9, Ask, 10),
			wantMakers: []OrderID{1, 2},
			wantPrices: []Price{100, 95},
		},
		{
			name:  "market order on empty book does nothing",
			taker: market(2, 9, Bid, 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(STPNone)
			for _, o := range tt.resting {
				mustSubmit(t, b, o)
			}

			r := mustSubmit(t, b, tt.taker)

			assert.Equal(t, tt.wantMakers, makers(r))
			var prices []Price
			for _, f := range r.Fills {
				prices = append(prices, f.Price)
			}
			assert.Equal(t, tt.wantPrices, prices)
			assert.Equal(t, tt.wantPosted, r.PostedQty)
			assert.Equal(t, tt.wantPosted > 0, b.Has(tt.taker.ID))
			assert.Equal(t, tt.wantBest, b.Best())
			requireSound(t, b)
		})
	}
}

func TestBook_Rejects(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(1, 1, Bid, 100, 5, Day))

	tests := []struct {
		name  string
		order Order
		want  error
	}{
		{"zero qty", limit(1, 2, Bid, 100, 0, Day), ErrInvalidQty},
		{"negative qty", limit(1, 2, Bid, 100, -1, Day), ErrInvalidQty},
		{"zero limit price", limit(1, 2, Bid, 0, 1, Day), ErrInvalidPrice},
		{"duplicate resting id", limit(1, 1, Bid, 99, 1, Day), ErrDuplicateOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Submit(tt.order)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, Qty(5), b.SideQty(Bid))
			requireSound(t, b)
		})
	}
}

func TestBook_Cancel(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(1, 10, Bid, 101, 7, Day))
	mustSubmit(t, b, limit(1, 11, Bid, 101, 3, Day))

	c, err := b.Cancel(10)
	require.NoError(t, err)
	assert.Equal(t, CancelResult{ID: 10, Side: Bid, Price: 101, QtyCanceled: 7}, c)
	assert.Equal(t, Qty(3), b.LevelQty(Bid, 101))
	requireSound(t, b)

	_, err = b.Cancel(10)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	_, err = b.Cancel(11)
	require.NoError(t, err)
	assert.Equal(t, BestOfBook{}, b.Best())
	requireSound(t, b)
}

func TestBook_TimeInForce(t *testing.T) {
	tests := []struct {
		name      string
		resting   []Order
		taker     Order
		wantErr   error
		wantQty   Qty
		wantAskAt Qty
	}{
		{
			name:      "IOC not marketable neither fills nor posts",
			resting:   []Order{limit(1, 101, Ask, 100, 5, Day)},
			taker:     limit(2, 202, Bid, 99, 10, IOC),
			wantAskAt: 5,
		},
		{
			name:      "IOC fills what it can and drops the rest",
			resting:   []Order{limit(1, 101, Ask, 100, 5, Day)},
			taker:     limit(2, 202, Bid, 100, 8, IOC),
			wantQty:   5,
			wantAskAt: 0,
		},
		{
			name:      "FOK short of liquidity is killed without side effects",
			resting:   []Order{limit(1, 11, Ask, 100, 5, Day)},
			taker:     limit(2, 22, Bid, 100, 6, FOK),
			wantErr:   ErrFOKUnfilled,
			wantAskAt: 5,
		},
		{
			name:      "FOK fills fully once liquidity suffices",
			resting:   []Order{limit(1, 11, Ask, 100, 5, Day), limit(3, 33, Ask, 100, 3, Day)},
			taker:     limit(2, 44, Bid, 100, 6, FOK),
			wantQty:   6,
			wantAskAt: 2,
		},
		{
			name:      "FOK only counts crossing levels",
			resting:   []Order{limit(1, 11, Ask, 100, 5, Day), limit(1, 12, Ask, 101, 5, Day)},
			taker:     limit(2, 44, Bid, 100, 6, FOK),
			wantErr:   ErrFOKUnfilled,
			wantAskAt: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(STPNone)
			for _, o := range tt.resting {
				mustSubmit(t, b, o)
			}

			r, err := b.Submit(tt.taker)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantQty, r.FilledQty())
			assert.Equal(t, Qty(0), r.PostedQty)
			assert.False(t, b.Has(tt.taker.ID))
			assert.Equal(t, tt.wantAskAt, b.LevelQty(Ask, 100))
			requireSound(t, b)
		})
	}
}

func TestBook_ReplaceDecreaseKeepsPriority(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(1, 10, Bid, 100, 10, Day))
	mustSubmit(t, b, limit(2, 20, Bid, 100, 10, Day))

	rr, err := b.Replace(1, 10, 100, 6, Day)
	require.NoError(t, err)
	assert.True(t, rr.Reduced)
	assert.Equal(t, Qty(16), b.LevelQty(Bid, 100))

	r := mustSubmit(t, b, market(3, 30, Ask, 6))
	require.NotEmpty(t, r.Fills)
	assert.Equal(t, OrderID(10), r.Fills[0].MakerID)
	assert.False(t, b.Has(10))
	requireSound(t, b)
}

func TestBook_ReplaceLosesPriority(t *testing.T) {
	tests := []struct {
		name      string
		newPx     Price
		newQty    Qty
		wantMaker OrderID
		wantPx    Price
	}{
		{"price change", 101, 10, 10, 101},
		{"quantity increase", 100, 12, 20, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(STPNone)
			mustSubmit(t, b, limit(1, 10, Bid, 100, 10, Day))
			mustSubmit(t, b, limit(2, 20, Bid, 100, 10, Day))

			rr, err := b.Replace(1, 10, tt.newPx, tt.newQty, Day)
			require.NoError(t, err)
			assert.False(t, rr.Reduced)
			assert.Equal(t, Qty(10), rr.Canceled.QtyCanceled)

			r := mustSubmit(t, b, market(3, 30, Ask, 10))
			require.NotEmpty(t, r.Fills)
			assert.Equal(t, tt.wantMaker, r.Fills[0].MakerID)
			assert.Equal(t, tt.wantPx, r.Fills[0].Price)
			requireSound(t, b)
		})
	}
}

func TestBook_ReplaceErrors(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(9, 10, Bid, 100, 5, Day))

	_, err := b.Replace(9, 99, 100, 5, Day)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	_, err = b.Replace(8, 10, 100, 4, Day)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = b.Replace(9, 10, 100, 0, Day)
	assert.ErrorIs(t, err, ErrInvalidQty)

	assert.Equal(t, Qty(5), b.LevelQty(Bid, 100))
	requireSound(t, b)
}

func TestBook_SelfTradePrevention(t *testing.T) {
	tests := []struct {
		name        string
		policy      STPPolicy
		taker       Order
		wantFills   Qty
		wantSTP     int
		wantRestQty Qty
	}{
		{
			name:        "cancel taker drops the incoming overlap",
			policy:      STPCancelTaker,
			taker:       market(7, 202, Bid, 12),
			wantRestQty: 10,
		},
		{
			name:        "cancel maker removes resting overlap",
			policy:      STPCancelMaker,
			taker:       limit(7, 202, Bid, 100, 3, IOC),
			wantSTP:     1,
			wantRestQty: 7,
		},
		{
			name:        "no policy lets a trader cross itself",
			policy:      STPNone,
			taker:       limit(7, 202, Bid, 100, 3, IOC),
			wantFills:   3,
			wantRestQty: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBook(tt.policy)
			mustSubmit(t, b, limit(7, 101, Ask, 100, 10, Day))

			r := mustSubmit(t, b, tt.taker)

			assert.Equal(t, tt.wantFills, r.FilledQty())
			assert.Len(t, r.STPCanceled, tt.wantSTP)
			assert.False(t, b.Has(202))
			assert.Equal(t, tt.wantRestQty, b.LevelQty(Ask, 100))
			requireSound(t, b)
		})
	}
}

func TestBook_STPCancelMakerLeavesRemainderForOthers(t *testing.T) {
	b := NewBook(STPCancelMaker)
	mustSubmit(t, b, limit(7, 101, Ask, 100, 5, Day))

	r := mustSubmit(t, b, limit(7, 202, Bid, 100, 3, IOC))
	assert.Empty(t, r.Fills)

	r = mustSubmit(t, b, limit(8, 303, Bid, 100, 2, IOC))
	assert.Equal(t, Qty(2), r.FilledQty())
	assert.False(t, b.Has(101))
	requireSound(t, b)
}

func TestBook_STPCancelTakerStopsBehindOtherTraders(t *testing.T) {
	b := NewBook(STPCancelTaker)
	mustSubmit(t, b, limit(1, 1, Ask, 100, 2, Day))
	mustSubmit(t, b, limit(7, 2, Ask, 100, 5, Day))
	mustSubmit(t, b, limit(1, 3, Ask, 100, 5, Day))

	r := mustSubmit(t, b, limit(7, 9, Bid, 100, 10, Day))

	assert.Equal(t, []OrderID{1}, makers(r))
	assert.Equal(t, Qty(0), r.PostedQty)
	assert.Equal(t, Qty(10), b.LevelQty(Ask, 100))
	requireSound(t, b)

	_, err := b.Submit(limit(7, 10, Bid, 100, 3, FOK))
	assert.ErrorIs(t, err, ErrFOKUnfilled)
}

func TestBook_NoStrandedIDs(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(1, 1001, Ask, 100, 5, Day))

	r, err := b.Submit(limit(2, 2002, Bid, 99, 5, IOC))
	require.NoError(t, err)
	assert.Empty(t, r.Fills)
	assert.False(t, b.Has(2002))

	_, err = b.Submit(limit(3, 2003, Bid, 100, 6, FOK))
	assert.ErrorIs(t, err, ErrFOKUnfilled)
	assert.False(t, b.Has(2003))

	assert.Equal(t, 1, b.Len())
	requireSound(t, b)
}

func TestBook_ReplaceWithFailedFOKDropsOriginal(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(9, 10, Bid, 99, 5, Day))
	mustSubmit(t, b, limit(1, 11, Ask, 100, 5, Day))

	rr, err := b.Replace(9, 10, 100, 12, FOK)
	assert.ErrorIs(t, err, ErrFOKUnfilled)
	assert.Equal(t, Qty(5), rr.Canceled.QtyCanceled)

	assert.False(t, b.Has(10))
	assert.Equal(t, Qty(5), b.LevelQty(Ask, 100))
	assert.Equal(t, Qty(0), b.SideQty(Bid))
	requireSound(t, b)
}

func TestBook_Reduce(t *testing.T) {
	b := NewBook(STPNone)
	mustSubmit(t, b, limit(1, 1, Ask, 100, 5, Day))

	require.NoError(t, b.Reduce(1, 0))
	require.NoError(t, b.Reduce(1, 2))
	assert.Equal(t, Qty(3), b.LevelQty(Ask, 100))

	assert.ErrorIs(t, b.Reduce(1, 4), ErrInvalidQty)
	assert.ErrorIs(t, b.Reduce(2, 1), ErrUnknownOrder)

	require.NoError(t, b.Reduce(1, 3))
	assert.False(t, b.Has(1))
	requireSound(t, b)
}

func TestBestOfBook_MidAndSpread(t *testing.T) {
	_, ok := BestOfBook{Bid: 99, HasBid: true}.Mid()
	assert.False(t, ok)

	best := BestOfBook{Bid: 99, HasBid: true, Ask: 102, HasAsk: true}
	mid, ok := best.Mid()
	require.True(t, ok)
	assert.InDelta(t, 100.5, mid, 1e-9)

	spread, ok := best.Spread()
	require.True(t, ok)
	assert.Equal(t, Price(3), spread)
}

// Random operations must never break the book's structure and must conserve
// volume: resting quantity equals posted minus traded minus canceled.
func TestBook_RandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := NewBook(STPCancelMaker)

	var live []OrderID
	var posted, traded, canceled Qty
	nextID := OrderID(1)

	for i := 0; i < 5000; i++ {
		switch op := rng.Intn(10); {
		case op <= 5 || len(live) == 0:
			side := Side(rng.Intn(2))
			o := limit(TraderID(rng.Intn(4)), nextID, side, Price(990+rng.Intn(21)), Qty(1+rng.Intn(10)), TimeInForce(rng.Intn(3)))
			nextID++
			r, err := b.Submit(o)
			if err != nil {
				require.ErrorIs(t, err, ErrFOKUnfilled)
				break
			}
			posted += r.PostedQty
			traded += r.FilledQty()
			for _, c := range r.STPCanceled {
				canceled += c.Qty
			}
			if r.PostedQty > 0 {
				live = append(live, o.ID)
			}
		case op <= 7:
			r, err := b.Submit(market(TraderID(rng.Intn(4)), nextID, Side(rng.Intn(2)), Qty(1+rng.Intn(10))))
			nextID++
			require.NoError(t, err)
			traded += r.FilledQty()
			for _, c := range r.STPCanceled {
				canceled += c.Qty
			}
		default:
			idx := rng.Intn(len(live))
			if c, err := b.Cancel(live[idx]); err == nil {
				canceled += c.QtyCanceled
			}
			live = append(live[:idx], live[idx+1:]...)
		}

		require.Empty(t, b.CheckInvariants(), "step %d", i)
	}

	assert.Equal(t, posted-traded-canceled, b.SideQty(Bid)+b.SideQty(Ask))
}
