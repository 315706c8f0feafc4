// Package positions maintains the authoritative view of per-symbol positions
// and profit/loss as fills arrive.
//
// Accounting is average-cost: extending a position reprices the open lot as a
// volume-weighted average, reducing one realizes PnL against the lot, and a
// fill that crosses through zero closes the old lot and seeds a new one at
// the fill price. The book also tracks the portfolio peak, max drawdown, a
// 24-hour rolling daily PnL window, and a bounded history of PnL snapshots.
package positions

import (
	"log"
	"math"
	"sync"
	"time"

	"pairs-execd/internal/model"
	"pairs-execd/internal/ringbuf"
)

// DefaultHistoryMax bounds the PnL history when no explicit bound is given.
const DefaultHistoryMax = 1000

// Book tracks all positions, market prices, and PnL state. Safe for use from
// the signal path and the broker callback path concurrently.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
	prices    map[string]float64

	totalRealized   float64
	totalUnrealized float64
	peakValue       float64
	maxDrawdown     float64

	dailyPnL         float64
	dailyPeak        float64
	dailyMaxDrawdown float64
	lastDailyReset   time.Time

	history *ringbuf.Ring

	now func() time.Time // clock hook for tests
}

// NewBook creates an empty book. historyMax <= 0 selects DefaultHistoryMax.
func NewBook(historyMax int) *Book {
	if historyMax <= 0 {
		historyMax = DefaultHistoryMax
	}
	return &Book{
		positions:      make(map[string]*model.Position),
		prices:         make(map[string]float64),
		history:        ringbuf.New(historyMax),
		lastDailyReset: time.Now(),
		now:            time.Now,
	}
}

// ApplyFill applies one fill to the book and returns the realized PnL delta
// it produced (0 for fills that only extend a position). quantity is the
// filled magnitude and must be > 0; direction is carried by action.
func (b *Book) ApplyFill(symbol string, action model.Action, quantity int64, price float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok {
		pos = &model.Position{Symbol: symbol}
		b.positions[symbol] = pos
	}
	pos.LastUpdate = b.now()

	var realized float64
	switch action {
	case model.ActionBuy:
		realized = b.applyBuy(pos, quantity, price)
	case model.ActionSell:
		realized = b.applySell(pos, quantity, price)
	default:
		log.Printf("[positions] ignoring fill with unknown action %q for %s", action, symbol)
		return 0
	}

	pos.RealizedPnL += realized
	b.totalRealized += realized

	b.recomputeUnrealized()
	b.updateDrawdown()
	b.updateDaily()

	log.Printf("[positions] %s: %d shares @ %.2f (realized %+.2f)",
		symbol, pos.Qty, pos.AvgPrice, realized)
	return realized
}

// applyBuy handles the BUY case rules. Returns the realized PnL delta.
func (b *Book) applyBuy(pos *model.Position, qty int64, price float64) float64 {
	if pos.Qty >= 0 {
		// Flat or long: extend, volume-weighted average cost.
		totalCost := float64(pos.Qty)*pos.AvgPrice + float64(qty)*price
		pos.Qty += qty
		if pos.Qty > 0 {
			pos.AvgPrice = totalCost / float64(pos.Qty)
		} else {
			pos.AvgPrice = 0
		}
		return 0
	}

	short := -pos.Qty
	if qty <= short {
		// Partial or full cover of the short lot.
		realized := (pos.AvgPrice - price) * float64(qty)
		pos.Qty += qty
		if pos.Qty == 0 {
			pos.AvgPrice = 0
		}
		return realized
	}

	// Cover the whole short, flip long at the fill price.
	realized := (pos.AvgPrice - price) * float64(short)
	pos.Qty = qty - short
	pos.AvgPrice = price
	return realized
}

// applySell mirrors applyBuy for the SELL side.
func (b *Book) applySell(pos *model.Position, qty int64, price float64) float64 {
	if pos.Qty <= 0 {
		// Flat or short: extend, weighted average over the short magnitude.
		totalCost := float64(-pos.Qty)*pos.AvgPrice + float64(qty)*price
		pos.Qty -= qty
		if pos.Qty < 0 {
			pos.AvgPrice = totalCost / float64(-pos.Qty)
		} else {
			pos.AvgPrice = 0
		}
		return 0
	}

	long := pos.Qty
	if qty <= long {
		// Partial or full sale of the long lot.
		realized := (price - pos.AvgPrice) * float64(qty)
		pos.Qty -= qty
		if pos.Qty == 0 {
			pos.AvgPrice = 0
		}
		return realized
	}

	// Sell the whole long, flip short at the fill price.
	realized := (price - pos.AvgPrice) * float64(long)
	pos.Qty = -(qty - long)
	pos.AvgPrice = price
	return realized
}

// UpdateMarketPrices replaces the cached price map and re-derives unrealized
// PnL and drawdown. Realized PnL is untouched.
func (b *Book) UpdateMarketPrices(prices map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prices = make(map[string]float64, len(prices))
	for sym, px := range prices {
		b.prices[sym] = px
	}
	b.recomputeUnrealized()
	b.updateDrawdown()
	b.updateDaily()
}

// PairPositions projects the two legs named by pairName ("AAPL_MSFT") into
// one combined view. Unknown pairs or symbols project as flat.
func (b *Book) PairPositions(pairName string) model.PairPositions {
	symbolA, symbolB, ok := model.SplitPair(pairName)
	if !ok {
		return model.PairPositions{PairName: pairName}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	pp := model.PairPositions{PairName: pairName, SymbolA: symbolA, SymbolB: symbolB}
	if pos, ok := b.positions[symbolA]; ok {
		pp.SharesA = pos.Qty
		pp.AvgPriceA = pos.AvgPrice
		if _, havePx := b.prices[symbolA]; havePx {
			pp.MarketValue += pos.MarketValue
			pp.UnrealizedPnL += pos.UnrealizedPnL
		}
	}
	if pos, ok := b.positions[symbolB]; ok {
		pp.SharesB = pos.Qty
		pp.AvgPriceB = pos.AvgPrice
		if _, havePx := b.prices[symbolB]; havePx {
			pp.MarketValue += pos.MarketValue
			pp.UnrealizedPnL += pos.UnrealizedPnL
		}
	}
	return pp
}

// Position returns a copy of the position for symbol.
func (b *Book) Position(symbol string) (model.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// AllPositions returns symbol -> signed quantity for every tracked symbol.
func (b *Book) AllPositions() map[string]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int64, len(b.positions))
	for sym, pos := range b.positions {
		out[sym] = pos.Qty
	}
	return out
}

// UnrealizedPnL returns the unrealized PnL for one symbol (0 if untracked).
func (b *Book) UnrealizedPnL(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if pos, ok := b.positions[symbol]; ok {
		return pos.UnrealizedPnL
	}
	return 0
}

// TotalRealizedPnL returns cumulative realized PnL.
func (b *Book) TotalRealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalRealized
}

// TotalUnrealizedPnL returns portfolio unrealized PnL at the latest prices.
func (b *Book) TotalUnrealizedPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalUnrealized
}

// TotalPnL returns realized plus unrealized PnL.
func (b *Book) TotalPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalPnLLocked()
}

// CurrentDrawdown returns the percentage decline from the running peak.
// Zero while the peak is non-positive.
func (b *Book) CurrentDrawdown() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentDrawdownLocked()
}

// MaxDrawdown returns the worst drawdown observed so far.
func (b *Book) MaxDrawdown() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxDrawdown
}

// PeakValue returns the running peak of total PnL. Non-decreasing.
func (b *Book) PeakValue() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peakValue
}

// DailyPnL returns PnL within the current 24-hour window.
func (b *Book) DailyPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dailyPnL
}

// DailyDrawdown returns the worst drawdown within the current 24-hour window.
func (b *Book) DailyDrawdown() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dailyMaxDrawdown
}

// Exposure returns the sum of |qty * price| over symbols with a known price.
func (b *Book) Exposure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exposureLocked()
}

// AddHistory appends one snapshot of the current PnL state. Called after
// each fill-driven update; the ring evicts the oldest entry when full.
func (b *Book) AddHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.Push(model.PnLSnapshot{
		TotalPnL:      b.totalPnLLocked(),
		RealizedPnL:   b.totalRealized,
		UnrealizedPnL: b.totalUnrealized,
		Drawdown:      b.currentDrawdownLocked(),
		PeakValue:     b.peakValue,
		Timestamp:     b.now(),
	})
}

// History returns the retained PnL snapshots, oldest first.
func (b *Book) History() []model.PnLSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.Snapshot()
}

// ResetDaily zeroes the daily window. Explicit; never implied by reads.
func (b *Book) ResetDaily() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetDailyLocked()
	log.Println("[positions] daily metrics reset")
}

// ResetAll clears every position, price, metric, and the history.
func (b *Book) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = make(map[string]*model.Position)
	b.prices = make(map[string]float64)
	b.totalRealized = 0
	b.totalUnrealized = 0
	b.peakValue = 0
	b.maxDrawdown = 0
	b.history.Reset()
	b.resetDailyLocked()
	log.Println("[positions] all position and PnL state reset")
}

// ---- internal, caller holds b.mu ----

func (b *Book) totalPnLLocked() float64 {
	return b.totalRealized + b.totalUnrealized
}

func (b *Book) currentDrawdownLocked() float64 {
	if b.peakValue <= 0 {
		return 0
	}
	return (b.peakValue - b.totalPnLLocked()) / b.peakValue * 100
}

func (b *Book) exposureLocked() float64 {
	var total float64
	for sym, pos := range b.positions {
		if px, ok := b.prices[sym]; ok {
			total += math.Abs(float64(pos.Qty) * px)
		}
	}
	return total
}

// recomputeUnrealized re-derives per-symbol and portfolio unrealized PnL
// from the cached prices. Symbols without a price keep their last value
// out of the portfolio total, matching a feed that has not ticked yet.
func (b *Book) recomputeUnrealized() {
	b.totalUnrealized = 0
	for sym, pos := range b.positions {
		px, ok := b.prices[sym]
		if !ok {
			continue
		}
		pos.MarketValue = float64(pos.Qty) * px
		switch {
		case pos.Qty > 0:
			pos.UnrealizedPnL = (px - pos.AvgPrice) * float64(pos.Qty)
		case pos.Qty < 0:
			pos.UnrealizedPnL = (pos.AvgPrice - px) * float64(-pos.Qty)
		default:
			pos.UnrealizedPnL = 0
		}
		b.totalUnrealized += pos.UnrealizedPnL
	}
}

func (b *Book) updateDrawdown() {
	current := b.totalPnLLocked()
	if current > b.peakValue {
		b.peakValue = current
	}
	if b.peakValue > 0 {
		dd := (b.peakValue - current) / b.peakValue * 100
		if dd > b.maxDrawdown {
			b.maxDrawdown = dd
		}
	}
}

// updateDaily maintains the rolling 24-hour window: the window resets once
// 24 hours have elapsed since the last reset, not at a calendar boundary.
func (b *Book) updateDaily() {
	if b.now().Sub(b.lastDailyReset) >= 24*time.Hour {
		b.resetDailyLocked()
	}

	current := b.totalPnLLocked()
	b.dailyPnL = current
	if current > b.dailyPeak {
		b.dailyPeak = current
	}
	if b.dailyPeak > 0 {
		dd := (b.dailyPeak - current) / b.dailyPeak * 100
		if dd > b.dailyMaxDrawdown {
			b.dailyMaxDrawdown = dd
		}
	}
}

func (b *Book) resetDailyLocked() {
	b.dailyPnL = 0
	b.dailyPeak = 0
	b.dailyMaxDrawdown = 0
	b.lastDailyReset = b.now()
}
