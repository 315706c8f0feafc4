package model

import (
	"strings"
	"time"
)

// Position is the tracked state for one symbol. Created on the first fill,
// mutated on every later fill and market-price update, never deleted.
type Position struct {
	Symbol        string    `json:"symbol"`
	Qty           int64     `json:"qty"`        // positive = long, negative = short
	AvgPrice      float64   `json:"avg_price"`  // cost of the open lot; 0 while flat
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	MarketValue   float64   `json:"market_value"`
	LastUpdate    time.Time `json:"last_update"`
}

// PairPositions is a read-only projection of the two legs named by a pair.
// It is computed on demand and never cached.
type PairPositions struct {
	PairName      string  `json:"pair_name"`
	SymbolA       string  `json:"symbol_a"`
	SymbolB       string  `json:"symbol_b"`
	SharesA       int64   `json:"shares_a"`
	SharesB       int64   `json:"shares_b"`
	AvgPriceA     float64 `json:"avg_price_a"`
	AvgPriceB     float64 `json:"avg_price_b"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// SplitPair splits a pair name of the form "AAPL_MSFT" into its legs.
// ok is false when the name carries no separator.
func SplitPair(pairName string) (symbolA, symbolB string, ok bool) {
	i := strings.Index(pairName, "_")
	if i < 0 {
		return "", "", false
	}
	return pairName[:i], pairName[i+1:], true
}

// PnLSnapshot is one entry of the bounded PnL history, taken after each
// fill-driven update.
type PnLSnapshot struct {
	TotalPnL      float64   `json:"total_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Drawdown      float64   `json:"drawdown"`
	PeakValue     float64   `json:"peak_value"`
	Timestamp     time.Time `json:"timestamp"`
}
