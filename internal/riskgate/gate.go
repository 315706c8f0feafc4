// Package riskgate enforces pre-trade admission control: configured limits
// plus live risk metrics, evaluated as an ordered sequence of checks.
package riskgate

import (
	"fmt"
	"log"
	"math"
	"sync"

	"pairs-execd/internal/model"
	"pairs-execd/internal/protocol"
)

// Hard-coded statistical sanity bounds applied after the configurable limits.
const (
	maxCorrelation = 0.95
	maxVolatility  = 0.50
)

// Limits defines the configurable risk thresholds.
type Limits struct {
	MaxPositionSize  int64   `json:"max_position_size"` // max shares per leg
	MaxDailyLoss     float64 `json:"max_daily_loss"`    // dollars
	MaxTotalExposure float64 `json:"max_total_exposure"`
	MinConfidence    float64 `json:"min_confidence"`
	MaxZScore        float64 `json:"max_z_score"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"` // 0-100
}

// DefaultLimits returns the engine's conservative defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:  10000,
		MaxDailyLoss:     5000,
		MaxTotalExposure: 100000,
		MinConfidence:    0.7,
		MaxZScore:        3.0,
		MaxDrawdownPct:   10.0,
	}
}

// Gate holds limits and the latest authoritative risk metrics. Metrics are
// overwritten, never accumulated; callers pass current values after fills.
type Gate struct {
	mu     sync.RWMutex
	limits Limits

	dailyPnL        float64
	totalExposure   float64
	currentDrawdown float64
}

// New creates a gate with the given limits.
func New(limits Limits) *Gate {
	return &Gate{limits: limits}
}

// SetLimits replaces the configured limits.
func (g *Gate) SetLimits(limits Limits) {
	g.mu.Lock()
	g.limits = limits
	g.mu.Unlock()
	log.Printf("[riskgate] limits updated: %+v", limits)
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.limits
}

// CheckSignalRisk admits or rejects a signal. Checks run in a fixed order
// and short-circuit on the first failure, so the reported reason is
// deterministic. The reason string names the failing check.
func (g *Gate) CheckSignalRisk(sig protocol.TradeSignal) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if sig.Confidence < g.limits.MinConfidence {
		return false, fmt.Sprintf("confidence %.2f below minimum %.2f", sig.Confidence, g.limits.MinConfidence)
	}
	if math.Abs(sig.ZScore) > g.limits.MaxZScore {
		return false, fmt.Sprintf("z-score %.2f exceeds maximum %.2f", sig.ZScore, g.limits.MaxZScore)
	}
	if abs64(sig.SharesA) > g.limits.MaxPositionSize {
		return false, fmt.Sprintf("shares A %d exceeds maximum %d", sig.SharesA, g.limits.MaxPositionSize)
	}
	if abs64(sig.SharesB) > g.limits.MaxPositionSize {
		return false, fmt.Sprintf("shares B %d exceeds maximum %d", sig.SharesB, g.limits.MaxPositionSize)
	}
	if g.dailyPnL < -g.limits.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss %.2f exceeds maximum %.2f", -g.dailyPnL, g.limits.MaxDailyLoss)
	}
	signalExposure := float64(abs64(sig.SharesA) + abs64(sig.SharesB))
	if g.totalExposure+signalExposure > g.limits.MaxTotalExposure {
		return false, fmt.Sprintf("total exposure %.2f would exceed maximum %.2f",
			g.totalExposure+signalExposure, g.limits.MaxTotalExposure)
	}
	if math.Abs(sig.Correlation) > maxCorrelation {
		return false, fmt.Sprintf("correlation %.2f is too extreme", sig.Correlation)
	}
	if sig.Volatility > maxVolatility {
		return false, fmt.Sprintf("volatility %.2f is too high", sig.Volatility)
	}
	return true, ""
}

// CheckOrderRisk is the lighter single-order variant.
func (g *Gate) CheckOrderRisk(order model.OrderRequest) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if order.Quantity > g.limits.MaxPositionSize {
		return false, fmt.Sprintf("quantity %d exceeds maximum %d", order.Quantity, g.limits.MaxPositionSize)
	}
	if g.totalExposure+float64(order.Quantity) > g.limits.MaxTotalExposure {
		return false, "would exceed total exposure limit"
	}
	return true, ""
}

// IsTradingAllowed is the standing circuit breaker: it evaluates whether the
// current metrics already breach a limit, independent of any signal.
func (g *Gate) IsTradingAllowed() (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.dailyPnL < -g.limits.MaxDailyLoss {
		return false, "daily loss limit exceeded"
	}
	if g.totalExposure > g.limits.MaxTotalExposure {
		return false, "total exposure limit exceeded"
	}
	if g.currentDrawdown > g.limits.MaxDrawdownPct {
		return false, "maximum drawdown limit exceeded"
	}
	return true, ""
}

// UpdateDailyPnL overwrites the daily PnL metric with the current value.
func (g *Gate) UpdateDailyPnL(pnl float64) {
	g.mu.Lock()
	g.dailyPnL = pnl
	limit := g.limits.MaxDailyLoss
	g.mu.Unlock()

	if pnl < -limit {
		log.Printf("[riskgate] WARNING: daily loss limit exceeded (%.2f)", pnl)
	}
}

// UpdateTotalExposure overwrites the exposure metric with the current value.
func (g *Gate) UpdateTotalExposure(exposure float64) {
	g.mu.Lock()
	g.totalExposure = exposure
	limit := g.limits.MaxTotalExposure
	g.mu.Unlock()

	if exposure > limit*0.9 {
		log.Printf("[riskgate] WARNING: approaching total exposure limit (%.2f of %.2f)", exposure, limit)
	}
}

// UpdateDrawdown overwrites the drawdown metric (percent) with the current value.
func (g *Gate) UpdateDrawdown(drawdownPct float64) {
	g.mu.Lock()
	g.currentDrawdown = drawdownPct
	limit := g.limits.MaxDrawdownPct
	g.mu.Unlock()

	if drawdownPct > limit {
		log.Printf("[riskgate] WARNING: maximum drawdown limit exceeded (%.2f%%)", drawdownPct)
	}
}

// ResetDaily zeroes the daily PnL metric.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	g.dailyPnL = 0
	g.mu.Unlock()
	log.Println("[riskgate] daily PnL reset")
}

// Status returns the current limits and metrics for the health endpoint.
func (g *Gate) Status() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allowed := g.dailyPnL >= -g.limits.MaxDailyLoss &&
		g.totalExposure <= g.limits.MaxTotalExposure &&
		g.currentDrawdown <= g.limits.MaxDrawdownPct

	return map[string]interface{}{
		"daily_pnl":        g.dailyPnL,
		"total_exposure":   g.totalExposure,
		"current_drawdown": g.currentDrawdown,
		"trading_allowed":  allowed,
		"limits":           g.limits,
	}
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
