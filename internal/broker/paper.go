// Package broker provides order routing backends: a paper simulator for
// dry runs and a websocket bridge to a live broker gateway.
package broker

import (
	"log"
	"sync"
	"time"

	"pairs-execd/internal/model"
)

// StatusFunc receives asynchronous order status callbacks.
type StatusFunc func(orderID int64, status model.OrderStatus, filledQty, remainingQty int64, avgFillPrice float64)

// ErrorFunc receives asynchronous order error callbacks.
type ErrorFunc func(requestID int64, errorCode int, errorMessage string)

// Paper simulates order execution without real broker calls. Every accepted
// order fills in full at the last known price for its symbol, adjusted by a
// configurable slippage. Fills are delivered on a separate goroutine so the
// callback ordering matches a real broker: PlaceOrder returns before the
// status callback fires.
type Paper struct {
	mu     sync.RWMutex
	prices map[string]float64
	fills  []model.Fill

	slippageBps int64

	orderCh chan model.OrderRequest
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	OnStatus StatusFunc
	OnError  ErrorFunc
}

// NewPaper creates a paper broker. slippageBps controls simulated slippage
// in basis points (5 = 0.05%).
func NewPaper(queueSize int, slippageBps int64) *Paper {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Paper{
		prices:      make(map[string]float64),
		fills:       make([]model.Fill, 0, 1000),
		slippageBps: slippageBps,
		orderCh:     make(chan model.OrderRequest, queueSize),
	}
}

// Start launches the fill loop. Idempotent.
func (p *Paper) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.fillLoop(p.stopCh)
	log.Println("[paper] started")
}

// Stop halts the fill loop and waits for it to drain the in-flight order.
func (p *Paper) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	log.Println("[paper] stopped")
}

// SetPrice records the last traded price for a symbol. Orders for symbols
// with no recorded price are rejected.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// UpdatePrices records prices for a batch of symbols.
func (p *Paper) UpdatePrices(prices map[string]float64) {
	p.mu.Lock()
	for sym, px := range prices {
		p.prices[sym] = px
	}
	p.mu.Unlock()
}

// Fills returns a snapshot of all simulated fills.
func (p *Paper) Fills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// PlaceOrder enqueues the order for simulated execution.
func (p *Paper) PlaceOrder(order model.OrderRequest) error {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return ErrBrokerStopped
	}

	select {
	case p.orderCh <- order:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Paper) fillLoop(stopCh <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case order := <-p.orderCh:
			p.execute(order)
		}
	}
}

func (p *Paper) execute(order model.OrderRequest) {
	p.mu.RLock()
	price, ok := p.prices[order.Symbol]
	p.mu.RUnlock()

	if !ok || price <= 0 {
		log.Printf("[paper] no price for %s, rejecting order %d", order.Symbol, order.OrderID)
		if p.OnError != nil {
			p.OnError(order.OrderID, 404, "no market price for "+order.Symbol)
		}
		return
	}

	// Limit orders fill at the limit price when it is marketable.
	fillPrice := price
	if order.Kind == model.OrderLimit && order.LimitPrice > 0 {
		marketable := (order.Action == model.ActionBuy && order.LimitPrice >= price) ||
			(order.Action == model.ActionSell && order.LimitPrice <= price)
		if !marketable {
			log.Printf("[paper] limit order %d not marketable (%s %.2f vs %.2f), rejecting",
				order.OrderID, order.Action, order.LimitPrice, price)
			if p.OnError != nil {
				p.OnError(order.OrderID, 400, "limit price not marketable")
			}
			return
		}
		fillPrice = order.LimitPrice
	}

	if p.slippageBps > 0 {
		slip := fillPrice * float64(p.slippageBps) / 10000
		if order.Action == model.ActionBuy {
			fillPrice += slip // buy higher
		} else {
			fillPrice -= slip // sell lower
		}
	}

	fill := model.Fill{
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Action:   order.Action,
		Quantity: order.Quantity,
		Price:    fillPrice,
		FilledAt: time.Now(),
	}

	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s qty=%d price=%.2f order=%d",
		order.Action, order.Symbol, order.Quantity, fillPrice, order.OrderID)

	if p.OnStatus != nil {
		p.OnStatus(order.OrderID, model.StatusFilled, order.Quantity, 0, fillPrice)
	}
}
