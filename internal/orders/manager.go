// Package orders turns admitted trade signals into broker orders and feeds
// fill callbacks back into the position book and the risk gate.
//
// Two execution contexts enter this package concurrently: the signal bus
// calls HandleSignal, and the broker collaborator calls OnOrderStatus and
// OnError. The pending-order set is guarded by the manager's lock; the lock
// is never held across a broker submission, so a slow broker cannot stall
// the accounting path.
package orders

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pairs-execd/internal/model"
	"pairs-execd/internal/positions"
	"pairs-execd/internal/protocol"
	"pairs-execd/internal/riskgate"
)

// Broker is the order-placement side of the broker collaborator. Status and
// error callbacks arrive on the manager's OnOrderStatus and OnError.
type Broker interface {
	PlaceOrder(order model.OrderRequest) error
}

// ErrUnknownSignalType rejects signal intents the manager cannot serve.
var ErrUnknownSignalType = errors.New("unknown signal type")

// The broker error code that carries an order cancellation.
const errCodeOrderCancelled = 202

// Manager owns the signal pipeline and the pending-order set.
type Manager struct {
	broker Broker
	book   *positions.Book
	gate   *riskgate.Gate

	mu          sync.Mutex
	pending     map[int64]model.OrderRequest
	nextOrderID int64
	running     bool

	// OnFill, if set, is invoked after each fill has been applied to the
	// book. Used for the journal, metrics, and alerting; called off the lock.
	OnFill func(model.Fill)

	// OnReject, if set, is invoked with the pipeline stage and reason each
	// time a signal or order is dropped.
	OnReject func(stage, reason string)
}

// NewManager creates a stopped manager. Order ids start at 1.
func NewManager(broker Broker, book *positions.Book, gate *riskgate.Gate) *Manager {
	return &Manager{
		broker:      broker,
		book:        book,
		gate:        gate,
		pending:     make(map[int64]model.OrderRequest),
		nextOrderID: 1,
	}
}

// Start enables signal processing. Idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	log.Println("[orders] manager started")
}

// Stop disables signal processing and forgets pending orders without
// cancelling them broker-side; in-flight fills resolve via late callbacks,
// which are tolerated as no-ops. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	if n := len(m.pending); n > 0 {
		log.Printf("[orders] clearing %d pending orders without cancellation", n)
	}
	m.pending = make(map[int64]model.OrderRequest)
	log.Println("[orders] manager stopped")
}

// IsRunning reports whether the manager accepts signals.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// HandleSignal runs one signal through the
// validate -> risk-check -> derive -> submit pipeline.
func (m *Manager) HandleSignal(sig protocol.TradeSignal) {
	if !m.IsRunning() {
		log.Printf("[orders] manager not running, dropping signal for %s", sig.PairName)
		return
	}

	log.Printf("[orders] processing %s signal for %s (z=%.2f conf=%.2f sharesA=%d sharesB=%d)",
		sig.SignalType, sig.PairName, sig.ZScore, sig.Confidence, sig.SharesA, sig.SharesB)

	if err := validateSignal(sig); err != nil {
		log.Printf("[orders] invalid signal for %s: %v", sig.PairName, err)
		m.reject("validate", err.Error())
		return
	}

	if ok, reason := m.gate.IsTradingAllowed(); !ok {
		log.Printf("[orders] trading halted, dropping signal for %s: %s", sig.PairName, reason)
		m.reject("halt", reason)
		return
	}

	if ok, reason := m.gate.CheckSignalRisk(sig); !ok {
		log.Printf("[orders] signal for %s rejected by risk gate: %s", sig.PairName, reason)
		m.reject("risk", reason)
		return
	}

	reqs, err := m.deriveOrders(sig)
	if err != nil {
		log.Printf("[orders] cannot derive orders for %s: %v", sig.PairName, err)
		m.reject("derive", err.Error())
		return
	}
	if len(reqs) == 0 {
		log.Printf("[orders] signal for %s derived no orders", sig.PairName)
		return
	}

	m.submit(reqs)
}

// validateSignal applies the structural checks that precede any risk logic.
func validateSignal(sig protocol.TradeSignal) error {
	if sig.PairName == "" || sig.SymbolA == "" || sig.SymbolB == "" {
		return errors.New("empty pair or symbol identifiers")
	}
	if sig.SharesA == 0 && sig.SharesB == 0 {
		return errors.New("both share deltas are zero")
	}
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return fmt.Errorf("confidence %.2f outside [0,1]", sig.Confidence)
	}
	return nil
}

// deriveOrders maps the signal's intent onto market orders.
func (m *Manager) deriveOrders(sig protocol.TradeSignal) ([]model.OrderRequest, error) {
	switch sig.SignalType {
	case protocol.SignalEnterLongSpread:
		// Long spread: long A, short B.
		var reqs []model.OrderRequest
		if sig.SharesA > 0 {
			reqs = append(reqs, m.newMarketOrder(sig.SymbolA, model.ActionBuy, sig.SharesA))
		}
		if sig.SharesB < 0 {
			reqs = append(reqs, m.newMarketOrder(sig.SymbolB, model.ActionSell, -sig.SharesB))
		}
		return reqs, nil

	case protocol.SignalEnterShortSpread:
		// Short spread: short A, long B.
		var reqs []model.OrderRequest
		if sig.SharesA < 0 {
			reqs = append(reqs, m.newMarketOrder(sig.SymbolA, model.ActionSell, -sig.SharesA))
		}
		if sig.SharesB > 0 {
			reqs = append(reqs, m.newMarketOrder(sig.SymbolB, model.ActionBuy, sig.SharesB))
		}
		return reqs, nil

	case protocol.SignalExitPosition:
		// Flatten whatever is currently held, regardless of the signal's
		// own share fields.
		var reqs []model.OrderRequest
		for _, symbol := range []string{sig.SymbolA, sig.SymbolB} {
			pos, ok := m.book.Position(symbol)
			if !ok || pos.Qty == 0 {
				continue
			}
			action := model.ActionSell
			qty := pos.Qty
			if pos.Qty < 0 {
				action = model.ActionBuy
				qty = -pos.Qty
			}
			reqs = append(reqs, m.newMarketOrder(symbol, action, qty))
		}
		return reqs, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSignalType, sig.SignalType)
}

func (m *Manager) newMarketOrder(symbol string, action model.Action, qty int64) model.OrderRequest {
	m.mu.Lock()
	id := m.nextOrderID
	m.nextOrderID++
	m.mu.Unlock()

	return model.OrderRequest{
		OrderID:   id,
		Symbol:    symbol,
		Action:    action,
		Quantity:  qty,
		Kind:      model.OrderMarket,
		CreatedAt: time.Now(),
	}
}

// submit places each order with the broker. A failure is logged and does not
// abort the rest of the batch. The manager lock is not held across PlaceOrder.
func (m *Manager) submit(reqs []model.OrderRequest) {
	for _, req := range reqs {
		if ok, reason := m.gate.CheckOrderRisk(req); !ok {
			log.Printf("[orders] order %d (%s %d %s) rejected: %s",
				req.OrderID, req.Action, req.Quantity, req.Symbol, reason)
			m.reject("order", reason)
			continue
		}

		if err := m.broker.PlaceOrder(req); err != nil {
			log.Printf("[orders] placing order %d (%s %d %s) failed: %v",
				req.OrderID, req.Action, req.Quantity, req.Symbol, err)
			continue
		}

		m.mu.Lock()
		m.pending[req.OrderID] = req
		m.mu.Unlock()

		log.Printf("[orders] placed %s order for %d shares of %s (order id %d)",
			req.Action, req.Quantity, req.Symbol, req.OrderID)
	}
}

// OnOrderStatus is the broker status callback. Fills drive the position book,
// then a risk-gate metrics refresh, then a history snapshot. Terminal states
// leave the pending set. Callbacks for untracked order ids are no-ops.
func (m *Manager) OnOrderStatus(orderID int64, status model.OrderStatus, filledQty, remainingQty int64, avgFillPrice float64) {
	log.Printf("[orders] status for order %d: %s filled=%d remaining=%d avg=%.2f",
		orderID, status, filledQty, remainingQty, avgFillPrice)

	m.mu.Lock()
	req, tracked := m.pending[orderID]
	if tracked && status.Terminal() {
		delete(m.pending, orderID)
	}
	m.mu.Unlock()

	if !tracked {
		log.Printf("[orders] untracked order %d, ignoring callback", orderID)
		return
	}

	if status == model.StatusFilled || status == model.StatusPartiallyFilled {
		realized := m.book.ApplyFill(req.Symbol, req.Action, filledQty, avgFillPrice)

		m.gate.UpdateDailyPnL(m.book.DailyPnL())
		m.gate.UpdateTotalExposure(m.book.Exposure())
		m.gate.UpdateDrawdown(m.book.CurrentDrawdown())
		m.book.AddHistory()

		if m.OnFill != nil {
			m.OnFill(model.Fill{
				OrderID:     orderID,
				Symbol:      req.Symbol,
				Action:      req.Action,
				Quantity:    filledQty,
				Price:       avgFillPrice,
				RealizedPnL: realized,
				FilledAt:    time.Now(),
			})
		}
	}
}

// OnError is the broker error callback. A cancellation code removes the
// order from the pending set; everything else is logged only.
func (m *Manager) OnError(requestID int64, errorCode int, errorMessage string) {
	log.Printf("[orders] broker error for id %d: code=%d %s", requestID, errorCode, errorMessage)

	if errorCode == errCodeOrderCancelled {
		m.mu.Lock()
		if _, ok := m.pending[requestID]; ok {
			delete(m.pending, requestID)
			log.Printf("[orders] order %d cancelled, removed from pending", requestID)
		}
		m.mu.Unlock()
	}
}

// PendingOrders returns a snapshot of the pending set.
func (m *Manager) PendingOrders() []model.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OrderRequest, 0, len(m.pending))
	for _, req := range m.pending {
		out = append(out, req)
	}
	return out
}

// CurrentPositions returns symbol -> signed quantity from the book.
func (m *Manager) CurrentPositions() map[string]int64 {
	return m.book.AllPositions()
}

func (m *Manager) reject(stage, reason string) {
	if m.OnReject != nil {
		m.OnReject(stage, reason)
	}
}
