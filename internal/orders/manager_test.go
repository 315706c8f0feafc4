package orders

import (
	"errors"
	"sync"
	"testing"

	"pairs-execd/internal/model"
	"pairs-execd/internal/positions"
	"pairs-execd/internal/protocol"
	"pairs-execd/internal/riskgate"
)

// fakeBroker records placed orders and can be told to fail.
type fakeBroker struct {
	mu     sync.Mutex
	placed []model.OrderRequest
	err    error
}

func (f *fakeBroker) PlaceOrder(order model.OrderRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.placed = append(f.placed, order)
	return nil
}

func (f *fakeBroker) orders() []model.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]model.OrderRequest, len(f.placed))
	copy(cp, f.placed)
	return cp
}

func newTestManager() (*Manager, *fakeBroker, *positions.Book, *riskgate.Gate) {
	brk := &fakeBroker{}
	book := positions.NewBook(0)
	gate := riskgate.New(riskgate.DefaultLimits())
	m := NewManager(brk, book, gate)
	m.Start()
	return m, brk, book, gate
}

func enterLongSignal() protocol.TradeSignal {
	return protocol.TradeSignal{
		MessageID:   "sig-1",
		PairName:    "AAPL_MSFT",
		SymbolA:     "AAPL",
		SymbolB:     "MSFT",
		SignalType:  protocol.SignalEnterLongSpread,
		ZScore:      -2.1,
		HedgeRatio:  0.85,
		Confidence:  0.9,
		SharesA:     100,
		SharesB:     -85,
		Volatility:  0.2,
		Correlation: 0.8,
	}
}

func TestHandleSignal_EnterLongSpread(t *testing.T) {
	m, brk, _, _ := newTestManager()

	m.HandleSignal(enterLongSignal())

	placed := brk.orders()
	if len(placed) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(placed))
	}
	if placed[0].Symbol != "AAPL" || placed[0].Action != model.ActionBuy || placed[0].Quantity != 100 {
		t.Errorf("leg A: got %+v", placed[0])
	}
	if placed[1].Symbol != "MSFT" || placed[1].Action != model.ActionSell || placed[1].Quantity != 85 {
		t.Errorf("leg B: got %+v", placed[1])
	}
	if placed[0].Kind != model.OrderMarket {
		t.Errorf("expected market order, got %s", placed[0].Kind)
	}
	if len(m.PendingOrders()) != 2 {
		t.Errorf("expected 2 pending, got %d", len(m.PendingOrders()))
	}
}

func TestHandleSignal_EnterShortSpread(t *testing.T) {
	m, brk, _, _ := newTestManager()

	sig := enterLongSignal()
	sig.SignalType = protocol.SignalEnterShortSpread
	sig.ZScore = 2.1
	sig.SharesA = -100
	sig.SharesB = 85
	m.HandleSignal(sig)

	placed := brk.orders()
	if len(placed) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(placed))
	}
	if placed[0].Symbol != "AAPL" || placed[0].Action != model.ActionSell || placed[0].Quantity != 100 {
		t.Errorf("leg A: got %+v", placed[0])
	}
	if placed[1].Symbol != "MSFT" || placed[1].Action != model.ActionBuy || placed[1].Quantity != 85 {
		t.Errorf("leg B: got %+v", placed[1])
	}
}

func TestHandleSignal_ExitPosition(t *testing.T) {
	m, brk, book, _ := newTestManager()

	// Open a long A / short B pair directly in the book.
	book.ApplyFill("AAPL", model.ActionBuy, 100, 150)
	book.ApplyFill("MSFT", model.ActionSell, 85, 300)

	sig := enterLongSignal()
	sig.SignalType = protocol.SignalExitPosition
	sig.SharesA = 1 // exit flattens held quantities, not the signal's fields
	sig.SharesB = 1
	m.HandleSignal(sig)

	placed := brk.orders()
	if len(placed) != 2 {
		t.Fatalf("expected 2 exit orders, got %d", len(placed))
	}
	if placed[0].Symbol != "AAPL" || placed[0].Action != model.ActionSell || placed[0].Quantity != 100 {
		t.Errorf("exit A: got %+v", placed[0])
	}
	if placed[1].Symbol != "MSFT" || placed[1].Action != model.ActionBuy || placed[1].Quantity != 85 {
		t.Errorf("exit B: got %+v", placed[1])
	}
}

func TestHandleSignal_ExitFlatIsNoOp(t *testing.T) {
	m, brk, _, _ := newTestManager()

	sig := enterLongSignal()
	sig.SignalType = protocol.SignalExitPosition
	m.HandleSignal(sig)

	if len(brk.orders()) != 0 {
		t.Errorf("expected no orders for flat exit, got %d", len(brk.orders()))
	}
}

func TestHandleSignal_UnknownType(t *testing.T) {
	m, brk, _, _ := newTestManager()

	var stage string
	m.OnReject = func(s, _ string) { stage = s }

	sig := enterLongSignal()
	sig.SignalType = "REBALANCE"
	m.HandleSignal(sig)

	if len(brk.orders()) != 0 {
		t.Error("expected no orders for unknown signal type")
	}
	if stage != "derive" {
		t.Errorf("expected derive-stage rejection, got %q", stage)
	}
}

func TestHandleSignal_Validation(t *testing.T) {
	m, brk, _, _ := newTestManager()

	var stage string
	m.OnReject = func(s, _ string) { stage = s }

	sig := enterLongSignal()
	sig.SymbolA = ""
	m.HandleSignal(sig)
	if stage != "validate" {
		t.Errorf("empty symbol: expected validate rejection, got %q", stage)
	}

	stage = ""
	sig = enterLongSignal()
	sig.SharesA = 0
	sig.SharesB = 0
	m.HandleSignal(sig)
	if stage != "validate" {
		t.Errorf("zero deltas: expected validate rejection, got %q", stage)
	}

	stage = ""
	sig = enterLongSignal()
	sig.Confidence = 1.5
	m.HandleSignal(sig)
	if stage != "validate" {
		t.Errorf("bad confidence: expected validate rejection, got %q", stage)
	}

	if len(brk.orders()) != 0 {
		t.Error("expected no orders for invalid signals")
	}
}

func TestHandleSignal_RiskRejection(t *testing.T) {
	m, brk, _, _ := newTestManager()

	var stage string
	m.OnReject = func(s, _ string) { stage = s }

	sig := enterLongSignal()
	sig.Confidence = 0.5
	m.HandleSignal(sig)

	if len(brk.orders()) != 0 {
		t.Error("expected no orders for rejected signal")
	}
	if stage != "risk" {
		t.Errorf("expected risk-stage rejection, got %q", stage)
	}
}

func TestHandleSignal_HaltDropsSignal(t *testing.T) {
	m, brk, _, gate := newTestManager()

	var stage string
	m.OnReject = func(s, _ string) { stage = s }

	gate.UpdateDailyPnL(-9000)
	m.HandleSignal(enterLongSignal())

	if len(brk.orders()) != 0 {
		t.Error("expected no orders while halted")
	}
	if stage != "halt" {
		t.Errorf("expected halt-stage rejection, got %q", stage)
	}
}

func TestHandleSignal_BrokerFailureSkipsPending(t *testing.T) {
	m, brk, _, _ := newTestManager()
	brk.err = errors.New("connection refused")

	m.HandleSignal(enterLongSignal())

	if len(m.PendingOrders()) != 0 {
		t.Errorf("failed placements must not enter pending, got %d", len(m.PendingOrders()))
	}
}

func TestHandleSignal_NotRunning(t *testing.T) {
	m, brk, _, _ := newTestManager()
	m.Stop()

	m.HandleSignal(enterLongSignal())

	if len(brk.orders()) != 0 {
		t.Error("stopped manager must not place orders")
	}
}

func TestOnOrderStatus_FillUpdatesBook(t *testing.T) {
	m, brk, book, _ := newTestManager()

	var fill model.Fill
	m.OnFill = func(f model.Fill) { fill = f }

	m.HandleSignal(enterLongSignal())
	placed := brk.orders()
	if len(placed) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(placed))
	}

	m.OnOrderStatus(placed[0].OrderID, model.StatusFilled, 100, 0, 150)

	pos, ok := book.Position("AAPL")
	if !ok || pos.Qty != 100 {
		t.Errorf("book position: got %+v ok=%v", pos, ok)
	}
	if fill.OrderID != placed[0].OrderID || fill.Quantity != 100 || fill.Price != 150 {
		t.Errorf("fill callback: got %+v", fill)
	}
	if len(m.PendingOrders()) != 1 {
		t.Errorf("filled order should leave pending, got %d pending", len(m.PendingOrders()))
	}
}

func TestOnOrderStatus_PartialFillStaysPending(t *testing.T) {
	m, brk, book, _ := newTestManager()

	m.HandleSignal(enterLongSignal())
	placed := brk.orders()

	m.OnOrderStatus(placed[0].OrderID, model.StatusPartiallyFilled, 40, 60, 150)

	pos, _ := book.Position("AAPL")
	if pos.Qty != 40 {
		t.Errorf("expected partial quantity 40 applied, got %d", pos.Qty)
	}
	if len(m.PendingOrders()) != 2 {
		t.Errorf("partially filled order must stay pending, got %d", len(m.PendingOrders()))
	}
}

func TestOnOrderStatus_UntrackedIsNoOp(t *testing.T) {
	m, _, book, _ := newTestManager()

	m.OnOrderStatus(999, model.StatusFilled, 100, 0, 150)

	if len(book.AllPositions()) != 0 {
		t.Error("untracked callback must not touch the book")
	}
}

func TestOnOrderStatus_CancelledRemovesPending(t *testing.T) {
	m, brk, book, _ := newTestManager()

	m.HandleSignal(enterLongSignal())
	placed := brk.orders()

	m.OnOrderStatus(placed[0].OrderID, model.StatusCancelled, 0, 100, 0)

	if len(m.PendingOrders()) != 1 {
		t.Errorf("cancelled order should leave pending, got %d", len(m.PendingOrders()))
	}
	if len(book.AllPositions()) != 0 {
		t.Error("cancellation must not touch the book")
	}
}

func TestOnError_CancellationCodeRemovesPending(t *testing.T) {
	m, brk, _, _ := newTestManager()

	m.HandleSignal(enterLongSignal())
	placed := brk.orders()

	m.OnError(placed[0].OrderID, 202, "order cancelled")
	if len(m.PendingOrders()) != 1 {
		t.Errorf("expected 1 pending after cancellation, got %d", len(m.PendingOrders()))
	}

	// Other codes are log-only.
	m.OnError(placed[1].OrderID, 500, "internal error")
	if len(m.PendingOrders()) != 1 {
		t.Errorf("non-cancellation error must not remove pending, got %d", len(m.PendingOrders()))
	}
}

func TestStop_ClearsPendingWithoutCancel(t *testing.T) {
	m, brk, book, _ := newTestManager()

	m.HandleSignal(enterLongSignal())
	if len(m.PendingOrders()) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(m.PendingOrders()))
	}

	m.Stop()

	if len(m.PendingOrders()) != 0 {
		t.Errorf("stop must clear pending, got %d", len(m.PendingOrders()))
	}
	if m.IsRunning() {
		t.Error("expected stopped manager")
	}

	// A late fill callback for a forgotten order is a no-op.
	placed := brk.orders()
	m.OnOrderStatus(placed[0].OrderID, model.StatusFilled, 100, 0, 150)
	if len(book.AllPositions()) != 0 {
		t.Error("late callback after stop must not touch the book")
	}
}

func TestFillUpdatesRiskMetrics(t *testing.T) {
	m, brk, book, gate := newTestManager()

	book.UpdateMarketPrices(map[string]float64{"AAPL": 150, "MSFT": 300})

	m.HandleSignal(enterLongSignal())
	placed := brk.orders()

	m.OnOrderStatus(placed[0].OrderID, model.StatusFilled, 100, 0, 150)

	st := gate.Status()
	if st["total_exposure"].(float64) <= 0 {
		t.Errorf("expected exposure pushed into gate, got %v", st["total_exposure"])
	}
	if len(book.History()) != 1 {
		t.Errorf("expected 1 history snapshot after fill, got %d", len(book.History()))
	}
}
