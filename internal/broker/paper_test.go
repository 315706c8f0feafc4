package broker

import (
	"math"
	"testing"
	"time"

	"pairs-execd/internal/model"
)

type statusEvent struct {
	orderID int64
	status  model.OrderStatus
	filled  int64
	price   float64
}

type errorEvent struct {
	requestID int64
	code      int
	message   string
}

func newTestPaper(t *testing.T, slippageBps int64) (*Paper, chan statusEvent, chan errorEvent) {
	t.Helper()
	p := NewPaper(16, slippageBps)
	statusCh := make(chan statusEvent, 16)
	errorCh := make(chan errorEvent, 16)
	p.OnStatus = func(orderID int64, status model.OrderStatus, filledQty, remainingQty int64, avgFillPrice float64) {
		statusCh <- statusEvent{orderID, status, filledQty, avgFillPrice}
	}
	p.OnError = func(requestID int64, errorCode int, errorMessage string) {
		errorCh <- errorEvent{requestID, errorCode, errorMessage}
	}
	p.Start()
	t.Cleanup(p.Stop)
	return p, statusCh, errorCh
}

func waitStatus(t *testing.T, ch chan statusEvent) statusEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status callback")
		return statusEvent{}
	}
}

func waitError(t *testing.T, ch chan errorEvent) errorEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
		return errorEvent{}
	}
}

func TestPaper_MarketOrderFills(t *testing.T) {
	p, statusCh, _ := newTestPaper(t, 0)
	p.SetPrice("AAPL", 150.0)

	order := model.OrderRequest{
		OrderID:  1,
		Symbol:   "AAPL",
		Action:   model.ActionBuy,
		Quantity: 100,
		Kind:     model.OrderMarket,
	}
	if err := p.PlaceOrder(order); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	ev := waitStatus(t, statusCh)
	if ev.orderID != 1 || ev.status != model.StatusFilled || ev.filled != 100 {
		t.Errorf("unexpected status event: %+v", ev)
	}
	if math.Abs(ev.price-150.0) > 1e-9 {
		t.Errorf("expected fill at 150.0, got %.4f", ev.price)
	}

	fills := p.Fills()
	if len(fills) != 1 || fills[0].Symbol != "AAPL" {
		t.Errorf("unexpected fills: %+v", fills)
	}
}

func TestPaper_SlippageDirection(t *testing.T) {
	p, statusCh, _ := newTestPaper(t, 10) // 0.1%
	p.SetPrice("MSFT", 300.0)

	if err := p.PlaceOrder(model.OrderRequest{OrderID: 1, Symbol: "MSFT", Action: model.ActionBuy, Quantity: 10, Kind: model.OrderMarket}); err != nil {
		t.Fatalf("PlaceOrder buy: %v", err)
	}
	buy := waitStatus(t, statusCh)
	if math.Abs(buy.price-300.30) > 1e-9 {
		t.Errorf("buy should slip up: expected 300.30, got %.4f", buy.price)
	}

	if err := p.PlaceOrder(model.OrderRequest{OrderID: 2, Symbol: "MSFT", Action: model.ActionSell, Quantity: 10, Kind: model.OrderMarket}); err != nil {
		t.Fatalf("PlaceOrder sell: %v", err)
	}
	sell := waitStatus(t, statusCh)
	if math.Abs(sell.price-299.70) > 1e-9 {
		t.Errorf("sell should slip down: expected 299.70, got %.4f", sell.price)
	}
}

func TestPaper_NoPriceRejects(t *testing.T) {
	p, _, errorCh := newTestPaper(t, 0)

	if err := p.PlaceOrder(model.OrderRequest{OrderID: 7, Symbol: "TSLA", Action: model.ActionBuy, Quantity: 5, Kind: model.OrderMarket}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	ev := waitError(t, errorCh)
	if ev.requestID != 7 || ev.code != 404 {
		t.Errorf("unexpected error event: %+v", ev)
	}
	if len(p.Fills()) != 0 {
		t.Error("rejected order must not produce a fill")
	}
}

func TestPaper_LimitOrders(t *testing.T) {
	p, statusCh, errorCh := newTestPaper(t, 0)
	p.SetPrice("AAPL", 150.0)

	// Marketable buy limit fills at the limit price.
	if err := p.PlaceOrder(model.OrderRequest{OrderID: 1, Symbol: "AAPL", Action: model.ActionBuy, Quantity: 10, Kind: model.OrderLimit, LimitPrice: 151.0}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	ev := waitStatus(t, statusCh)
	if math.Abs(ev.price-151.0) > 1e-9 {
		t.Errorf("expected fill at limit 151.0, got %.4f", ev.price)
	}

	// Non-marketable buy limit is rejected.
	if err := p.PlaceOrder(model.OrderRequest{OrderID: 2, Symbol: "AAPL", Action: model.ActionBuy, Quantity: 10, Kind: model.OrderLimit, LimitPrice: 149.0}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	errEv := waitError(t, errorCh)
	if errEv.requestID != 2 || errEv.code != 400 {
		t.Errorf("unexpected error event: %+v", errEv)
	}
}

func TestPaper_PlaceBeforeStart(t *testing.T) {
	p := NewPaper(4, 0)
	err := p.PlaceOrder(model.OrderRequest{OrderID: 1, Symbol: "AAPL", Action: model.ActionBuy, Quantity: 1, Kind: model.OrderMarket})
	if err != ErrBrokerStopped {
		t.Errorf("expected ErrBrokerStopped, got %v", err)
	}
}

func TestPaper_StartStopIdempotent(t *testing.T) {
	p := NewPaper(4, 0)
	p.Start()
	p.Start()
	p.Stop()
	p.Stop()

	if err := p.PlaceOrder(model.OrderRequest{OrderID: 1, Symbol: "AAPL", Action: model.ActionBuy, Quantity: 1, Kind: model.OrderMarket}); err != ErrBrokerStopped {
		t.Errorf("expected ErrBrokerStopped after Stop, got %v", err)
	}
}

func TestPaper_UpdatePricesBatch(t *testing.T) {
	p, statusCh, _ := newTestPaper(t, 0)
	p.UpdatePrices(map[string]float64{"AAPL": 100, "MSFT": 200})

	if err := p.PlaceOrder(model.OrderRequest{OrderID: 1, Symbol: "MSFT", Action: model.ActionSell, Quantity: 3, Kind: model.OrderMarket}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	ev := waitStatus(t, statusCh)
	if math.Abs(ev.price-200.0) > 1e-9 {
		t.Errorf("expected fill at 200.0, got %.4f", ev.price)
	}
}
