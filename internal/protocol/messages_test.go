package protocol

import "testing"

const validSignalJSON = `{
	"message_id": "sig-1",
	"timestamp": "2024-01-15T10:30:00Z",
	"message_type": "TRADE_SIGNAL",
	"pair_name": "AAPL_MSFT",
	"symbol_a": "AAPL",
	"symbol_b": "MSFT",
	"signal_type": "ENTER_LONG_SPREAD",
	"z_score": -2.15,
	"hedge_ratio": 0.85,
	"confidence": 0.92,
	"position_size": 100,
	"shares_a": 100,
	"shares_b": -85,
	"volatility": 0.18,
	"correlation": 0.87
}`

func TestClassifyMessage(t *testing.T) {
	cases := []struct {
		in   string
		want MessageType
	}{
		{`{"message_type": "TRADE_SIGNAL"}`, MsgTradeSignal},
		{`{"message_type": "POSITION_UPDATE"}`, MsgPositionUpdate},
		{`{"message_type": "PERFORMANCE_UPDATE"}`, MsgPerformanceUpdate},
		{`{"message_type": "SYSTEM_STATUS"}`, MsgSystemStatus},
		{`{"message_type": "ERROR_MESSAGE"}`, MsgErrorMessage},
		{`{"message_type": "HEARTBEAT"}`, MsgHeartbeat},
		{`{"message_type": "SOMETHING_ELSE"}`, MsgUnknown},
		{`{"message_type": 42}`, MsgUnknown},
		{`{}`, MsgUnknown},
	}
	for _, tc := range cases {
		v, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got := ClassifyMessage(v); got != tc.want {
			t.Errorf("ClassifyMessage(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestIsValidMessage(t *testing.T) {
	v, _ := Parse(validSignalJSON)
	if !IsValidMessage(v) {
		t.Error("expected full signal to be valid")
	}

	v, _ = Parse(`{"message_id": "x", "message_type": "HEARTBEAT"}`)
	if IsValidMessage(v) {
		t.Error("expected message without timestamp to be invalid")
	}

	v, _ = Parse(`[1, 2]`)
	if IsValidMessage(v) {
		t.Error("expected non-object to be invalid")
	}
}

func TestAsTradeSignal(t *testing.T) {
	v, err := Parse(validSignalJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	sig, err := AsTradeSignal(v)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if sig.PairName != "AAPL_MSFT" {
		t.Errorf("pair: got %q", sig.PairName)
	}
	if sig.SymbolA != "AAPL" || sig.SymbolB != "MSFT" {
		t.Errorf("symbols: got %q/%q", sig.SymbolA, sig.SymbolB)
	}
	if sig.SignalType != SignalEnterLongSpread {
		t.Errorf("signal type: got %q", sig.SignalType)
	}
	if sig.ZScore != -2.15 {
		t.Errorf("z-score: got %g", sig.ZScore)
	}
	if sig.SharesA != 100 || sig.SharesB != -85 {
		t.Errorf("shares: got %d/%d", sig.SharesA, sig.SharesB)
	}
	if sig.Confidence != 0.92 {
		t.Errorf("confidence: got %g", sig.Confidence)
	}
}

func TestAsTradeSignal_MissingField(t *testing.T) {
	v, _ := Parse(`{
		"message_id": "sig-2",
		"timestamp": "2024-01-15T10:30:00Z",
		"message_type": "TRADE_SIGNAL",
		"pair_name": "AAPL_MSFT"
	}`)
	if _, err := AsTradeSignal(v); err == nil {
		t.Error("expected error for signal missing fields")
	}
}

func TestAsTradeSignal_WrongType(t *testing.T) {
	v, _ := Parse(`{
		"message_id": "sig-3",
		"timestamp": "2024-01-15T10:30:00Z",
		"message_type": "TRADE_SIGNAL",
		"pair_name": "AAPL_MSFT",
		"symbol_a": "AAPL",
		"symbol_b": "MSFT",
		"signal_type": "ENTER_LONG_SPREAD",
		"z_score": "not a number",
		"hedge_ratio": 0.85,
		"confidence": 0.92,
		"position_size": 100,
		"shares_a": 100,
		"shares_b": -85,
		"volatility": 0.18,
		"correlation": 0.87
	}`)
	if _, err := AsTradeSignal(v); err == nil {
		t.Error("expected error for non-numeric z_score")
	}
}

func TestAsSystemStatus(t *testing.T) {
	v, err := Parse(`{
		"message_id": "st-1",
		"timestamp": "2024-01-15T10:30:00Z",
		"message_type": "SYSTEM_STATUS",
		"component": "analytics",
		"status": "RUNNING",
		"uptime_seconds": 3600,
		"memory_usage_mb": 128.5,
		"cpu_usage_percent": 12.0,
		"message": "all good"
	}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	s, err := AsSystemStatus(v)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if s.Component != "analytics" || s.Status != "RUNNING" {
		t.Errorf("got %+v", s)
	}
}
