package protocol

// MessageType classifies an inbound message by its message_type field.
type MessageType string

const (
	MsgTradeSignal       MessageType = "TRADE_SIGNAL"
	MsgPositionUpdate    MessageType = "POSITION_UPDATE"
	MsgPerformanceUpdate MessageType = "PERFORMANCE_UPDATE"
	MsgSystemStatus      MessageType = "SYSTEM_STATUS"
	MsgErrorMessage      MessageType = "ERROR_MESSAGE"
	MsgHeartbeat         MessageType = "HEARTBEAT"
	MsgUnknown           MessageType = "UNKNOWN"
)

// Signal intents understood by the order manager.
const (
	SignalEnterLongSpread  = "ENTER_LONG_SPREAD"
	SignalEnterShortSpread = "ENTER_SHORT_SPREAD"
	SignalExitPosition     = "EXIT_POSITION"
)

// TradeSignal is one entry/exit instruction for a pair. Share deltas are
// signed; the sign encodes direction.
type TradeSignal struct {
	MessageID    string
	Timestamp    string
	PairName     string
	SymbolA      string
	SymbolB      string
	SignalType   string
	ZScore       float64
	HedgeRatio   float64
	Confidence   float64
	PositionSize int64
	SharesA      int64
	SharesB      int64
	Volatility   float64
	Correlation  float64
}

// PositionUpdate mirrors the analytics process's own view of a pair.
type PositionUpdate struct {
	MessageID       string
	Timestamp       string
	PairName        string
	SymbolA         string
	SymbolB         string
	CurrentPosition string
	SharesA         int64
	SharesB         int64
	MarketValue     float64
	UnrealizedPnL   float64
	PriceA          float64
	PriceB          float64
}

// PerformanceUpdate carries portfolio statistics from the analytics process.
type PerformanceUpdate struct {
	MessageID      string
	Timestamp      string
	TotalPnL       float64
	DailyPnL       float64
	TotalReturn    float64
	SharpeRatio    float64
	MaxDrawdown    float64
	TotalPositions int64
	ActivePairs    int64
	CashBalance    float64
}

// SystemStatus reports component health from the analytics process.
type SystemStatus struct {
	MessageID      string
	Timestamp      string
	Status         string
	Component      string
	UptimeSeconds  float64
	MemoryUsageMB  float64
	CPUUsagePct    float64
	Message        string
}

// ErrorMessage reports an upstream fault. PairName is optional.
type ErrorMessage struct {
	MessageID    string
	Timestamp    string
	ErrorType    string
	ErrorCode    string
	ErrorMessage string
	Severity     string
	Component    string
	PairName     string
}

// ClassifyMessage reads message_type and maps it to a MessageType.
// It never fails: anything unreadable or unrecognized is MsgUnknown so the
// bus can log and skip instead of aborting.
func ClassifyMessage(v Value) MessageType {
	s, err := stringField(v, "message_type")
	if err != nil {
		return MsgUnknown
	}
	switch MessageType(s) {
	case MsgTradeSignal, MsgPositionUpdate, MsgPerformanceUpdate,
		MsgSystemStatus, MsgErrorMessage, MsgHeartbeat:
		return MessageType(s)
	}
	return MsgUnknown
}

// IsValidMessage is the cheap pre-check applied before any typed extraction:
// the envelope fields every message must carry.
func IsValidMessage(v Value) bool {
	return v.Contains("message_id") && v.Contains("timestamp") && v.Contains("message_type")
}

// AsTradeSignal extracts a TradeSignal. Any missing or mistyped field fails
// the whole extraction; the caller drops the message.
func AsTradeSignal(v Value) (TradeSignal, error) {
	var sig TradeSignal
	var err error

	if sig.MessageID, err = stringField(v, "message_id"); err != nil {
		return TradeSignal{}, err
	}
	if sig.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return TradeSignal{}, err
	}
	if sig.PairName, err = stringField(v, "pair_name"); err != nil {
		return TradeSignal{}, err
	}
	if sig.SymbolA, err = stringField(v, "symbol_a"); err != nil {
		return TradeSignal{}, err
	}
	if sig.SymbolB, err = stringField(v, "symbol_b"); err != nil {
		return TradeSignal{}, err
	}
	if sig.SignalType, err = stringField(v, "signal_type"); err != nil {
		return TradeSignal{}, err
	}
	if sig.ZScore, err = floatField(v, "z_score"); err != nil {
		return TradeSignal{}, err
	}
	if sig.HedgeRatio, err = floatField(v, "hedge_ratio"); err != nil {
		return TradeSignal{}, err
	}
	if sig.Confidence, err = floatField(v, "confidence"); err != nil {
		return TradeSignal{}, err
	}
	if sig.PositionSize, err = intField(v, "position_size"); err != nil {
		return TradeSignal{}, err
	}
	if sig.SharesA, err = intField(v, "shares_a"); err != nil {
		return TradeSignal{}, err
	}
	if sig.SharesB, err = intField(v, "shares_b"); err != nil {
		return TradeSignal{}, err
	}
	if sig.Volatility, err = floatField(v, "volatility"); err != nil {
		return TradeSignal{}, err
	}
	if sig.Correlation, err = floatField(v, "correlation"); err != nil {
		return TradeSignal{}, err
	}
	return sig, nil
}

// AsPositionUpdate extracts a PositionUpdate.
func AsPositionUpdate(v Value) (PositionUpdate, error) {
	var u PositionUpdate
	var err error

	if u.MessageID, err = stringField(v, "message_id"); err != nil {
		return PositionUpdate{}, err
	}
	if u.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return PositionUpdate{}, err
	}
	if u.PairName, err = stringField(v, "pair_name"); err != nil {
		return PositionUpdate{}, err
	}
	if u.SymbolA, err = stringField(v, "symbol_a"); err != nil {
		return PositionUpdate{}, err
	}
	if u.SymbolB, err = stringField(v, "symbol_b"); err != nil {
		return PositionUpdate{}, err
	}
	if u.CurrentPosition, err = stringField(v, "current_position"); err != nil {
		return PositionUpdate{}, err
	}
	if u.SharesA, err = intField(v, "shares_a"); err != nil {
		return PositionUpdate{}, err
	}
	if u.SharesB, err = intField(v, "shares_b"); err != nil {
		return PositionUpdate{}, err
	}
	if u.MarketValue, err = floatField(v, "market_value"); err != nil {
		return PositionUpdate{}, err
	}
	if u.UnrealizedPnL, err = floatField(v, "unrealized_pnl"); err != nil {
		return PositionUpdate{}, err
	}
	if u.PriceA, err = floatField(v, "price_a"); err != nil {
		return PositionUpdate{}, err
	}
	if u.PriceB, err = floatField(v, "price_b"); err != nil {
		return PositionUpdate{}, err
	}
	return u, nil
}

// AsPerformanceUpdate extracts a PerformanceUpdate.
func AsPerformanceUpdate(v Value) (PerformanceUpdate, error) {
	var u PerformanceUpdate
	var err error

	if u.MessageID, err = stringField(v, "message_id"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.TotalPnL, err = floatField(v, "total_pnl"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.DailyPnL, err = floatField(v, "daily_pnl"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.TotalReturn, err = floatField(v, "total_return"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.SharpeRatio, err = floatField(v, "sharpe_ratio"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.MaxDrawdown, err = floatField(v, "max_drawdown"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.TotalPositions, err = intField(v, "total_positions"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.ActivePairs, err = intField(v, "active_pairs"); err != nil {
		return PerformanceUpdate{}, err
	}
	if u.CashBalance, err = floatField(v, "cash_balance"); err != nil {
		return PerformanceUpdate{}, err
	}
	return u, nil
}

// AsSystemStatus extracts a SystemStatus.
func AsSystemStatus(v Value) (SystemStatus, error) {
	var s SystemStatus
	var err error

	if s.MessageID, err = stringField(v, "message_id"); err != nil {
		return SystemStatus{}, err
	}
	if s.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return SystemStatus{}, err
	}
	if s.Status, err = stringField(v, "status"); err != nil {
		return SystemStatus{}, err
	}
	if s.Component, err = stringField(v, "component"); err != nil {
		return SystemStatus{}, err
	}
	if s.UptimeSeconds, err = floatField(v, "uptime_seconds"); err != nil {
		return SystemStatus{}, err
	}
	if s.MemoryUsageMB, err = floatField(v, "memory_usage_mb"); err != nil {
		return SystemStatus{}, err
	}
	if s.CPUUsagePct, err = floatField(v, "cpu_usage_percent"); err != nil {
		return SystemStatus{}, err
	}
	if s.Message, err = stringField(v, "message"); err != nil {
		return SystemStatus{}, err
	}
	return s, nil
}

// AsErrorMessage extracts an ErrorMessage. pair_name is optional.
func AsErrorMessage(v Value) (ErrorMessage, error) {
	var e ErrorMessage
	var err error

	if e.MessageID, err = stringField(v, "message_id"); err != nil {
		return ErrorMessage{}, err
	}
	if e.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return ErrorMessage{}, err
	}
	if e.ErrorType, err = stringField(v, "error_type"); err != nil {
		return ErrorMessage{}, err
	}
	if e.ErrorCode, err = stringField(v, "error_code"); err != nil {
		return ErrorMessage{}, err
	}
	if e.ErrorMessage, err = stringField(v, "error_message"); err != nil {
		return ErrorMessage{}, err
	}
	if e.Severity, err = stringField(v, "severity"); err != nil {
		return ErrorMessage{}, err
	}
	if e.Component, err = stringField(v, "component"); err != nil {
		return ErrorMessage{}, err
	}
	if v.Contains("pair_name") {
		if e.PairName, err = stringField(v, "pair_name"); err != nil {
			return ErrorMessage{}, err
		}
	}
	return e, nil
}
