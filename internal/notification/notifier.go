// Package notification provides alert delivery for execution events:
// trading halts, broker faults, and daily loss breaches.
package notification

import (
	"context"
	"fmt"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them. Useful for
// development and paper trading.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans one alert out to several backends. Delivery failures are
// logged per backend and do not stop the remaining sends.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	for _, n := range m.backends {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend %T failed: %v", n, err)
		}
	}
	return nil
}

// TradingHalted builds the alert raised when the circuit breaker opens.
func TradingHalted(reason string) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "Trading halted",
		Message: reason,
	}
}

// DailyLossBreach builds the alert raised when the daily loss limit trips.
func DailyLossBreach(dailyPnL, limit float64) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "Daily loss limit breached",
		Message: fmt.Sprintf("daily P&L %.2f breached limit %.2f", dailyPnL, limit),
	}
}

// BrokerFault builds the alert raised on a broker error callback.
func BrokerFault(requestID int64, code int, msg string) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   "Broker error",
		Message: fmt.Sprintf("request %d failed with code %d: %s", requestID, code, msg),
	}
}
