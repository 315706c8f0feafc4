// Package signalbus owns the subscription to the analytics process and the
// receive loop that decodes, classifies, and dispatches inbound messages.
//
// The loop polls the transport with a bounded timeout on its own goroutine.
// Decode failures, unknown message types, and transport errors are logged
// and skipped; nothing on the receive path terminates the process.
package signalbus

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pairs-execd/internal/protocol"
)

// DefaultPollInterval bounds a single transport receive.
const DefaultPollInterval = time.Second

// retryDelay is the brief sleep after a would-block receive.
const retryDelay = 10 * time.Millisecond

// Bus runs the receive loop and dispatches each message to the handler for
// its declared type. Handlers must be assigned before Start; a type with no
// handler is logged at a default level and skipped.
type Bus struct {
	transport    Transport
	pollInterval time.Duration

	SignalHandler      func(protocol.TradeSignal)
	PositionHandler    func(protocol.PositionUpdate)
	PerformanceHandler func(protocol.PerformanceUpdate)
	StatusHandler      func(protocol.SystemStatus)
	ErrorHandler       func(protocol.ErrorMessage)
	HeartbeatHandler   func()

	// OnMessage and OnDecodeError, if set, observe traffic for metrics.
	OnMessage     func(protocol.MessageType)
	OnDecodeError func(error)

	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
	lastHeartbeat time.Time
}

// New creates a bus over the given transport. pollInterval <= 0 selects
// DefaultPollInterval.
func New(transport Transport, pollInterval time.Duration) *Bus {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Bus{
		transport:    transport,
		pollInterval: pollInterval,
	}
}

// Start launches the receive loop. Idempotent.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.wg.Add(1)
	go b.receiveLoop(b.stopCh)
	log.Println("[signalbus] started")
}

// Stop halts the receive loop and waits for the in-flight receive/dispatch
// to finish before returning, so no handler fires after Stop. Idempotent.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	b.wg.Wait()
	log.Println("[signalbus] stopped")
}

// IsRunning reports whether the receive loop is active.
func (b *Bus) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// LastHeartbeat returns the arrival time of the most recent heartbeat.
func (b *Bus) LastHeartbeat() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeartbeat
}

func (b *Bus) receiveLoop(stopCh <-chan struct{}) {
	defer b.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		payload, err := b.transport.Receive(ctx, b.pollInterval)
		if err != nil {
			if errors.Is(err, ErrNoMessage) {
				time.Sleep(retryDelay)
				continue
			}
			log.Printf("[signalbus] transport error: %v", err)
			time.Sleep(retryDelay)
			continue
		}

		b.process(string(payload))
	}
}

// process decodes, classifies, and dispatches one message. Every failure is
// a log-and-skip.
func (b *Bus) process(text string) {
	v, err := protocol.Parse(text)
	if err != nil {
		log.Printf("[signalbus] dropping undecodable message: %v", err)
		if b.OnDecodeError != nil {
			b.OnDecodeError(err)
		}
		return
	}

	if !protocol.IsValidMessage(v) {
		log.Println("[signalbus] dropping message without envelope fields")
		if b.OnDecodeError != nil {
			b.OnDecodeError(errors.New("missing envelope fields"))
		}
		return
	}

	msgType := protocol.ClassifyMessage(v)
	if b.OnMessage != nil {
		b.OnMessage(msgType)
	}

	switch msgType {
	case protocol.MsgTradeSignal:
		sig, err := protocol.AsTradeSignal(v)
		if err != nil {
			log.Printf("[signalbus] dropping trade signal: %v", err)
			if b.OnDecodeError != nil {
				b.OnDecodeError(err)
			}
			return
		}
		if b.SignalHandler != nil {
			b.SignalHandler(sig)
		} else {
			log.Printf("[signalbus] no signal handler registered, dropping signal for %s", sig.PairName)
		}

	case protocol.MsgPositionUpdate:
		u, err := protocol.AsPositionUpdate(v)
		if err != nil {
			log.Printf("[signalbus] dropping position update: %v", err)
			return
		}
		if b.PositionHandler != nil {
			b.PositionHandler(u)
		} else {
			log.Printf("[signalbus] position update for %s: %s sharesA=%d sharesB=%d upnl=%.2f",
				u.PairName, u.CurrentPosition, u.SharesA, u.SharesB, u.UnrealizedPnL)
		}

	case protocol.MsgPerformanceUpdate:
		u, err := protocol.AsPerformanceUpdate(v)
		if err != nil {
			log.Printf("[signalbus] dropping performance update: %v", err)
			return
		}
		if b.PerformanceHandler != nil {
			b.PerformanceHandler(u)
		} else {
			log.Printf("[signalbus] performance update: total=%.2f daily=%.2f sharpe=%.2f pairs=%d",
				u.TotalPnL, u.DailyPnL, u.SharpeRatio, u.ActivePairs)
		}

	case protocol.MsgSystemStatus:
		s, err := protocol.AsSystemStatus(v)
		if err != nil {
			log.Printf("[signalbus] dropping system status: %v", err)
			return
		}
		if b.StatusHandler != nil {
			b.StatusHandler(s)
		} else {
			log.Printf("[signalbus] system status from %s: %s (%s)", s.Component, s.Status, s.Message)
		}

	case protocol.MsgErrorMessage:
		e, err := protocol.AsErrorMessage(v)
		if err != nil {
			log.Printf("[signalbus] dropping error message: %v", err)
			return
		}
		if b.ErrorHandler != nil {
			b.ErrorHandler(e)
		} else {
			log.Printf("[signalbus] upstream error [%s] %s/%s: %s",
				e.Severity, e.Component, e.ErrorCode, e.ErrorMessage)
		}

	case protocol.MsgHeartbeat:
		b.mu.Lock()
		b.lastHeartbeat = time.Now()
		b.mu.Unlock()
		if b.HeartbeatHandler != nil {
			b.HeartbeatHandler()
		}

	default:
		log.Println("[signalbus] unknown message type, skipping")
	}
}
