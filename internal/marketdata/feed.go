// Package marketdata provides a websocket quote feed. It connects to a
// price server, caches the last price per symbol, and delivers coalesced
// full snapshots on a flush interval so downstream consumers see a
// consistent price map rather than per-tick churn.
package marketdata

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Quote is one price update on the wire.
type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Ts     string  `json:"ts,omitempty"`
}

// Config holds configuration for the quote feed.
type Config struct {
	// URL of the quote websocket, e.g. "ws://localhost:9001/quotes"
	URL string

	// FlushInterval is how often coalesced snapshots are delivered.
	// Defaults to 250ms if zero.
	FlushInterval time.Duration

	// ReconnectDelay is the initial backoff before reconnect attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.FlushInterval == 0 {
		c.FlushInterval = 250 * time.Millisecond
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Feed is a reconnecting websocket quote client.
type Feed struct {
	cfg Config

	mu     sync.Mutex
	prices map[string]float64
	dirty  bool

	// OnPrices receives a full snapshot of the price cache after each
	// flush with new data. Must be set before Start.
	OnPrices func(map[string]float64)

	// Optional hook, called each time a reconnection is scheduled.
	OnReconnect func()
}

// New creates a feed. Returns an error if the URL is unparseable.
func New(cfg Config) (*Feed, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Feed{
		cfg:    cfg,
		prices: make(map[string]float64),
	}, nil
}

// Snapshot returns a copy of the current price cache.
func (f *Feed) Snapshot() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[string]float64, len(f.prices))
	for sym, px := range f.prices {
		cp[sym] = px
	}
	return cp
}

// Start connects and streams quotes until ctx is cancelled, reconnecting
// automatically on disconnect. Blocks; run it on its own goroutine.
func (f *Feed) Start(ctx context.Context) error {
	// Flusher lives across reconnects so cached prices keep flowing.
	go f.flushLoop(ctx)

	delay := f.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx)
		if err == nil {
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

func (f *Feed) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			if !f.dirty {
				f.mu.Unlock()
				continue
			}
			f.dirty = false
			cp := make(map[string]float64, len(f.prices))
			for sym, px := range f.prices {
				cp[sym] = px
			}
			f.mu.Unlock()

			if f.OnPrices != nil {
				f.OnPrices(cp)
			}
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", f.cfg.URL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var q Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if q.Symbol == "" || q.Price <= 0 {
			continue
		}

		f.mu.Lock()
		f.prices[q.Symbol] = q.Price
		f.dirty = true
		f.mu.Unlock()
	}
}
