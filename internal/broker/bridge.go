package broker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"pairs-execd/internal/model"
)

// BridgeConfig holds connection parameters for the broker gateway.
type BridgeConfig struct {
	// URL of the gateway websocket, e.g. "ws://localhost:9400/orders"
	URL string

	// APIKey and ClientCode identify the session.
	APIKey     string
	ClientCode string

	// TOTPSecret generates the one-time code sent with each (re)connect.
	TOTPSecret string

	// ReconnectDelay is the initial backoff before reconnect attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *BridgeConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// bridge wire messages. Outbound carries the order; inbound carries either a
// status transition or an error for a prior request.
type bridgeOutbound struct {
	Type  string             `json:"type"`
	Order model.OrderRequest `json:"order"`
}

type bridgeInbound struct {
	Type         string  `json:"type"`
	OrderID      int64   `json:"order_id"`
	Status       string  `json:"status"`
	FilledQty    int64   `json:"filled_qty"`
	RemainingQty int64   `json:"remaining_qty"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	RequestID    int64   `json:"request_id"`
	ErrorCode    int     `json:"error_code"`
	ErrorMessage string  `json:"error_message"`
}

// Bridge routes orders to a live broker gateway over a websocket session
// authenticated with a fresh TOTP code at each connect. Status and error
// callbacks arrive on the read loop goroutine; reconnects are automatic
// with exponential backoff.
type Bridge struct {
	cfg BridgeConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool

	OnStatus StatusFunc
	OnError  ErrorFunc

	// OnReconnect is called each time the session drops and a reconnect is
	// scheduled.
	OnReconnect func()
}

// NewBridge creates a bridge. Returns an error if the URL is unparseable.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Bridge{cfg: cfg}, nil
}

// Start connects to the gateway and runs the read loop, reconnecting on
// disconnect. Blocks until ctx is cancelled; run it on its own goroutine.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	delay := b.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := b.runOnce(ctx)
		if err == nil {
			return nil
		}

		log.Printf("[bridge] disconnected (%v), reconnecting in %s...", err, delay)
		if b.OnReconnect != nil {
			b.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > b.cfg.MaxReconnectDelay {
			delay = b.cfg.MaxReconnectDelay
		}
	}
}

// IsConnected reports whether a session is currently up.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// PlaceOrder sends the order over the current session. Returns
// ErrNotConnected while the bridge is between sessions.
func (b *Bridge) PlaceOrder(order model.OrderRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrNotConnected
	}
	return b.conn.WriteJSON(bridgeOutbound{Type: "place_order", Order: order})
}

// runOnce authenticates, connects, and reads until disconnect or ctx cancel.
func (b *Bridge) runOnce(ctx context.Context) error {
	code, err := totp.GenerateCode(b.cfg.TOTPSecret, time.Now())
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Add("x-api-key", b.cfg.APIKey)
	header.Add("x-client-code", b.cfg.ClientCode)
	header.Add("x-totp", code)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.URL, header)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	log.Printf("[bridge] connected to %s", b.cfg.URL)

	defer func() {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
		conn.Close()
	}()

	// Context watcher closes the connection so ReadMessage unblocks.
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

		var msg bridgeInbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[bridge] parse error: %v (raw: %s)", err, raw)
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg bridgeInbound) {
	switch msg.Type {
	case "order_status":
		if b.OnStatus != nil {
			b.OnStatus(msg.OrderID, model.OrderStatus(msg.Status), msg.FilledQty, msg.RemainingQty, msg.AvgFillPrice)
		}
	case "order_error":
		if b.OnError != nil {
			b.OnError(msg.RequestID, msg.ErrorCode, msg.ErrorMessage)
		}
	default:
		log.Printf("[bridge] skipping unknown message type %q", msg.Type)
	}
}
