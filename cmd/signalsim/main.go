// cmd/signalsim — Demo signal and quote generator.
// Publishes simulated pair-trade signals and heartbeats to Redis and serves
// a quote WebSocket so execd can run end to end without a live analytics
// process or market data.
//
// Config (env vars):
//
//	REDIS_ADDR          — Redis host:port          (default: "localhost:6379")
//	REDIS_PASSWORD      — Redis password           (default: "")
//	SIGNAL_CHANNEL      — publish channel          (default: "signals")
//	SIGNAL_INTERVAL_MS  — signal interval          (default: "5000")
//	PAIRS               — comma-separated pairs    (default: "AAPL_MSFT")
//	QUOTE_ADDR          — quote WS listen address  (default: ":9001")
//	QUOTE_INTERVAL_MS   — quote broadcast interval (default: "250")
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// signalMsg mirrors the trade signal wire format consumed by execd.
type signalMsg struct {
	MessageID    string  `json:"message_id"`
	Timestamp    string  `json:"timestamp"`
	MessageType  string  `json:"message_type"`
	PairName     string  `json:"pair_name"`
	SymbolA      string  `json:"symbol_a"`
	SymbolB      string  `json:"symbol_b"`
	SignalType   string  `json:"signal_type"`
	ZScore       float64 `json:"z_score"`
	HedgeRatio   float64 `json:"hedge_ratio"`
	Confidence   float64 `json:"confidence"`
	PositionSize int64   `json:"position_size"`
	SharesA      int64   `json:"shares_a"`
	SharesB      int64   `json:"shares_b"`
	Volatility   float64 `json:"volatility"`
	Correlation  float64 `json:"correlation"`
}

type heartbeatMsg struct {
	MessageID   string `json:"message_id"`
	Timestamp   string `json:"timestamp"`
	MessageType string `json:"message_type"`
	Component   string `json:"component"`
}

type quoteMsg struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Ts     string  `json:"ts"`
}

// pairState holds per-pair simulation state.
type pairState struct {
	Name    string
	SymbolA string
	SymbolB string
	InPos   bool
}

// ─── Quote hub ───────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop quote
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[signalsim] upgrade error: %v", err)
			return
		}
		log.Printf("[signalsim] quote client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[signalsim] quote client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Quote generator ─────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 1 {
		next = 1
	}
	return next
}

func runQuotes(h *hub, prices map[string]float64, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for sym := range prices {
			prices[sym] = walkPrice(prices[sym])
			b, err := json.Marshal(quoteMsg{
				Symbol: sym,
				Price:  prices[sym],
				Ts:     time.Now().UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── Signal generator ────────────────────────────────────────────────────────

func runSignals(rdb *goredis.Client, channel string, pairs []pairState, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	ctx := context.Background()
	seq := 0

	for range ticker.C {
		seq++
		p := &pairs[rand.Intn(len(pairs))]

		// Every 5th message is a heartbeat.
		if seq%5 == 0 {
			b, _ := json.Marshal(heartbeatMsg{
				MessageID:   fmt.Sprintf("hb-%d", seq),
				Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
				MessageType: "HEARTBEAT",
				Component:   "signalsim",
			})
			if err := rdb.Publish(ctx, channel, b).Err(); err != nil {
				log.Printf("[signalsim] publish failed: %v", err)
			}
			continue
		}

		var msg signalMsg
		msg.MessageID = fmt.Sprintf("sig-%d", seq)
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
		msg.MessageType = "TRADE_SIGNAL"
		msg.PairName = p.Name
		msg.SymbolA = p.SymbolA
		msg.SymbolB = p.SymbolB
		msg.HedgeRatio = 0.8 + rand.Float64()*0.4
		msg.Confidence = 0.6 + rand.Float64()*0.4
		msg.Volatility = rand.Float64() * 0.4
		msg.Correlation = 0.5 + rand.Float64()*0.4
		msg.PositionSize = 100

		if p.InPos {
			msg.SignalType = "EXIT_POSITION"
			msg.ZScore = rand.Float64() * 0.5
			p.InPos = false
		} else {
			z := 1.5 + rand.Float64()*2.0
			shares := int64(rand.Intn(200) + 10)
			hedged := int64(float64(shares) * msg.HedgeRatio)
			if rand.Intn(2) == 0 {
				msg.SignalType = "ENTER_LONG_SPREAD"
				msg.ZScore = -z
				msg.SharesA = shares
				msg.SharesB = -hedged
			} else {
				msg.SignalType = "ENTER_SHORT_SPREAD"
				msg.ZScore = z
				msg.SharesA = -shares
				msg.SharesB = hedged
			}
			p.InPos = true
		}

		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := rdb.Publish(ctx, channel, b).Err(); err != nil {
			log.Printf("[signalsim] publish failed: %v", err)
			continue
		}
		log.Printf("[signalsim] published %s %s z=%.2f conf=%.2f sharesA=%d sharesB=%d",
			msg.SignalType, msg.PairName, msg.ZScore, msg.Confidence, msg.SharesA, msg.SharesB)
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalsim] starting demo signal generator...")

	redisAddr := envOrDefault("REDIS_ADDR", "localhost:6379")
	redisPassword := envOrDefault("REDIS_PASSWORD", "")
	channel := envOrDefault("SIGNAL_CHANNEL", "signals")
	signalIntervalMs := envIntOrDefault("SIGNAL_INTERVAL_MS", 5000)
	pairsEnv := envOrDefault("PAIRS", "AAPL_MSFT")
	quoteAddr := envOrDefault("QUOTE_ADDR", ":9001")
	quoteIntervalMs := envIntOrDefault("QUOTE_INTERVAL_MS", 250)

	pairs, prices := parsePairs(pairsEnv)
	if len(pairs) == 0 {
		log.Fatalf("[signalsim] no pairs configured via PAIRS")
	}
	log.Printf("[signalsim] pairs: %+v", pairs)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("[signalsim] redis ping failed: %v", err)
	}

	h := newHub()
	go runQuotes(h, prices, quoteIntervalMs)
	go runSignals(rdb, channel, pairs, signalIntervalMs)

	http.HandleFunc("/quotes", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"signalsim"}`)
	})

	log.Printf("[signalsim] publishing to %q every %dms, quotes at ws://localhost%s/quotes",
		channel, signalIntervalMs, quoteAddr)
	if err := http.ListenAndServe(quoteAddr, nil); err != nil {
		log.Fatalf("[signalsim] server error: %v", err)
	}
}

// parsePairs splits "AAPL_MSFT,KO_PEP" into pair states and seeds a starting
// price for each distinct symbol.
func parsePairs(s string) ([]pairState, map[string]float64) {
	var pairs []pairState
	prices := make(map[string]float64)

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, "_", 2)
		if len(seg) != 2 || seg[0] == "" || seg[1] == "" {
			log.Printf("[signalsim] skipping invalid pair spec: %q", part)
			continue
		}
		pairs = append(pairs, pairState{
			Name:    part,
			SymbolA: seg[0],
			SymbolB: seg[1],
		})
		for _, sym := range seg {
			if _, ok := prices[sym]; !ok {
				prices[sym] = 50 + rand.Float64()*200
			}
		}
	}
	return pairs, prices
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
