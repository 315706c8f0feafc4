package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pairs-execd/config"
	"pairs-execd/internal/broker"
	"pairs-execd/internal/journal"
	"pairs-execd/internal/logger"
	"pairs-execd/internal/marketdata"
	"pairs-execd/internal/metrics"
	"pairs-execd/internal/model"
	"pairs-execd/internal/notification"
	"pairs-execd/internal/orders"
	"pairs-execd/internal/positions"
	"pairs-execd/internal/protocol"
	"pairs-execd/internal/riskgate"
	"pairs-execd/internal/signalbus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("execd", slog.LevelInfo)
	log.Println("[execd] starting...")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Fill journal ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[execd] journal dir: %v", err)
	}
	jnl, err := journal.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[execd] journal init failed: %v", err)
	}
	defer jnl.Close()
	health.SetSQLiteOK(true)

	// ---- Alerting ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.AlertWebhookURL != "" {
		notifier = notification.NewMulti(
			notification.NewLogNotifier(),
			notification.NewWebhookNotifier(cfg.AlertWebhookURL),
		)
	}

	// ---- Portfolio & risk ----
	book := positions.NewBook(cfg.HistoryMax)
	gate := riskgate.New(cfg.RiskLimits())

	// ---- Broker ----
	var (
		brk   orders.Broker
		paper *broker.Paper
		brdg  *broker.Bridge
	)
	switch cfg.BrokerMode {
	case config.BrokerPaper:
		paper = broker.NewPaper(256, cfg.SlippageBps)
		brk = paper
		log.Printf("[execd] broker: paper (slippage=%dbps)", cfg.SlippageBps)
	case config.BrokerBridge:
		brdg, err = broker.NewBridge(broker.BridgeConfig{
			URL:        cfg.BridgeURL,
			APIKey:     cfg.BridgeAPIKey,
			ClientCode: cfg.BridgeClientCode,
			TOTPSecret: cfg.BridgeTOTPSecret,
		})
		if err != nil {
			log.Fatalf("[execd] bridge init failed: %v", err)
		}
		brdg.OnReconnect = func() {
			prom.BridgeReconnects.Inc()
			health.SetBrokerConnected(false)
		}
		brk = brdg
		log.Printf("[execd] broker: bridge at %s", cfg.BridgeURL)
	}

	// ---- Order manager ----
	manager := orders.NewManager(brk, book, gate)
	manager.OnFill = func(fill model.Fill) {
		prom.FillsTotal.Inc()
		prom.TotalPnL.Set(book.TotalPnL())
		prom.DailyPnL.Set(book.DailyPnL())
		prom.TotalExposure.Set(book.Exposure())
		prom.CurrentDrawdown.Set(book.CurrentDrawdown())
		if err := jnl.RecordFill(fill); err != nil {
			log.Printf("[execd] journal write failed: %v", err)
		}
	}
	manager.OnReject = func(stage, reason string) {
		prom.SignalsRejected.WithLabelValues(stage).Inc()
	}

	// ---- Broker callbacks ----
	onStatus := func(orderID int64, status model.OrderStatus, filledQty, remainingQty int64, avgFillPrice float64) {
		manager.OnOrderStatus(orderID, status, filledQty, remainingQty, avgFillPrice)
	}
	onError := func(requestID int64, code int, msg string) {
		prom.OrderErrors.Inc()
		notifier.Send(ctx, notification.BrokerFault(requestID, code, msg))
		manager.OnError(requestID, code, msg)
	}
	if paper != nil {
		paper.OnStatus = onStatus
		paper.OnError = onError
		paper.Start()
		health.SetBrokerConnected(true)
	}
	if brdg != nil {
		brdg.OnStatus = onStatus
		brdg.OnError = onError
		go func() {
			if err := brdg.Start(ctx); err != nil {
				log.Printf("[execd] bridge error: %v", err)
			}
		}()
	}

	// ---- Quote feed ----
	feed, err := marketdata.New(marketdata.Config{URL: cfg.FeedURL})
	if err != nil {
		log.Fatalf("[execd] feed init failed: %v", err)
	}
	feed.OnPrices = func(prices map[string]float64) {
		prom.PriceUpdates.Inc()
		book.UpdateMarketPrices(prices)
		if paper != nil {
			paper.UpdatePrices(prices)
		}
		gate.UpdateDailyPnL(book.DailyPnL())
		gate.UpdateTotalExposure(book.Exposure())
		gate.UpdateDrawdown(book.CurrentDrawdown())
		prom.TotalPnL.Set(book.TotalPnL())
		prom.DailyPnL.Set(book.DailyPnL())
		prom.TotalExposure.Set(book.Exposure())
		prom.CurrentDrawdown.Set(book.CurrentDrawdown())
	}
	feed.OnReconnect = func() {
		prom.FeedReconnects.Inc()
		health.SetFeedConnected(false)
	}
	go func() {
		health.SetFeedConnected(true)
		if err := feed.Start(ctx); err != nil {
			log.Printf("[execd] feed error: %v", err)
			health.SetFeedConnected(false)
		}
	}()

	// ---- Signal channel ----
	transport, err := signalbus.NewRedisTransport(signalbus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channels: cfg.ParseChannels(),
	})
	if err != nil {
		log.Fatalf("[execd] redis init failed: %v", err)
	}
	defer transport.Close()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, transport.Client(), jnl.DB(), 10*time.Second)

	bus := signalbus.New(transport, signalbus.DefaultPollInterval)
	bus.OnMessage = func(t protocol.MessageType) {
		prom.MessagesTotal.WithLabelValues(string(t)).Inc()
	}
	bus.OnDecodeError = func(err error) {
		prom.DecodeFailures.Inc()
	}
	bus.SignalHandler = func(sig protocol.TradeSignal) {
		health.SetLastSignalTime(time.Now())
		prom.SignalsTotal.Inc()
		start := time.Now()
		manager.HandleSignal(sig)
		prom.SubmitDur.Observe(time.Since(start).Seconds())
	}
	bus.HeartbeatHandler = func() {
		health.SetLastHeartbeat(time.Now())
	}

	// ---- Trading halt watcher ----
	go func() {
		halted := false
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				allowed, reason := gate.IsTradingAllowed()
				health.SetTradingHalted(!allowed)
				prom.PendingOrders.Set(float64(len(manager.PendingOrders())))
				if !allowed && !halted {
					notifier.Send(ctx, notification.TradingHalted(reason))
				}
				halted = !allowed
				if brdg != nil {
					health.SetBrokerConnected(brdg.IsConnected())
				}
			}
		}
	}()

	manager.Start()
	bus.Start()
	log.Printf("[execd] ready (channels=%v broker=%s)", cfg.ParseChannels(), cfg.BrokerMode)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[execd] shutdown signal received, cleaning up...")

	bus.Stop()
	manager.Stop()
	if paper != nil {
		paper.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[execd] shutdown complete.")
}
