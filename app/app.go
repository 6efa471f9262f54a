package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"webull-autopilot/broker"
	"webull-autopilot/cache"
	"webull-autopilot/candles"
	"webull-autopilot/config"
	"webull-autopilot/database"
	"webull-autopilot/exits"
	"webull-autopilot/metrics"
	"webull-autopilot/notifications"
	"webull-autopilot/realtime"
	"webull-autopilot/stream"
)

// App owns the auto-exit session: one watched instrument, one candle
// builder, at most one armed exit. All components receive their
// dependencies explicitly; there is no ambient global state.
type App struct {
	config *config.Config

	db       *database.Database
	exitRepo *database.ExitRepository
	redis    *cache.RedisClient
	webhooks *notifications.WebhookManager
	sse      *realtime.Broker

	brokerClient broker.Broker
	push         *stream.PushSource // nil when running on the HTTP polling fallback
	source       stream.Source

	builder   *candles.RealtimeBuilder
	evaluator *exits.Evaluator
	executor  *exits.Executor

	mu        sync.Mutex
	connected bool
	armedMeta armedMeta

	httpServer *http.Server
}

// armedMeta carries the sizing context of the currently armed exit; the
// executor needs it to budget slippage.
type armedMeta struct {
	recordID        uint
	targetProfitUSD float64
	maxLossUSD      float64
	delta           float64
	exitSide        string
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:   cfg,
		webhooks: notifications.NewWebhookManager(cfg.AlertWebhookURL),
		sse:      realtime.NewBroker(),
		builder:  candles.NewRealtimeBuilder(cfg.Symbol, cfg.Trading.MaxCachedBars),
	}
}

// Start wires the components and runs until interrupted.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database connection
	fmt.Println("🗄️  Connecting to database...")
	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}
	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	a.exitRepo = database.NewExitRepository(db)
	if err := a.exitRepo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis connection
	fmt.Println("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if a.redis == nil {
		fmt.Println("⚠️  Redis connection failed. Candle/exit persistence disabled.")
	}

	// 3. Brokerage transport
	a.brokerClient = broker.NewWebullClient(
		a.config.BrokerBaseURL,
		a.config.BrokerToken,
		a.config.BrokerDeviceID,
		a.config.AccountID,
	)

	// 4. Order-event source: push stream when configured, HTTP polling
	// otherwise. Both satisfy the same WaitForOrderUpdate contract.
	if a.config.StreamWSURL != "" {
		a.push = stream.NewPushSource(a.config.StreamWSURL, a.config.BrokerToken)
		a.push.OnQuote = a.handleQuoteTick
		a.push.OnStateChange = a.handleConnectionChange
		a.source = a.push
		log.Println("📡 Using push event stream for order updates")
	} else {
		a.source = stream.NewPollSource(a.brokerClient)
		a.setConnected(true) // polling mode has no liveness signal
		log.Println("📡 No stream endpoint configured, using HTTP polling fallback (flatness unverified)")
	}

	// 5. Exit engine
	a.executor = exits.NewExecutor(a.brokerClient, a.source, exits.ExecutorConfig{
		Symbol:           a.config.Symbol,
		TickerID:         a.config.TickerID,
		OptionContractID: a.config.OptionContractID,
		TickSize:         a.config.Trading.TickSize,
		SlippagePct:      a.config.Trading.SlippagePct,
		MaxAttempts:      a.config.Trading.MaxExitAttempts,
		OrderWait:        time.Duration(a.config.Trading.OrderUpdateWaitMs) * time.Millisecond,
	}, func(t time.Time) bool { return candles.InRegularHours(t.Unix()) })
	a.executor.OnAttempt = a.recordAttempt
	a.executor.Alert = func(title, message string) {
		a.webhooks.Alert("CRITICAL", title, message, a.config.Symbol)
		a.sse.Broadcast(realtime.EventAlert, map[string]string{"title": title, "message": message})
	}

	a.evaluator = exits.NewEvaluator(a.builder, a.onExitFired)
	a.evaluator.Connected = a.isConnected

	// 6. Candle state: restore the session snapshot, then bootstrap from
	// the provider's recent history.
	a.builder.SetUpdateFunc(func(c candles.Candle) {
		a.sse.Broadcast(realtime.EventCandle, c)
	})
	a.restoreCandles(ctx)
	a.bootstrapHistory(ctx)
	a.restoreArmedExit(ctx)

	// 7. SSE + metrics endpoint
	go a.sse.Run()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/events", a.sse)
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.MetricsPort),
		Handler: mux,
	}
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️  HTTP server failed: %v", err)
		}
	}()
	log.Printf("✅ Metrics and event feed listening on :%d", a.config.MetricsPort)

	var wg sync.WaitGroup

	// 8. Market-data feed
	if a.push != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.push.Run(ctx)
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runQuotePolling(ctx)
		}()
	}

	// 9. Official minute-bar reconciliation
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runBarReconciliation(ctx)
	}()

	// 10. Trigger evaluation ticker
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runEvaluationLoop(ctx)
	}()

	// 11. Candle persistence timer
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runPersistenceLoop(ctx)
	}()

	// 12. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		// Persist candle state before anything closes
		fmt.Println("🕯️ Persisting candle snapshot...")
		a.persistCandles(shutdownCtx)

		if a.httpServer != nil {
			_ = a.httpServer.Shutdown(shutdownCtx)
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// runEvaluationLoop polls the trigger evaluator while the process runs.
// The evaluator tolerates being re-entered long before an executor call
// resolves; firing is guarded by its closed-before-dispatch discipline.
func (a *App) runEvaluationLoop(ctx context.Context) {
	interval := time.Duration(a.config.Trading.EvalIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🔁 Trigger evaluation running every %v", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.evaluator.CheckAutoExits()
		}
	}
}

// runPersistenceLoop snapshots candle state on a timer.
func (a *App) runPersistenceLoop(ctx context.Context) {
	interval := time.Duration(a.config.Trading.PersistIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.persistCandles(ctx)
		}
	}
}

// runQuotePolling drives the candle builder from HTTP quotes when no push
// stream is configured.
func (a *App) runQuotePolling(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quote, err := a.brokerClient.GetQuote(ctx, a.config.TickerID)
			if err != nil {
				log.Printf("⚠️  Quote poll failed: %v", err)
				continue
			}
			a.applyTick(quote.Last, time.Now())
		}
	}
}

// runBarReconciliation periodically merges official provider minute bars
// into the builder, superseding tick-built candles.
func (a *App) runBarReconciliation(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bars, err := a.brokerClient.GetHistoricalBars(ctx, a.config.TickerID, "m1", 2)
			if err != nil {
				continue
			}
			for _, bar := range bars {
				if !a.builder.ApplyOfficialBar(bar) {
					metrics.CandlesRejected.WithLabelValues("official_bar").Inc()
				}
			}
		}
	}
}

func (a *App) handleQuoteTick(tick stream.QuoteTick) {
	if tick.TickerID != a.config.TickerID {
		return
	}
	ts := time.Now()
	if tick.Time > 0 {
		ts = time.Unix(tick.Time, 0)
	}
	a.applyTick(tick.Price, ts)
}

func (a *App) applyTick(price float64, ts time.Time) {
	if !a.builder.ApplyTick(price, ts) {
		metrics.CandlesRejected.WithLabelValues("tick").Inc()
	}
}

// handleConnectionChange reacts to the stream's online/offline side
// channel. Losing the feed with a live position optionally triggers a
// best-effort emergency flatten.
func (a *App) handleConnectionChange(connected bool) {
	a.setConnected(connected)
	if connected {
		log.Println("🌐 Market-data connection restored")
		return
	}
	log.Println("🌐 Market-data connection lost")

	if !a.config.Trading.FlattenOnDisconnect {
		return
	}
	if _, ok := a.evaluator.Armed(); !ok {
		return
	}
	log.Println("🚨 Connection lost with an armed position: attempting emergency flatten")
	a.FlattenNow("EMERGENCY_DISCONNECT")
}

func (a *App) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
}

func (a *App) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}
