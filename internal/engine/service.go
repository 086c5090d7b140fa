package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/robfig/cron/v3"

	"adaptiveRiskBot/config"
	"adaptiveRiskBot/internal/analytics"
	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ledger"
	"adaptiveRiskBot/internal/metrics"
	"adaptiveRiskBot/internal/montecarlo"
	"adaptiveRiskBot/internal/ports"
	"adaptiveRiskBot/internal/regime"
	"adaptiveRiskBot/internal/risk"
	"adaptiveRiskBot/internal/signalfilter"
	"adaptiveRiskBot/internal/sizing"
	"adaptiveRiskBot/internal/stops"
)

const (
	maxKlineCacheSize = 500 // Limit cache size to avoid memory issues
	statsWindow       = 200 // Closed trades fed into the performance stats
	quoteAsset        = "USDT"
)

// Service orchestrates the full decision pipeline: classify -> filter ->
// size -> admit -> submit on the signal path, and the trailing-stop state
// machine plus close submission on the price-tick path. Periodic Monte Carlo
// recalibration and the daily P&L reset run on a cron scheduler, off the
// live path.
type Service struct {
	cfg        *config.Config
	log        ports.Logger
	exchange   ports.ExchangeClient
	notifier   ports.Notifier
	indicators ports.IndicatorProvider
	classifier *regime.Classifier
	filter     *signalfilter.Filter
	sizer      sizing.Sizer
	riskCtrl   *risk.Controller
	book       *ledger.Ledger
	stops      *stops.Controller
	analyzer   *montecarlo.Analyzer
	resultRepo ports.TradeResultRepository
	budgetRepo ports.RiskBudgetRepository
	scheduler  *cron.Cron

	mu            sync.Mutex
	klineCache    map[string][]*domain.Kline
	lastRegime    map[string]domain.Regime
	pendingOrders map[int64]int64 // pending position ID -> exchange entry order ID
}

// Config bundles the service dependencies.
type Config struct {
	Cfg        *config.Config
	Logger     ports.Logger
	Exchange   ports.ExchangeClient
	Notifier   ports.Notifier
	Indicators ports.IndicatorProvider
	Classifier *regime.Classifier
	Filter     *signalfilter.Filter
	Sizer      sizing.Sizer
	Risk       *risk.Controller
	Ledger     *ledger.Ledger
	Stops      *stops.Controller
	Analyzer   *montecarlo.Analyzer
	ResultRepo ports.TradeResultRepository
	BudgetRepo ports.RiskBudgetRepository
}

// New creates the engine service.
func New(cfg Config) (*Service, error) {
	if cfg.Cfg == nil || cfg.Logger == nil || cfg.Exchange == nil || cfg.Notifier == nil ||
		cfg.Indicators == nil || cfg.Classifier == nil || cfg.Filter == nil || cfg.Sizer == nil ||
		cfg.Risk == nil || cfg.Ledger == nil || cfg.Stops == nil || cfg.Analyzer == nil ||
		cfg.ResultRepo == nil || cfg.BudgetRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for engine service")
	}
	return &Service{
		cfg:           cfg.Cfg,
		log:           cfg.Logger,
		exchange:      cfg.Exchange,
		notifier:      cfg.Notifier,
		indicators:    cfg.Indicators,
		classifier:    cfg.Classifier,
		filter:        cfg.Filter,
		sizer:         cfg.Sizer,
		riskCtrl:      cfg.Risk,
		book:          cfg.Ledger,
		stops:         cfg.Stops,
		analyzer:      cfg.Analyzer,
		resultRepo:    cfg.ResultRepo,
		budgetRepo:    cfg.BudgetRepo,
		scheduler:     cron.New(),
		klineCache:    make(map[string][]*domain.Kline),
		lastRegime:    make(map[string]domain.Regime),
		pendingOrders: make(map[int64]int64),
	}, nil
}

// Start restores persisted state, connects the market data streams, starts
// the recalibration scheduler and blocks until the context is cancelled or a
// stream fails permanently.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info(ctx, "Starting engine service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.log.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.exchange.Ping(ctx); err != nil {
		s.log.Error(ctx, err, "Exchange not reachable")
		return fmt.Errorf("exchange ping failed: %w", err)
	}

	// Crash recovery: reload open risk and the persisted budget before any
	// signal is accepted.
	if err := s.book.Restore(ctx, time.Now().UTC()); err != nil {
		s.log.Error(ctx, err, "Failed to restore ledger state")
		return fmt.Errorf("ledger restore failed: %w", err)
	}
	if err := s.restoreBudget(ctx); err != nil {
		return err
	}
	s.publishAccountMetrics(ctx)

	budget := s.riskCtrl.Budget()
	for _, symbol := range s.cfg.Symbols {
		if err := s.exchange.SetLeverage(ctx, symbol, budget.Leverage); err != nil {
			s.log.Error(ctx, err, "Failed to set leverage", map[string]interface{}{
				"symbol":   symbol,
				"leverage": budget.Leverage,
			})
			return fmt.Errorf("failed to set leverage for %s: %w", symbol, err)
		}
	}

	// Seed the kline cache so the classifier has lookback from the first tick.
	for _, symbol := range s.cfg.Symbols {
		klines, err := s.exchange.GetKlines(ctx, symbol, "1m", maxKlineCacheSize)
		if err != nil {
			s.log.Error(ctx, err, "Failed to load initial klines", map[string]interface{}{"symbol": symbol})
			return fmt.Errorf("failed to load initial klines for %s: %w", symbol, err)
		}
		s.mu.Lock()
		s.klineCache[symbol] = klines
		s.mu.Unlock()
		s.log.Info(ctx, "Loaded initial klines", map[string]interface{}{"symbol": symbol, "count": len(klines)})
	}

	// One stream per symbol; a failure on any of them stops the service.
	wsFailed := make(chan string, len(s.cfg.Symbols))
	var stopChs []chan struct{}
	var doneChs []chan struct{}
	for _, symbol := range s.cfg.Symbols {
		doneCh, stopCh, err := s.exchange.StreamKlines(ctx, symbol, "1m", s.handleKlineEvent, s.handleStreamError)
		if err != nil {
			s.log.Error(ctx, err, "Failed to start kline stream", map[string]interface{}{"symbol": symbol})
			return fmt.Errorf("failed to start kline stream for %s: %w", symbol, err)
		}
		stopChs = append(stopChs, stopCh)
		doneChs = append(doneChs, doneCh)
		sym := symbol
		done := doneCh
		go func() {
			<-done
			wsFailed <- sym
		}()
		s.log.Info(ctx, "Kline stream started", map[string]interface{}{"symbol": symbol})
	}

	if err := s.startScheduler(ctx); err != nil {
		return err
	}
	defer s.scheduler.Stop()

	select {
	case <-ctx.Done():
		s.log.Info(ctx, "Context cancelled, initiating shutdown...")
		for _, stopCh := range stopChs {
			select {
			case stopCh <- struct{}{}:
			default:
			}
		}
		for _, doneCh := range doneChs {
			select {
			case <-doneCh:
			case <-time.After(5 * time.Second):
				s.log.Warn(ctx, "Timeout waiting for kline stream shutdown")
			}
		}
	case symbol := <-wsFailed:
		err := fmt.Errorf("kline stream for %s stopped unexpectedly", symbol)
		s.log.Error(ctx, err, "Stream failure, stopping service")
		return err
	}

	s.log.Info(ctx, "Engine service stopped.")
	return nil
}

// restoreBudget replaces the boot-time budget with the persisted one, if any.
func (s *Service) restoreBudget(ctx context.Context) error {
	stored, err := s.budgetRepo.LoadBudget(ctx)
	if err != nil {
		s.log.Error(ctx, err, "Failed to load persisted risk budget")
		return fmt.Errorf("failed to load risk budget: %w", err)
	}
	if stored == nil {
		s.log.Info(ctx, "No persisted risk budget, using configured values")
		metrics.SetRiskPerTrade(s.riskCtrl.Budget().RiskPerTrade)
		return nil
	}
	if err := s.riskCtrl.ReplaceBudget(ctx, stored); err != nil {
		s.log.Error(ctx, err, "Persisted risk budget is invalid, using configured values")
		return nil
	}
	metrics.SetRiskPerTrade(stored.RiskPerTrade)
	s.log.Info(ctx, "Risk budget restored", map[string]interface{}{"riskPerTrade": stored.RiskPerTrade})
	return nil
}

// startScheduler registers the periodic Monte Carlo recalibration and the
// daily P&L reset. Both run off the live decision path.
func (s *Service) startScheduler(ctx context.Context) error {
	if _, err := s.scheduler.AddFunc(s.cfg.RecalibrationSchedule, func() {
		s.Recalibrate(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid recalibration schedule %q: %w", s.cfg.RecalibrationSchedule, err)
	}
	if _, err := s.scheduler.AddFunc("0 0 * * *", func() {
		s.resetDaily(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule daily reset: %w", err)
	}
	s.scheduler.Start()
	s.log.Info(ctx, "Scheduler started", map[string]interface{}{"recalibration": s.cfg.RecalibrationSchedule})
	return nil
}

// handleKlineEvent feeds final klines into the cache and advances the
// trailing-stop state machine with the resulting price tick.
func (s *Service) handleKlineEvent(kline *domain.Kline) {
	ctx := context.Background()
	if !kline.IsFinal {
		return
	}

	s.mu.Lock()
	cache := append(s.klineCache[kline.Symbol], kline)
	if len(cache) > maxKlineCacheSize {
		cache = cache[len(cache)-maxKlineCacheSize:]
	}
	s.klineCache[kline.Symbol] = cache
	s.mu.Unlock()

	tick := domain.PriceTick{Symbol: kline.Symbol, Price: kline.Close, Time: kline.CloseTime}
	for _, req := range s.stops.OnPriceTick(ctx, tick, time.Now().UTC()) {
		if err := s.closePosition(ctx, req); err != nil {
			s.log.Error(ctx, err, "Failed to close position on stop trigger", map[string]interface{}{
				"positionID": req.PositionID,
				"reason":     string(req.Reason),
			})
		}
	}
}

// handleStreamError logs stream-level errors; reconnection lives in the
// exchange adapter.
func (s *Service) handleStreamError(err error) {
	s.log.Error(context.Background(), err, "Kline stream error reported")
}

// OnSignals runs a batch of signals emitted on the same tick through the
// pipeline. Opposing signals for one symbol are resolved to exactly one
// before evaluation.
func (s *Service) OnSignals(ctx context.Context, signals []*domain.Signal) {
	type pair struct {
		long  *domain.Signal
		short *domain.Signal
	}
	bySymbol := make(map[string]*pair)
	var order []string
	for _, sig := range signals {
		p, ok := bySymbol[sig.Symbol]
		if !ok {
			p = &pair{}
			bySymbol[sig.Symbol] = p
			order = append(order, sig.Symbol)
		}
		if sig.Direction == domain.Long {
			p.long = sig
		} else {
			p.short = sig
		}
	}

	for _, symbol := range order {
		p := bySymbol[symbol]
		sig := p.long
		if sig == nil {
			sig = p.short
		}
		if p.long != nil && p.short != nil {
			classification := s.classify(ctx, symbol)
			sig = s.filter.ResolveConflict(ctx, p.long, p.short, classification)
		}
		if err := s.HandleSignal(ctx, sig); err != nil {
			s.log.Error(ctx, err, "Signal handling failed", map[string]interface{}{
				"symbol":    sig.Symbol,
				"direction": string(sig.Direction),
			})
		}
	}
}

// HandleSignal runs one signal through classify -> filter -> size -> admit ->
// submit. Rejections at any stage are terminal for the signal and are not
// errors; only infrastructure failures return one.
func (s *Service) HandleSignal(ctx context.Context, sig *domain.Signal) error {
	op := "engine.HandleSignal"

	classification := s.classify(ctx, sig.Symbol)

	decision := s.filter.Evaluate(ctx, sig, classification)
	if !decision.Accepted {
		metrics.RecordSignal(sig.Symbol, "rejected")
		return nil
	}
	metrics.RecordSignal(sig.Symbol, "accepted")

	equity, err := s.exchange.GetBalance(ctx, quoteAsset)
	if err != nil {
		return fmt.Errorf("%s: failed to fetch balance: %w", op, err)
	}
	entryPrice, err := s.exchange.GetPrice(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("%s: failed to fetch price: %w", op, err)
	}

	stopLoss, takeProfit := s.stops.InitialStops(sig.Direction, entryPrice, classification.Features.ATR, classification.Regime)

	stats, err := s.tradeStats(ctx)
	if err != nil {
		// Sizing degrades to its history-free fallback on a missing history.
		s.log.Warn(ctx, "Failed to load trade stats for sizing", map[string]interface{}{"error": err.Error()})
		stats = nil
	}

	budget := s.riskCtrl.Budget()
	size, err := s.sizer.Size(equity, budget.RiskPerTrade, entryPrice, stopLoss, sizing.Context{
		Symbol:  sig.Symbol,
		ATR:     classification.Features.ATR,
		ATRMean: classification.Features.ATRMean,
		Stats:   stats,
	})
	if err != nil {
		return fmt.Errorf("%s: sizing failed: %w", op, err)
	}

	admission, err := s.riskCtrl.Admit(ctx, risk.AdmissionRequest{
		Signal:     *sig,
		Filter:     decision,
		Size:       size,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Equity:     equity,
	})
	if err != nil {
		var rejection *risk.Rejection
		if errors.As(err, &rejection) {
			metrics.RecordRejection(string(rejection.Reason))
			if rejection.Reason == risk.ReasonDailyDrawdown {
				s.notifier.Notify(ctx, ports.AlertDrawdownLimit,
					fmt.Sprintf("Admission for %s %s blocked: %s", sig.Symbol, sig.Direction, rejection.Detail))
			}
			return nil
		}
		return fmt.Errorf("%s: admission failed: %w", op, err)
	}

	s.cancelExchangeOrders(ctx, admission.CancelledPending)

	return s.submitEntry(ctx, sig, admission, entryPrice, classification)
}

// submitEntry places the entry order under the admission token and settles
// the reservation either way.
func (s *Service) submitEntry(ctx context.Context, sig *domain.Signal, admission *risk.Admission, entryPrice float64, classification domain.RegimeClassification) error {
	op := "engine.submitEntry"

	resp, err := s.submitWithRetry(ctx, ports.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     sig.Direction.EntrySide(),
		Quantity: admission.Position.Size,
	})
	if err != nil {
		if relErr := s.riskCtrl.Release(ctx, admission.Token); relErr != nil &&
			!errors.Is(relErr, ports.ErrReservationNotFound) {
			s.log.Error(ctx, relErr, op+": failed to release reservation after submission failure",
				map[string]interface{}{"positionID": admission.PositionID})
		}
		s.notifier.Notify(ctx, ports.AlertSubmissionFailed,
			fmt.Sprintf("Entry order for %s %s failed after %d attempts: %v",
				sig.Symbol, sig.Direction, s.cfg.SubmissionMaxAttempts, err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	s.pendingOrders[admission.PositionID] = resp.OrderID
	s.mu.Unlock()

	fillPrice := resp.AvgPrice
	if fillPrice == 0 {
		s.log.Warn(ctx, op+": entry order AvgPrice is 0, using ticker price as fallback",
			map[string]interface{}{"orderID": resp.OrderID, "fallbackPrice": entryPrice})
		fillPrice = entryPrice
	}
	// Stops are re-anchored to the actual fill so the protective distance is
	// preserved regardless of slippage.
	stopLoss, takeProfit := s.stops.InitialStops(sig.Direction, fillPrice, classification.Features.ATR, classification.Regime)

	if err := s.riskCtrl.Confirm(ctx, admission.Token, fillPrice, stopLoss, takeProfit, time.Now().UTC()); err != nil {
		if errors.Is(err, ports.ErrReservationNotFound) {
			// The reservation was cancelled by an opposing admission while the
			// order was in flight; flatten the fill so no untracked exposure
			// remains.
			s.log.Warn(ctx, op+": reservation gone after fill, flattening",
				map[string]interface{}{"positionID": admission.PositionID})
			if _, flatErr := s.submitWithRetry(ctx, ports.OrderRequest{
				Symbol:   sig.Symbol,
				Side:     sig.Direction.ExitSide(),
				Quantity: admission.Position.Size,
			}); flatErr != nil {
				s.log.Error(ctx, flatErr, op+": FAILED TO FLATTEN UNTRACKED FILL",
					map[string]interface{}{"positionID": admission.PositionID})
			}
			return nil
		}
		return fmt.Errorf("%s: failed to confirm fill: %w", op, err)
	}

	s.mu.Lock()
	delete(s.pendingOrders, admission.PositionID)
	s.mu.Unlock()

	metrics.RecordOpen(sig.Symbol, string(sig.Direction))
	s.publishAccountMetrics(ctx)
	s.log.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": admission.PositionID,
		"symbol":     sig.Symbol,
		"direction":  string(sig.Direction),
		"fillPrice":  fillPrice,
		"size":       admission.Position.Size,
	})
	return nil
}

// closePosition submits the exit order for a fired stop and finalizes the
// position in the ledger. The ledger tolerates duplicate close requests.
func (s *Service) closePosition(ctx context.Context, req stops.CloseRequest) error {
	op := "engine.closePosition"

	pos := s.book.Get(req.PositionID)
	if pos == nil || !pos.IsOpen() {
		s.log.Debug(ctx, op+": position no longer open, skipping", map[string]interface{}{"positionID": req.PositionID})
		return nil
	}

	resp, err := s.submitWithRetry(ctx, ports.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     pos.Direction.ExitSide(),
		Quantity: pos.Size,
	})
	if err != nil {
		s.notifier.Notify(ctx, ports.AlertSubmissionFailed,
			fmt.Sprintf("Exit order for position %d (%s) failed: %v", pos.ID, pos.Symbol, err))
		return fmt.Errorf("%s: exit order failed for position %d: %w", op, pos.ID, err)
	}

	exitPrice := resp.AvgPrice
	if exitPrice == 0 {
		exitPrice = req.Price
	}

	result, err := s.book.Close(ctx, req.PositionID, exitPrice, req.Reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: failed to finalize position %d: %w", op, req.PositionID, err)
	}
	if result != nil {
		metrics.RecordClose(result.Symbol, string(result.CloseReason))
	}
	s.publishAccountMetrics(ctx)
	return nil
}

// Recalibrate runs the Monte Carlo analysis and publishes the recommended
// risk ceiling. Too little history is a skip, not a failure.
func (s *Service) Recalibrate(ctx context.Context) {
	op := "engine.Recalibrate"

	s.recalibrateWeights(ctx)

	report, err := s.analyzer.Analyze(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrInsufficientHistory) {
			s.log.Info(ctx, op+": skipped, not enough closed trades")
			return
		}
		s.log.Error(ctx, err, op+": analysis failed")
		return
	}

	previous := s.riskCtrl.Budget().RiskPerTrade
	if err := s.riskCtrl.SetRiskPerTrade(ctx, report.RecommendedRisk); err != nil {
		s.log.Error(ctx, err, op+": failed to apply recommended risk", map[string]interface{}{
			"recommended": report.RecommendedRisk,
		})
		return
	}

	budget := s.riskCtrl.Budget()
	if err := s.budgetRepo.SaveBudget(ctx, &budget); err != nil {
		s.log.Error(ctx, err, op+": failed to persist recalibrated budget")
	}

	metrics.SetRiskPerTrade(report.RecommendedRisk)
	s.notifier.Notify(ctx, ports.AlertRiskRecalibrated,
		fmt.Sprintf("Risk per trade %.4f -> %.4f (VaR %.4f over %d trades, %d simulations)",
			previous, report.RecommendedRisk, report.VaR, report.Trades, report.Simulations))
	s.log.Info(ctx, op+": risk ceiling recalibrated", map[string]interface{}{
		"previous":    previous,
		"recommended": report.RecommendedRisk,
		"var":         report.VaR,
		"trades":      report.Trades,
	})
}

// recalibrateWeights drifts the portfolio sizer's per-symbol weights toward
// the recent performers. The other sizing strategies carry no cycle state.
func (s *Service) recalibrateWeights(ctx context.Context) {
	portfolio, ok := s.sizer.(*sizing.Portfolio)
	if !ok {
		return
	}

	results, err := s.resultRepo.RecentResults(ctx, statsWindow)
	if err != nil {
		s.log.Error(ctx, err, "engine.Recalibrate: failed to load results for portfolio weights")
		return
	}
	if len(results) == 0 {
		return
	}

	portfolio.Recalibrate(analytics.SymbolPerformance(results))
	weights := make(map[string]interface{}, len(s.cfg.Symbols))
	for _, symbol := range s.cfg.Symbols {
		weights[symbol] = portfolio.Weight(symbol)
	}
	s.log.Info(ctx, "Portfolio weights recalibrated", weights)
}

// resetDaily clears the daily P&L window the drawdown gate accumulates.
func (s *Service) resetDaily(ctx context.Context) {
	s.book.ResetDaily(ctx)
	metrics.SetDailyPNL(0)
}

// classify derives the current regime for one symbol from the kline cache.
// On a regime flip it raises a notification.
func (s *Service) classify(ctx context.Context, symbol string) domain.RegimeClassification {
	s.mu.Lock()
	cached := s.klineCache[symbol]
	klines := make([]*domain.Kline, len(cached))
	copy(klines, cached)
	s.mu.Unlock()

	features, err := s.indicators.Snapshot(ctx, klines)
	if err != nil {
		s.log.Debug(ctx, "Indicator snapshot unavailable", map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		})
	}
	classification := s.classifier.Classify(features)
	metrics.SetRegimeConfidence(symbol, string(classification.Regime), classification.Confidence)

	s.mu.Lock()
	previous, seen := s.lastRegime[symbol]
	s.lastRegime[symbol] = classification.Regime
	s.mu.Unlock()

	if seen && previous != classification.Regime && classification.Regime != domain.RegimeUnknown {
		s.notifier.Notify(ctx, ports.AlertRegimeChange,
			fmt.Sprintf("%s regime changed %s -> %s (confidence %.2f)",
				symbol, previous, classification.Regime, classification.Confidence))
	}
	return classification
}

// tradeStats computes the trailing performance statistics the Kelly and
// anti-martingale sizers consume.
func (s *Service) tradeStats(ctx context.Context) (*analytics.Stats, error) {
	results, err := s.resultRepo.RecentResults(ctx, statsWindow)
	if err != nil {
		return nil, err
	}
	return analytics.Compute(results), nil
}

// cancelExchangeOrders cancels the exchange orders of pending positions the
// admission gate rolled back. A missing order means it never reached the
// exchange or was already gone; both are fine.
func (s *Service) cancelExchangeOrders(ctx context.Context, positionIDs []int64) {
	for _, id := range positionIDs {
		s.mu.Lock()
		orderID, ok := s.pendingOrders[id]
		delete(s.pendingOrders, id)
		s.mu.Unlock()
		if !ok {
			continue
		}
		pos := s.book.Get(id)
		symbol := ""
		if pos != nil {
			symbol = pos.Symbol
		}
		if _, err := s.exchange.CancelOrder(ctx, symbol, orderID); err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) {
				continue
			}
			s.log.Error(ctx, err, "Failed to cancel order for rolled-back reservation", map[string]interface{}{
				"positionID": id,
				"orderID":    orderID,
			})
		}
	}
}

// submitWithRetry submits an order with bounded exponential backoff. Only
// transient failures are retried; a permanent refusal surfaces immediately.
func (s *Service) submitWithRetry(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.SubmissionMaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmissionTimeout)
		resp, err := s.exchange.SubmitOrder(attemptCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == s.cfg.SubmissionMaxAttempts {
			break
		}
		metrics.RecordSubmissionRetry()
		delay := b.Duration()
		s.log.Warn(ctx, "Order submission failed, retrying", map[string]interface{}{
			"symbol":  req.Symbol,
			"side":    string(req.Side),
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("submission aborted: %w", ports.ErrContextCanceled)
		}
	}
	return nil, fmt.Errorf("order submission for %s exhausted after %d attempts: %v: %w",
		req.Symbol, s.cfg.SubmissionMaxAttempts, lastErr, ports.ErrSubmissionFailed)
}

// isRetryable reports whether a submission failure is worth another attempt.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrTimeout),
		errors.Is(err, ports.ErrConnectionFailed),
		errors.Is(err, ports.ErrExchangeUnavailable),
		errors.Is(err, ports.ErrUnknown):
		return true
	default:
		return false
	}
}

// publishAccountMetrics refreshes the position-count and daily P&L gauges.
func (s *Service) publishAccountMetrics(ctx context.Context) {
	state := s.book.AccountState(0)
	metrics.SetOpenPositions(state.OpenPositions)
	metrics.SetDailyPNL(state.DailyPNL)
}
