package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"adaptiveRiskBot/config"
	"adaptiveRiskBot/internal/adapters/binanceclient"
	"adaptiveRiskBot/internal/adapters/indicators"
	"adaptiveRiskBot/internal/adapters/logger"
	"adaptiveRiskBot/internal/adapters/sqlite"
	"adaptiveRiskBot/internal/adapters/telegram"
	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/engine"
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

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	exchangeClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 5. Initialize Notifier (Telegram when configured, no-op otherwise)
	var notifier ports.Notifier = telegram.NopNotifier{}
	if cfg.TelegramToken != "" {
		tgNotifier, err := telegram.New(telegram.Config{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
		}
		notifier = tgNotifier
		appLogger.Info(ctx, "Telegram notifier initialized")
	} else {
		appLogger.Info(ctx, "No Telegram token configured, alerts disabled")
	}

	// 6. Initialize Core Components
	book, err := ledger.New(ledger.Config{
		Logger:             appLogger,
		PositionRepository: repo,
		ResultRepository:   repo,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position ledger")
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}

	riskController, err := risk.New(risk.Config{
		Logger: appLogger,
		Ledger: book,
		Budget: &domain.RiskBudget{
			RiskPerTrade:     cfg.RiskPerTradePct,
			Leverage:         cfg.Leverage,
			MaxOpenPositions: cfg.MaxOpenPositions,
			MaxDailyDrawdown: cfg.MaxDailyDrawdown,
			SymbolCaps:       cfg.SymbolCaps,
		},
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk controller")
		log.Fatalf("FATAL: Failed to initialize risk controller: %v", err)
	}

	classifier, err := regime.New(regime.DefaultConfig())
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize regime classifier")
		log.Fatalf("FATAL: Failed to initialize regime classifier: %v", err)
	}

	filterCfg := signalfilter.DefaultConfig()
	filterCfg.AcceptanceThreshold = cfg.AcceptanceThreshold
	filterCfg.MinSignalSpacing = cfg.MinSignalSpacing
	filter, err := signalfilter.New(filterCfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal filter")
		log.Fatalf("FATAL: Failed to initialize signal filter: %v", err)
	}

	sizer, err := newSizer(cfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position sizer")
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}

	stopsCfg := stops.DefaultConfig()
	stopsCfg.ActivationPct = cfg.TrailingActivationPct
	stopsCfg.StepPct = cfg.TrailingStepPct
	stopsCfg.AccelerationRate = cfg.TrailingAccelerationRate
	stopsCfg.MaxFactor = cfg.TrailingMaxFactor
	stopsCfg.StalenessWindow = cfg.StalenessWindow
	stopController, err := stops.New(stopsCfg, book, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize stop controller")
		log.Fatalf("FATAL: Failed to initialize stop controller: %v", err)
	}

	mcCfg := montecarlo.DefaultConfig()
	mcCfg.Simulations = cfg.Simulations
	mcCfg.Percentile = cfg.DrawdownPercentile
	mcCfg.MaxDrawdown = cfg.MaxAcceptableDrawdown
	mcCfg.BaseRisk = cfg.RiskPerTradePct
	mcCfg.AbsoluteMax = cfg.AbsoluteMaxRisk
	analyzer, err := montecarlo.New(mcCfg, repo, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Monte Carlo analyzer")
		log.Fatalf("FATAL: Failed to initialize Monte Carlo analyzer: %v", err)
	}

	// 7. Initialize the Engine
	service, err := engine.New(engine.Config{
		Cfg:        cfg,
		Logger:     appLogger,
		Exchange:   exchangeClient,
		Notifier:   notifier,
		Indicators: indicators.New(indicators.Config{}),
		Classifier: classifier,
		Filter:     filter,
		Sizer:      sizer,
		Risk:       riskController,
		Ledger:     book,
		Stops:      stopController,
		Analyzer:   analyzer,
		ResultRepo: repo,
		BudgetRepo: repo,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize engine service")
		log.Fatalf("FATAL: Failed to initialize engine service: %v", err)
	}
	appLogger.Info(ctx, "Engine service initialized")

	// 8. Expose Prometheus metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			appLogger.Error(ctx, err, "Metrics endpoint stopped")
		}
	}()

	// 9. Start the Service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Engine service exited with error")
		log.Fatalf("FATAL: Engine service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// newSizer builds the configured sizing strategy. Portfolio sizing starts
// from equal weights across the traded universe.
func newSizer(cfg *config.Config) (sizing.Sizer, error) {
	if cfg.SizerStrategy == sizing.StrategyPortfolio {
		weights := make(map[string]float64, len(cfg.Symbols))
		for _, symbol := range cfg.Symbols {
			weights[symbol] = 1.0 / float64(len(cfg.Symbols))
		}
		return sizing.NewPortfolio(weights, sizing.DefaultConfig())
	}
	return sizing.New(cfg.SizerStrategy, sizing.DefaultConfig())
}
