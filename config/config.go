package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"adaptiveRiskBot/internal/adapters/logger"
	"adaptiveRiskBot/internal/ports"
	"adaptiveRiskBot/internal/sizing"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Traded universe
	Symbols []string

	// Risk budget
	RiskPerTradePct  float64 // e.g., 0.01 for 1% of equity at risk per trade
	Leverage         int
	MaxOpenPositions int
	MaxDailyDrawdown float64            // e.g., 0.05 for 5% of equity per day
	SymbolCaps       map[string]float64 // per-symbol notional allocation caps

	// Trailing stop
	TrailingActivationPct    float64
	TrailingStepPct          float64
	TrailingAccelerationRate float64
	TrailingMaxFactor        float64
	StalenessWindow          time.Duration

	// Signal filter
	AcceptanceThreshold float64
	MinSignalSpacing    time.Duration

	// Sizing
	SizerStrategy sizing.Strategy

	// Monte Carlo recalibration
	Simulations           int
	DrawdownPercentile    float64
	MaxAcceptableDrawdown float64
	AbsoluteMaxRisk       float64
	RecalibrationSchedule string // cron expression

	// Order submission
	SubmissionMaxAttempts int
	SubmissionTimeout     time.Duration

	// Database
	DBPath string

	// Metrics
	MetricsAddr string

	// Notifications (optional; empty token disables Telegram alerts)
	TelegramToken  string
	TelegramChatID int64

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Traded universe
	symbolsStr := getEnv("SYMBOLS", "ETHUSDT")
	for _, s := range strings.Split(symbolsStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, s)
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	// Risk budget
	cfg.RiskPerTradePct, err = getEnvAsFloatRequired("RISK_PER_TRADE_PCT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PER_TRADE_PCT: %v", err))
	} else if cfg.RiskPerTradePct <= 0 || cfg.RiskPerTradePct >= 1.0 {
		errs = append(errs, "RISK_PER_TRADE_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_POSITIONS: %v", err))
	} else if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}

	cfg.MaxDailyDrawdown, err = getEnvAsFloatRequired("MAX_DAILY_DRAWDOWN_PCT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_DRAWDOWN_PCT: %v", err))
	} else if cfg.MaxDailyDrawdown <= 0 || cfg.MaxDailyDrawdown >= 1.0 {
		errs = append(errs, "MAX_DAILY_DRAWDOWN_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.SymbolCaps, err = parseSymbolCaps(getEnv("SYMBOL_CAPS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYMBOL_CAPS: %v", err))
	}

	// Trailing stop
	cfg.TrailingActivationPct, err = getEnvAsFloatRequired("TRAILING_ACTIVATION_PCT", 0.025)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_ACTIVATION_PCT: %v", err))
	} else if cfg.TrailingActivationPct <= 0 {
		errs = append(errs, "TRAILING_ACTIVATION_PCT must be positive")
	}

	cfg.TrailingStepPct, err = getEnvAsFloatRequired("TRAILING_STEP_PCT", 0.005)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_STEP_PCT: %v", err))
	} else if cfg.TrailingStepPct <= 0 {
		errs = append(errs, "TRAILING_STEP_PCT must be positive")
	}

	cfg.TrailingAccelerationRate, err = getEnvAsFloatRequired("TRAILING_ACCELERATION_RATE", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_ACCELERATION_RATE: %v", err))
	} else if cfg.TrailingAccelerationRate <= 0 {
		errs = append(errs, "TRAILING_ACCELERATION_RATE must be positive")
	}

	cfg.TrailingMaxFactor, err = getEnvAsFloatRequired("TRAILING_MAX_FACTOR", 0.2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRAILING_MAX_FACTOR: %v", err))
	} else if cfg.TrailingMaxFactor <= 0 || cfg.TrailingMaxFactor >= 1.0 {
		errs = append(errs, "TRAILING_MAX_FACTOR must be between 0.0 and 1.0 (exclusive)")
	}

	stalenessSeconds := getEnvAsInt("STALENESS_WINDOW_SECONDS", 30)
	if stalenessSeconds <= 0 {
		errs = append(errs, "STALENESS_WINDOW_SECONDS must be positive")
	}
	cfg.StalenessWindow = time.Duration(stalenessSeconds) * time.Second

	// Signal filter
	cfg.AcceptanceThreshold, err = getEnvAsFloatRequired("SIGNAL_ACCEPTANCE_THRESHOLD", 0.65)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIGNAL_ACCEPTANCE_THRESHOLD: %v", err))
	} else if cfg.AcceptanceThreshold <= 0 || cfg.AcceptanceThreshold > 1.0 {
		errs = append(errs, "SIGNAL_ACCEPTANCE_THRESHOLD must be in (0.0, 1.0]")
	}

	spacingMinutes := getEnvAsInt("SIGNAL_MIN_SPACING_MINUTES", 15)
	if spacingMinutes <= 0 {
		errs = append(errs, "SIGNAL_MIN_SPACING_MINUTES must be positive")
	}
	cfg.MinSignalSpacing = time.Duration(spacingMinutes) * time.Minute

	// Sizing
	strategyStr := getEnv("SIZER_STRATEGY", string(sizing.StrategyFixedFractional))
	cfg.SizerStrategy = sizing.Strategy(strategyStr)
	switch cfg.SizerStrategy {
	case sizing.StrategyFixedFractional, sizing.StrategyVolatilityAdjusted,
		sizing.StrategyKelly, sizing.StrategyAntiMartingale, sizing.StrategyPortfolio:
	default:
		errs = append(errs, fmt.Sprintf("unknown SIZER_STRATEGY %q", strategyStr))
	}

	// Monte Carlo recalibration
	cfg.Simulations = getEnvAsInt("MC_SIMULATIONS", 1000)
	if cfg.Simulations <= 0 {
		errs = append(errs, "MC_SIMULATIONS must be positive")
	}
	cfg.DrawdownPercentile = getEnvAsFloat("MC_DRAWDOWN_PERCENTILE", 0.95)
	if cfg.DrawdownPercentile <= 0 || cfg.DrawdownPercentile >= 1.0 {
		errs = append(errs, "MC_DRAWDOWN_PERCENTILE must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.MaxAcceptableDrawdown = getEnvAsFloat("MC_MAX_ACCEPTABLE_DRAWDOWN", 0.2)
	if cfg.MaxAcceptableDrawdown <= 0 {
		errs = append(errs, "MC_MAX_ACCEPTABLE_DRAWDOWN must be positive")
	}
	cfg.AbsoluteMaxRisk = getEnvAsFloat("MC_ABSOLUTE_MAX_RISK", 0.02)
	if cfg.AbsoluteMaxRisk <= 0 || cfg.AbsoluteMaxRisk >= 1.0 {
		errs = append(errs, "MC_ABSOLUTE_MAX_RISK must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.RecalibrationSchedule = getEnv("MC_SCHEDULE", "@every 6h")

	// Order submission
	cfg.SubmissionMaxAttempts = getEnvAsInt("SUBMISSION_MAX_ATTEMPTS", 4)
	if cfg.SubmissionMaxAttempts <= 0 {
		errs = append(errs, "SUBMISSION_MAX_ATTEMPTS must be positive")
	}
	submissionTimeoutSeconds := getEnvAsInt("SUBMISSION_TIMEOUT_SECONDS", 10)
	if submissionTimeoutSeconds <= 0 {
		errs = append(errs, "SUBMISSION_TIMEOUT_SECONDS must be positive")
	}
	cfg.SubmissionTimeout = time.Duration(submissionTimeoutSeconds) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/risk_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Notifications
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if cfg.TelegramToken != "" {
		cfg.TelegramChatID, err = getEnvAsInt64Required("TELEGRAM_CHAT_ID", 0)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID: %v", err))
		} else if cfg.TelegramChatID == 0 {
			errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is provided")
		}
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseSymbolCaps reads "BTCUSDT:0.5,ETHUSDT:0.3" into a cap map.
// An empty value means no per-symbol caps.
func parseSymbolCaps(raw string) (map[string]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	caps := make(map[string]float64)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("entry %q is not SYMBOL:CAP", entry)
		}
		cap, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("cap for %s is not a number: %w", parts[0], err)
		}
		if cap <= 0 || cap > 1.0 {
			return nil, fmt.Errorf("cap for %s must be in (0.0, 1.0]", parts[0])
		}
		caps[parts[0]] = cap
	}
	return caps, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsInt64Required(key string, defaultValue int64) (int64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
