package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"adaptiveRiskBot/internal/ports"
)

// Config calibrates the bootstrap simulation and the risk-ceiling formula.
type Config struct {
	Simulations   int     // Number of resampled sequences (e.g., 1000)
	TradesPerSim  int     // Trades per sequence; 0 uses the history length
	Percentile    float64 // Drawdown confidence percentile for the VaR estimate (e.g., 0.95)
	MaxDrawdown   float64 // Maximum acceptable drawdown the account tolerates (e.g., 0.2)
	BaseRisk      float64 // Baseline risk-per-trade the ceiling scales from
	AbsoluteMax   float64 // Hard upper bound on the recommended risk-per-trade
	MinTrades     int     // Minimum closed trades before a recalibration runs
	HistoryWindow int     // Most recent trades fed into the resampler; 0 = all
	Seed          int64   // RNG seed; 0 draws a random one
}

// DefaultConfig returns the default simulation calibration.
func DefaultConfig() Config {
	return Config{
		Simulations:   1000,
		Percentile:    0.95,
		MaxDrawdown:   0.2,
		BaseRisk:      0.01,
		AbsoluteMax:   0.02,
		MinTrades:     30,
		HistoryWindow: 200,
	}
}

// Report is the outcome of one recalibration run.
type Report struct {
	Trades          int
	Simulations     int
	VaR             float64 // Drawdown at the configured percentile
	MeanDrawdown    float64
	RecommendedRisk float64
}

// Analyzer periodically recalibrates the allowable risk-per-trade from the
// empirical drawdown distribution of past trades. It runs off the live
// decision path and only publishes a number; open positions are never
// touched.
type Analyzer struct {
	cfg     Config
	log     ports.Logger
	results ports.TradeResultRepository
	rng     *rand.Rand
}

// New creates an analyzer over the trade-result log.
func New(cfg Config, results ports.TradeResultRepository, log ports.Logger) (*Analyzer, error) {
	if results == nil || log == nil {
		return nil, fmt.Errorf("missing required dependencies for monte carlo analyzer")
	}
	if cfg.Simulations <= 0 {
		return nil, fmt.Errorf("simulation count must be positive")
	}
	if cfg.Percentile <= 0 || cfg.Percentile >= 1 {
		return nil, fmt.Errorf("percentile must be in (0, 1)")
	}
	if cfg.MaxDrawdown <= 0 || cfg.BaseRisk <= 0 || cfg.AbsoluteMax <= 0 {
		return nil, fmt.Errorf("drawdown and risk parameters must be positive")
	}
	if cfg.MinTrades <= 0 {
		cfg.MinTrades = DefaultConfig().MinTrades
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Analyzer{
		cfg:     cfg,
		log:     log,
		results: results,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Analyze bootstraps the historical P&L distribution and derives a
// recommended risk-per-trade ceiling. With fewer than MinTrades closed
// trades it returns ErrInsufficientHistory and the caller leaves the budget
// unchanged.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	op := "montecarlo.Analyze"

	history, err := a.results.RecentResults(ctx, a.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load trade history: %w", op, err)
	}
	if len(history) < a.cfg.MinTrades {
		return nil, fmt.Errorf("%s: %d closed trades, need %d: %w",
			op, len(history), a.cfg.MinTrades, ports.ErrInsufficientHistory)
	}

	returns := make([]float64, len(history))
	for i, r := range history {
		returns[i] = r.PNLPct
	}

	tradesPerSim := a.cfg.TradesPerSim
	if tradesPerSim <= 0 {
		tradesPerSim = len(returns)
	}

	drawdowns := make([]float64, a.cfg.Simulations)
	var sum float64
	for i := 0; i < a.cfg.Simulations; i++ {
		dd := a.simulate(returns, tradesPerSim)
		drawdowns[i] = dd
		sum += dd
	}
	sort.Float64s(drawdowns)

	varEstimate := percentile(drawdowns, a.cfg.Percentile)
	recommended := a.ceiling(varEstimate)

	report := &Report{
		Trades:          len(history),
		Simulations:     a.cfg.Simulations,
		VaR:             varEstimate,
		MeanDrawdown:    sum / float64(a.cfg.Simulations),
		RecommendedRisk: recommended,
	}
	a.log.Info(ctx, "Risk recalibration simulation completed", map[string]interface{}{
		"trades":          report.Trades,
		"simulations":     report.Simulations,
		"var":             report.VaR,
		"meanDrawdown":    report.MeanDrawdown,
		"recommendedRisk": report.RecommendedRisk,
	})
	return report, nil
}

// simulate resamples one trade sequence with replacement and returns the
// maximum drawdown of its compounded equity curve.
func (a *Analyzer) simulate(returns []float64, trades int) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for i := 0; i < trades; i++ {
		equity *= 1 + returns[a.rng.Intn(len(returns))]
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// ceiling scales the base risk by how much drawdown headroom the simulated
// distribution leaves, capped at the absolute maximum.
func (a *Analyzer) ceiling(varEstimate float64) float64 {
	if varEstimate <= 0 {
		return a.cfg.AbsoluteMax
	}
	recommended := a.cfg.BaseRisk * (a.cfg.MaxDrawdown / varEstimate)
	return math.Min(recommended, a.cfg.AbsoluteMax)
}

// percentile reads the p-quantile from an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
