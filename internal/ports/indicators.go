package ports

import (
	"context"

	"adaptiveRiskBot/internal/domain"
)

// IndicatorProvider computes the feature snapshot the regime classifier and
// stop controller consume. Implemented by the external indicator library;
// the engine only reads the resulting numeric values.
type IndicatorProvider interface {
	// Snapshot computes the current feature vector from the supplied klines.
	Snapshot(ctx context.Context, klines []*domain.Kline) (domain.FeatureSnapshot, error)
}
