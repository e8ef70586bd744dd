package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"kvadrat/server/config"
	"kvadrat/server/internal/models"
)

// AggregateStore is the lookup contract for precomputed segment statistics.
// A nil aggregate with a nil error means no matching row exists.
type AggregateStore interface {
	LatestAggregate(ctx context.Context, district, segmentKey string, asOf time.Time) (*models.SegmentAggregate, error)
}

// GridEstimator answers from precomputed (district x segment x date)
// aggregates. It is the safety net when comparable density is too low and
// is never preferred over a valid KNN result.
type GridEstimator struct {
	store  AggregateStore
	params config.EngineParams
	logger *logrus.Logger
}

func NewGridEstimator(store AggregateStore, params config.EngineParams, logger *logrus.Logger) *GridEstimator {
	return &GridEstimator{
		store:  store,
		params: params,
		logger: logger,
	}
}

// Estimate looks up the most recent aggregate for the segment at or before
// asOf, widening by dropping the room-count dimension before giving up.
// Confidence is capped below KNN-derived estimates.
func (g *GridEstimator) Estimate(ctx context.Context, district string, segment Segment, asOf time.Time) (*models.SegmentAggregate, error) {
	agg, err := g.store.LatestAggregate(ctx, district, segment.Key(), asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate lookup: %v", ErrDataUnavailable, err)
	}

	if agg == nil {
		g.logger.WithFields(logrus.Fields{
			"district": district,
			"segment":  segment.Key(),
		}).Debug("No exact segment aggregate, widening")

		agg, err = g.store.LatestAggregate(ctx, district, segment.WidenedKey(), asOf)
		if err != nil {
			return nil, fmt.Errorf("%w: widened aggregate lookup: %v", ErrDataUnavailable, err)
		}
	}

	if agg == nil {
		return nil, ErrNoAggregate
	}

	if agg.Confidence > g.params.GridConfidenceCap {
		agg.Confidence = g.params.GridConfidenceCap
	}
	return agg, nil
}
