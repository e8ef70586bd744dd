package valuation

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"kvadrat/server/config"
	"kvadrat/server/internal/geometry"
	"kvadrat/server/internal/models"
)

type comparableFinder interface {
	FindComparables(ctx context.Context, subject models.SubjectQuery) ([]models.Comparable, error)
}

type gridSource interface {
	Estimate(ctx context.Context, district string, segment Segment, asOf time.Time) (*models.SegmentAggregate, error)
}

// Engine produces a point price estimate, a price range, and a confidence
// score for a subject property, preferring direct comparables and falling
// back to the segment grid.
type Engine struct {
	searcher comparableFinder
	grid     gridSource
	params   config.EngineParams
	logger   *logrus.Logger
}

func NewEngine(searcher comparableFinder, grid gridSource, params config.EngineParams, logger *logrus.Logger) *Engine {
	return &Engine{
		searcher: searcher,
		grid:     grid,
		params:   params,
		logger:   logger,
	}
}

// pricingSource tags the strategy selected for a request.
type pricingSource int

const (
	sourceInsufficient pricingSource = iota
	sourceComparables
	sourceAggregate
)

type pricingDecision struct {
	source      pricingSource
	comparables []models.Comparable
	aggregate   *models.SegmentAggregate
}

// Estimate values the subject. It fails with ErrInsufficientData only when
// both the comparable search and the segment grid come up empty.
func (e *Engine) Estimate(ctx context.Context, subject models.SubjectQuery) (*models.ValuationResult, error) {
	if err := validateSubject(subject, e.params.MaxRooms); err != nil {
		return nil, err
	}
	if subject.AsOf.IsZero() {
		subject.AsOf = time.Now()
	}

	district := geometry.NearestDistrict(*subject.Position)
	segment := NewSegment(subject.BuildingType, subject.TotalFloors, subject.Rooms)

	decision, err := e.selectStrategy(ctx, subject, district, segment)
	if err != nil {
		return nil, err
	}

	switch decision.source {
	case sourceComparables:
		return e.estimateFromComparables(subject, district, segment, decision.comparables), nil
	case sourceAggregate:
		return e.estimateFromAggregate(subject, district, segment, decision.aggregate), nil
	default:
		return nil, ErrInsufficientData
	}
}

// selectStrategy evaluates the KNN-then-grid fallback chain once per
// request.
func (e *Engine) selectStrategy(ctx context.Context, subject models.SubjectQuery, district string, segment Segment) (pricingDecision, error) {
	comparables, err := e.searcher.FindComparables(ctx, subject)
	if err != nil {
		return pricingDecision{}, err
	}
	if len(comparables) >= e.params.MinComparables {
		return pricingDecision{source: sourceComparables, comparables: comparables}, nil
	}

	e.logger.WithFields(logrus.Fields{
		"district":    district,
		"segment":     segment.Key(),
		"comparables": len(comparables),
	}).Info("Too few comparables, trying segment grid")

	agg, err := e.grid.Estimate(ctx, district, segment, subject.AsOf)
	if errors.Is(err, ErrNoAggregate) {
		return pricingDecision{source: sourceInsufficient}, nil
	}
	if err != nil {
		return pricingDecision{}, err
	}
	return pricingDecision{source: sourceAggregate, aggregate: agg}, nil
}

// estimateFromComparables runs outlier rejection, the bottom-3 selection
// strategy, and the negotiation discount over the comparable set.
func (e *Engine) estimateFromComparables(subject models.SubjectQuery, district string, segment Segment, comparables []models.Comparable) *models.ValuationResult {
	filtered := e.rejectOutliers(comparables)

	// Sort ascending by corrected price per sqm and average the three
	// cheapest; buyers negotiate toward the cheapest comparable cohort.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CorrectedPricePerSqm < filtered[j].CorrectedPricePerSqm
	})
	cohort := filtered
	if len(cohort) > 3 {
		cohort = cohort[:3]
	}
	var cohortValues []float64
	for _, c := range cohort {
		cohortValues = append(cohortValues, c.CorrectedPricePerSqm)
	}

	pricePerSqm := Mean(cohortValues) * (1 - e.params.NegotiationDiscount)
	price := pricePerSqm * subject.AreaTotal
	confidence := e.confidence(filtered)
	low, high := e.priceRange(price, confidence)

	return &models.ValuationResult{
		Price:       math.Round(price),
		PriceLow:    math.Round(low),
		PriceHigh:   math.Round(high),
		Confidence:  confidence,
		Source:      "knn",
		District:    district,
		Segment:     segment.Key(),
		Comparables: filtered,
	}
}

// estimateFromAggregate prices directly from the segment aggregate. The
// stored confidence is already capped by the grid estimator.
func (e *Engine) estimateFromAggregate(subject models.SubjectQuery, district string, segment Segment, agg *models.SegmentAggregate) *models.ValuationResult {
	price := agg.MedianPricePerSqm * subject.AreaTotal
	low, high := e.priceRange(price, agg.Confidence)

	return &models.ValuationResult{
		Price:       math.Round(price),
		PriceLow:    math.Round(low),
		PriceHigh:   math.Round(high),
		Confidence:  agg.Confidence,
		Source:      "grid",
		District:    district,
		Segment:     agg.SegmentKey,
		Comparables: []models.Comparable{},
	}
}

// rejectOutliers drops comparables whose corrected price per sqm falls
// outside [q1 - k*iqr, q3 + k*iqr]. Quartiles use integer indexes, not
// interpolation.
func (e *Engine) rejectOutliers(comparables []models.Comparable) []models.Comparable {
	n := len(comparables)
	if n == 0 {
		return comparables
	}

	sorted := make([]models.Comparable, n)
	copy(sorted, comparables)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CorrectedPricePerSqm < sorted[j].CorrectedPricePerSqm
	})

	q1 := sorted[n/4].CorrectedPricePerSqm
	q3 := sorted[3*n/4].CorrectedPricePerSqm
	iqr := q3 - q1
	lower := q1 - e.params.IQRMultiplier*iqr
	upper := q3 + e.params.IQRMultiplier*iqr

	kept := make([]models.Comparable, 0, n)
	for _, c := range sorted {
		if c.CorrectedPricePerSqm < lower || c.CorrectedPricePerSqm > upper {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// confidence scores the comparable set 0-100. It rises with comparable
// count, falls with price dispersion, and falls with spatial spread.
func (e *Engine) confidence(comparables []models.Comparable) int {
	n := len(comparables)
	if n == 0 {
		return 0
	}

	values := make([]float64, n)
	var distSum float64
	for i, c := range comparables {
		values[i] = c.CorrectedPricePerSqm
		distSum += c.DistanceKm
	}
	mean := Mean(values)

	var variation float64
	if mean > 0 {
		variation = Stddev(values) / mean
	}
	avgDistance := distSum / float64(n)

	score := 50 +
		5*math.Min(float64(n), 10) -
		80*math.Min(variation, 0.5) -
		10*math.Min(avgDistance/e.params.SearchRadiusKm, 1)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

// priceRange derives the band around the estimate from the confidence tier.
func (e *Engine) priceRange(price float64, confidence int) (low, high float64) {
	var pct float64
	switch {
	case confidence >= 70:
		pct = 0.05
	case confidence >= 50:
		pct = 0.10
	default:
		pct = 0.15
	}
	return price * (1 - pct), price * (1 + pct)
}
