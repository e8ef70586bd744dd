package aggregates

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kvadrat/server/config"
	"kvadrat/server/internal/models"
	"kvadrat/server/internal/valuation"
)

// Refresher recomputes the multidim_aggregates table from active listings.
// Each run replaces the rows for the run date inside a single transaction,
// so in-flight reads never observe a partially rebuilt grid.
type Refresher struct {
	db     *gorm.DB
	cfg    *config.Config
	params config.EngineParams
	logger *logrus.Logger
}

func NewRefresher(db *gorm.DB, cfg *config.Config, params config.EngineParams, logger *logrus.Logger) *Refresher {
	return &Refresher{
		db:     db,
		cfg:    cfg,
		params: params,
		logger: logger,
	}
}

// Refresh rebuilds aggregates for the current date, retrying per config.
func (r *Refresher) Refresh(ctx context.Context) error {
	date := time.Now().UTC().Truncate(24 * time.Hour)

	var err error
	for attempt := 0; attempt <= r.cfg.Aggregates.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Infof("Retrying aggregate refresh, attempt %d of %d", attempt, r.cfg.Aggregates.MaxRetries)
			time.Sleep(time.Duration(r.cfg.Aggregates.RetryDelay) * time.Second)
		}

		err = r.refreshOnce(ctx, date)
		if err == nil {
			return nil
		}
		r.logger.Errorf("Aggregate refresh failed: %v", err)
	}

	return fmt.Errorf("failed to refresh aggregates after %d attempts: %w", r.cfg.Aggregates.MaxRetries, err)
}

func (r *Refresher) refreshOnce(ctx context.Context, date time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listings []models.Listing
		err := tx.Where("status = ? AND price > 0 AND area_total > 0 AND district <> ''", "active").
			Find(&listings).Error
		if err != nil {
			return fmt.Errorf("failed to load active listings: %w", err)
		}

		rows := computeAggregates(listings, date.Format("2006-01-02"), r.params.GridConfidenceCap)

		if err := tx.Where("date = ?", date.Format("2006-01-02")).
			Delete(&models.SegmentAggregate{}).Error; err != nil {
			return fmt.Errorf("failed to clear aggregates for date: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert aggregates: %w", err)
			}
		}

		r.logger.WithFields(logrus.Fields{
			"date":     date.Format("2006-01-02"),
			"listings": len(listings),
			"rows":     len(rows),
		}).Info("Aggregate refresh completed")
		return nil
	})
}

// computeAggregates groups listings per district and segment, at both the
// full and the widened (no room count) granularity, so fallback lookups can
// drop the room dimension without a schema change.
func computeAggregates(listings []models.Listing, date string, confidenceCap int) []models.SegmentAggregate {
	type group struct {
		prices []float64
		ppsqm  []float64
		areas  []float64
	}

	groups := make(map[string]*group)
	add := func(district, segmentKey string, l models.Listing) {
		key := district + "|" + segmentKey
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.prices = append(g.prices, l.Price)
		g.ppsqm = append(g.ppsqm, l.Price/l.AreaTotal)
		g.areas = append(g.areas, l.AreaTotal)
	}

	for _, l := range listings {
		segment := valuation.NewSegment(l.BuildingType, l.TotalFloors, l.Rooms)
		add(l.District, segment.Key(), l)
		add(l.District, segment.WidenedKey(), l)
	}

	rows := make([]models.SegmentAggregate, 0, len(groups))
	for key, g := range groups {
		var district, segmentKey string
		for i := 0; i < len(key); i++ {
			if key[i] == '|' {
				district = key[:i]
				segmentKey = key[i+1:]
				break
			}
		}

		minPrice, maxPrice := g.prices[0], g.prices[0]
		for _, p := range g.prices {
			if p < minPrice {
				minPrice = p
			}
			if p > maxPrice {
				maxPrice = p
			}
		}

		rows = append(rows, models.SegmentAggregate{
			District:          district,
			SegmentKey:        segmentKey,
			Date:              date,
			MeanPricePerSqm:   valuation.Mean(g.ppsqm),
			MedianPricePerSqm: valuation.Median(g.ppsqm),
			MinPrice:          minPrice,
			MaxPrice:          maxPrice,
			AreaMean:          valuation.Mean(g.areas),
			PriceStddev:       valuation.Stddev(g.prices),
			ListingCount:      len(g.prices),
			Confidence:        storedConfidence(g.ppsqm, confidenceCap),
		})
	}
	return rows
}

// storedConfidence scores an aggregate 0..cap: more listings raise it,
// price dispersion lowers it. Grid answers are coarser than KNN ones, so
// the cap keeps them below any comparable-backed estimate.
func storedConfidence(ppsqm []float64, maxScore int) int {
	n := len(ppsqm)
	mean := valuation.Mean(ppsqm)

	var variation float64
	if mean > 0 {
		variation = valuation.Stddev(ppsqm) / mean
	}

	score := 15 + 3*math.Min(float64(n), 10) - 20*math.Min(variation, 0.5)/0.5
	if score < 5 {
		score = 5
	}
	if score > float64(maxScore) {
		score = float64(maxScore)
	}
	return int(math.Round(score))
}
