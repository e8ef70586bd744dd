package valuation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"kvadrat/server/config"
	"kvadrat/server/internal/geometry"
	"kvadrat/server/internal/models"
)

// ComparableStore is the read-only query contract the searcher depends on.
type ComparableStore interface {
	FindListingsNear(ctx context.Context, pos models.Position, radiusKm float64, filter models.ListingFilter) ([]models.Listing, error)
}

// Searcher finds and scores market listings comparable to a subject
// property within a fixed radius.
type Searcher struct {
	store  ComparableStore
	params config.EngineParams
	logger *logrus.Logger
}

func NewSearcher(store ComparableStore, params config.EngineParams, logger *logrus.Logger) *Searcher {
	return &Searcher{
		store:  store,
		params: params,
		logger: logger,
	}
}

// validateSubject rejects queries the engine must not attempt to price.
// A position with zero latitude or longitude is valid; only a nil position
// is a missing coordinate.
func validateSubject(subject models.SubjectQuery, maxRooms int) error {
	if subject.Position == nil {
		return fmt.Errorf("%w: missing coordinates", ErrInvalidInput)
	}
	if subject.AreaTotal <= 0 {
		return fmt.Errorf("%w: non-positive area %.2f", ErrInvalidInput, subject.AreaTotal)
	}
	if subject.Rooms < 0 || subject.Rooms > maxRooms {
		return fmt.Errorf("%w: room count %d out of range", ErrInvalidInput, subject.Rooms)
	}
	return nil
}

// FindComparables returns the filtered comparable set for the subject,
// ordered best match first. Fewer than MinComparables results is not an
// error; the caller decides whether to fall back to the segment grid.
func (s *Searcher) FindComparables(ctx context.Context, subject models.SubjectQuery) ([]models.Comparable, error) {
	if err := validateSubject(subject, s.params.MaxRooms); err != nil {
		return nil, err
	}

	asOf := subject.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	filter := models.ListingFilter{
		DealType:   "sale",
		RoomsMin:   subject.Rooms - 1,
		RoomsMax:   subject.Rooms + 1,
		ActiveOnly: true,
		PricedOnly: true,
	}
	if filter.RoomsMin < 0 {
		filter.RoomsMin = 0
	}

	listings, err := s.store.FindListingsNear(ctx, *subject.Position, s.params.SearchRadiusKm, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: comparable query: %v", ErrDataUnavailable, err)
	}

	candidates := s.buildCandidates(listings, subject, asOf)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Prefer exact room matches; widen to the adjacent band only when the
	// exact set is too thin.
	exact := make([]models.Comparable, 0, len(candidates))
	for _, c := range candidates {
		if c.Rooms == subject.Rooms {
			exact = append(exact, c)
		}
	}
	if len(exact) >= s.params.MinComparables {
		candidates = exact
	}

	result := s.filterBySimilarity(candidates)

	sort.Slice(result, func(i, j int) bool {
		return result[i].SimilarityScore < result[j].SimilarityScore
	})
	return result, nil
}

// buildCandidates materializes comparables from raw listings, applying the
// per-candidate price corrections. Records with missing coordinates or a
// non-positive area are skipped rather than aborting the batch.
func (s *Searcher) buildCandidates(listings []models.Listing, subject models.SubjectQuery, asOf time.Time) []models.Comparable {
	candidates := make([]models.Comparable, 0, len(listings))
	for _, l := range listings {
		if l.Latitude == nil || l.Longitude == nil {
			continue
		}
		if l.AreaTotal <= 0 || l.Price <= 0 {
			s.logger.WithField("listing_id", l.ID).Debug("Skipping listing with invalid price or area")
			continue
		}

		distance := geometry.DistanceKm(*subject.Position, models.Position{
			Latitude:  *l.Latitude,
			Longitude: *l.Longitude,
		})
		if distance > s.params.SearchRadiusKm {
			continue
		}

		c := models.Comparable{
			ListingID:    l.ID,
			Price:        l.Price,
			AreaTotal:    l.AreaTotal,
			Rooms:        l.Rooms,
			Floor:        l.Floor,
			TotalFloors:  l.TotalFloors,
			BuildingType: l.BuildingType,
			FirstSeen:    l.FirstSeen,
			LastSeen:     l.LastSeen,
			DistanceKm:   distance,
			PricePerSqm:  l.Price / l.AreaTotal,
		}
		c.CorrectedPricePerSqm = s.correctedPricePerSqm(c, subject, asOf)
		c.SimilarityScore = s.similarityScore(c, subject)
		candidates = append(candidates, c)
	}
	return candidates
}

// correctedPricePerSqm adjusts a candidate's price per sqm for area
// difference, listing age, and floor position. The area factor subtracts
// for larger candidates; the same sign convention holds everywhere.
func (s *Searcher) correctedPricePerSqm(c models.Comparable, subject models.SubjectQuery, asOf time.Time) float64 {
	corrected := c.PricePerSqm

	areaFactor := 1 - s.params.AreaAdjustmentCoef*(c.AreaTotal-subject.AreaTotal)
	if areaFactor < 0 {
		areaFactor = 0
	}
	corrected *= areaFactor

	corrected *= 1 - s.agingDiscount(c.FirstSeen, asOf)
	corrected *= 1 - s.floorDiscount(c.Floor, c.TotalFloors)
	return corrected
}

// agingDiscount grows linearly with days on market and is clamped at
// MaxAgingDiscount; sellers slow to transact are likely overpriced.
func (s *Searcher) agingDiscount(firstSeen, asOf time.Time) float64 {
	if firstSeen.IsZero() || !asOf.After(firstSeen) {
		return 0
	}
	ageDays := asOf.Sub(firstSeen).Hours() / 24
	return math.Min(s.params.MaxAgingDiscount, ageDays/30*s.params.AgingDiscountPer30d)
}

func (s *Searcher) floorDiscount(floor, totalFloors int) float64 {
	switch {
	case floor == 1:
		return s.params.FirstFloorDiscount
	case totalFloors > 1 && floor == totalFloors:
		return s.params.TopFloorDiscount
	default:
		return 0
	}
}

// floorBand positions a floor within its building: 0 first, 2 top, 1 middle.
func floorBand(floor, totalFloors int) int {
	switch {
	case floor <= 1:
		return 0
	case totalFloors > 1 && floor >= totalFloors:
		return 2
	default:
		return 1
	}
}

// similarityScore is a weighted blend of normalized distance, area
// difference, and floor band difference. Lower is a closer match, and the
// score is monotonic in each factor.
func (s *Searcher) similarityScore(c models.Comparable, subject models.SubjectQuery) float64 {
	distTerm := c.DistanceKm / s.params.SearchRadiusKm

	areaTerm := math.Abs(c.AreaTotal-subject.AreaTotal) / subject.AreaTotal
	if areaTerm > 1 {
		areaTerm = 1
	}

	bandDiff := floorBand(c.Floor, c.TotalFloors) - floorBand(subject.Floor, subject.TotalFloors)
	if bandDiff < 0 {
		bandDiff = -bandDiff
	}
	floorTerm := float64(bandDiff) / 2

	return 0.5*distTerm + 0.3*areaTerm + 0.2*floorTerm
}

// filterBySimilarity cuts candidates whose corrected price per sqm deviates
// too far from the group median. If the cut leaves fewer than
// MinComparables, the nearest excluded candidates are backfilled until
// BackfillTarget comparables are reached or the excluded pool is exhausted.
func (s *Searcher) filterBySimilarity(candidates []models.Comparable) []models.Comparable {
	if len(candidates) == 0 {
		return candidates
	}

	values := make([]float64, len(candidates))
	for i, c := range candidates {
		values[i] = c.CorrectedPricePerSqm
	}
	median := Median(values)

	kept := make([]models.Comparable, 0, len(candidates))
	var excluded []models.Comparable
	for _, c := range candidates {
		if median > 0 && math.Abs(c.CorrectedPricePerSqm-median)/median > s.params.MedianDeviationCut {
			excluded = append(excluded, c)
			continue
		}
		kept = append(kept, c)
	}

	if len(kept) >= s.params.MinComparables {
		return kept
	}

	sort.Slice(excluded, func(i, j int) bool {
		return excluded[i].DistanceKm < excluded[j].DistanceKm
	})
	for _, c := range excluded {
		if len(kept) >= s.params.BackfillTarget {
			break
		}
		c.Backfilled = true
		kept = append(kept, c)
	}

	if len(excluded) > 0 {
		s.logger.WithFields(logrus.Fields{
			"kept":     len(kept),
			"excluded": len(excluded),
		}).Debug("Similarity cut applied")
	}
	return kept
}
