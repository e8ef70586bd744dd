package valuation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kvadrat/server/config"
	"kvadrat/server/internal/models"
)

// MockSearcher is a mock implementation of the comparable finder
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) FindComparables(ctx context.Context, subject models.SubjectQuery) ([]models.Comparable, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comparable), args.Error(1)
}

// MockGrid is a mock implementation of the grid source
type MockGrid struct {
	mock.Mock
}

func (m *MockGrid) Estimate(ctx context.Context, district string, segment Segment, asOf time.Time) (*models.SegmentAggregate, error) {
	args := m.Called(ctx, district, segment, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SegmentAggregate), args.Error(1)
}

func newTestEngine(searcher comparableFinder, grid gridSource) *Engine {
	return NewEngine(searcher, grid, config.DefaultEngineParams(), logrus.New())
}

func clusteredComparables(n int, center float64) []models.Comparable {
	comparables := make([]models.Comparable, n)
	for i := 0; i < n; i++ {
		// Spread of +-1000 per step around the center
		offset := float64(i-n/2) * 1000
		comparables[i] = models.Comparable{
			ListingID:            int64(i + 1),
			CorrectedPricePerSqm: center + offset,
			PricePerSqm:          center + offset,
			DistanceKm:           0.5,
		}
	}
	return comparables
}

func TestEstimate_KNNPathEndToEnd(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}
	comparables := clusteredComparables(5, 195000)
	searcher.On("FindComparables", mock.Anything, mock.Anything).Return(comparables, nil)

	engine := newTestEngine(searcher, grid)
	result, err := engine.Estimate(context.Background(), testSubject())
	require.NoError(t, err)

	// Bottom-3 cohort of [193000, 194000, 195000] averaged, 7% discount
	expected := 194000.0 * 0.93 * 65
	assert.InDelta(t, expected, result.Price, 1.0)
	assert.Equal(t, "knn", result.Source)
	assert.NotEmpty(t, result.District)
	assert.Len(t, result.Comparables, 5)

	// Tight cluster of five close comparables lands in the top tier
	assert.GreaterOrEqual(t, result.Confidence, 70)
	assert.InDelta(t, result.Price*0.95, result.PriceLow, 1.0)
	assert.InDelta(t, result.Price*1.05, result.PriceHigh, 1.0)

	// The grid must not be consulted when KNN succeeds
	grid.AssertNotCalled(t, "Estimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstimate_ExactlyMinComparablesUsesKNN(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}
	searcher.On("FindComparables", mock.Anything, mock.Anything).
		Return(clusteredComparables(3, 200000), nil)

	engine := newTestEngine(searcher, grid)
	result, err := engine.Estimate(context.Background(), testSubject())
	require.NoError(t, err)

	assert.Equal(t, "knn", result.Source)
	grid.AssertNotCalled(t, "Estimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEstimate_FallsBackToGrid(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}
	searcher.On("FindComparables", mock.Anything, mock.Anything).
		Return(clusteredComparables(2, 200000), nil)
	grid.On("Estimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.SegmentAggregate{
			District:          "tverskoy",
			SegmentKey:        "panel-high-2",
			MedianPricePerSqm: 190000,
			Confidence:        40,
		}, nil)

	engine := newTestEngine(searcher, grid)
	result, err := engine.Estimate(context.Background(), testSubject())
	require.NoError(t, err)

	assert.Equal(t, "grid", result.Source)
	assert.InDelta(t, 190000*65, result.Price, 1.0)
	assert.Equal(t, 40, result.Confidence)
	assert.Equal(t, "panel-high-2", result.Segment)
	assert.Empty(t, result.Comparables)

	// Grid confidence sits below 50, so the widest tier applies
	assert.InDelta(t, result.Price*0.85, result.PriceLow, 1.0)
	assert.InDelta(t, result.Price*1.15, result.PriceHigh, 1.0)
}

func TestEstimate_InsufficientData(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}
	searcher.On("FindComparables", mock.Anything, mock.Anything).Return([]models.Comparable{}, nil)
	grid.On("Estimate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, ErrNoAggregate)

	engine := newTestEngine(searcher, grid)
	result, err := engine.Estimate(context.Background(), testSubject())
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Nil(t, result)
}

func TestEstimate_DataUnavailablePropagates(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}
	searcher.On("FindComparables", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: comparable query: timeout", ErrDataUnavailable))

	engine := newTestEngine(searcher, grid)
	_, err := engine.Estimate(context.Background(), testSubject())
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestEstimate_InvalidInputRejectedBeforeSearch(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}

	engine := newTestEngine(searcher, grid)
	subject := testSubject()
	subject.Position = nil

	_, err := engine.Estimate(context.Background(), subject)
	assert.ErrorIs(t, err, ErrInvalidInput)
	searcher.AssertNotCalled(t, "FindComparables", mock.Anything, mock.Anything)
}

func TestEstimate_ZeroCoordinateProceeds(t *testing.T) {
	searcher := &MockSearcher{}
	grid := &MockGrid{}
	searcher.On("FindComparables", mock.Anything, mock.Anything).
		Return(clusteredComparables(3, 200000), nil)

	engine := newTestEngine(searcher, grid)
	subject := testSubject()
	subject.Position = &models.Position{Latitude: 0, Longitude: 0}

	result, err := engine.Estimate(context.Background(), subject)
	require.NoError(t, err)
	assert.Greater(t, result.Price, 0.0)
}

func TestRejectOutliers(t *testing.T) {
	engine := newTestEngine(&MockSearcher{}, &MockGrid{})

	comparables := clusteredComparables(8, 200000)
	comparables = append(comparables, models.Comparable{
		ListingID:            99,
		CorrectedPricePerSqm: 900000,
	})

	kept := engine.rejectOutliers(comparables)
	assert.Len(t, kept, 8)
	for _, c := range kept {
		assert.NotEqual(t, int64(99), c.ListingID)
	}

	// Never returns more than the input
	all := engine.rejectOutliers(clusteredComparables(5, 200000))
	assert.Len(t, all, 5)

	assert.Empty(t, engine.rejectOutliers(nil))
}

func TestConfidence_Monotonicity(t *testing.T) {
	engine := newTestEngine(&MockSearcher{}, &MockGrid{})

	// More comparables raise confidence
	conf3 := engine.confidence(clusteredComparables(3, 200000))
	conf5 := engine.confidence(clusteredComparables(5, 200000))
	conf8 := engine.confidence(clusteredComparables(8, 200000))
	assert.LessOrEqual(t, conf3, conf5)
	assert.LessOrEqual(t, conf5, conf8)

	// Higher dispersion lowers confidence
	tight := clusteredComparables(5, 200000)
	loose := make([]models.Comparable, 5)
	copy(loose, tight)
	for i := range loose {
		loose[i].CorrectedPricePerSqm = 200000 + float64(i-2)*40000
	}
	assert.Greater(t, engine.confidence(tight), engine.confidence(loose))

	// Farther comparables lower confidence
	far := clusteredComparables(5, 200000)
	for i := range far {
		far[i].DistanceKm = 1.9
	}
	assert.Greater(t, engine.confidence(tight), engine.confidence(far))

	assert.Equal(t, 0, engine.confidence(nil))
}

func TestPriceRange_Tiers(t *testing.T) {
	engine := newTestEngine(&MockSearcher{}, &MockGrid{})

	tests := []struct {
		confidence int
		pct        float64
	}{
		{100, 0.05},
		{70, 0.05}, // inclusive lower boundary
		{69, 0.10},
		{50, 0.10}, // inclusive lower boundary
		{49, 0.15},
		{0, 0.15},
	}

	for _, tt := range tests {
		low, high := engine.priceRange(10000000, tt.confidence)
		assert.InDelta(t, 10000000*(1-tt.pct), low, 1e-6, "confidence=%d", tt.confidence)
		assert.InDelta(t, 10000000*(1+tt.pct), high, 1e-6, "confidence=%d", tt.confidence)
	}
}

func TestPriceRange_OrderingHolds(t *testing.T) {
	engine := newTestEngine(&MockSearcher{}, &MockGrid{})

	for _, confidence := range []int{0, 30, 50, 65, 70, 95} {
		low, high := engine.priceRange(12345678, confidence)
		assert.Less(t, low, 12345678.0)
		assert.Greater(t, high, 12345678.0)
	}
}
