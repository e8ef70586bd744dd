package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kvadrat/server/config"
	"kvadrat/server/internal/models"
)

type MockAggregateStore struct {
	mock.Mock
}

func (m *MockAggregateStore) LatestAggregate(ctx context.Context, district, segmentKey string, asOf time.Time) (*models.SegmentAggregate, error) {
	args := m.Called(ctx, district, segmentKey, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SegmentAggregate), args.Error(1)
}

func newTestGrid(store AggregateStore) *GridEstimator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewGridEstimator(store, config.DefaultEngineParams(), logger)
}

func TestGridEstimate_ExactSegmentHit(t *testing.T) {
	store := &MockAggregateStore{}
	segment := NewSegment("brick", 8, 2)

	store.On("LatestAggregate", mock.Anything, "tverskoy", "brick-medium-2", testAsOf).
		Return(&models.SegmentAggregate{
			District:          "tverskoy",
			SegmentKey:        "brick-medium-2",
			MedianPricePerSqm: 210000,
			ListingCount:      14,
			Confidence:        38,
		}, nil)

	agg, err := newTestGrid(store).Estimate(context.Background(), "tverskoy", segment, testAsOf)
	require.NoError(t, err)
	assert.Equal(t, "brick-medium-2", agg.SegmentKey)
	assert.Equal(t, 210000.0, agg.MedianPricePerSqm)

	// Exact hit never widens.
	store.AssertNumberOfCalls(t, "LatestAggregate", 1)
}

func TestGridEstimate_WidensWhenExactKeyMisses(t *testing.T) {
	store := &MockAggregateStore{}
	segment := NewSegment("panel", 14, 3)

	store.On("LatestAggregate", mock.Anything, "arbat", "panel-high-3", testAsOf).
		Return(nil, nil)
	store.On("LatestAggregate", mock.Anything, "arbat", "panel-high", testAsOf).
		Return(&models.SegmentAggregate{
			District:          "arbat",
			SegmentKey:        "panel-high",
			MedianPricePerSqm: 185000,
			Confidence:        30,
		}, nil)

	agg, err := newTestGrid(store).Estimate(context.Background(), "arbat", segment, testAsOf)
	require.NoError(t, err)
	assert.Equal(t, "panel-high", agg.SegmentKey)
	store.AssertExpectations(t)
}

func TestGridEstimate_NoAggregateAfterWidening(t *testing.T) {
	store := &MockAggregateStore{}
	store.On("LatestAggregate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	agg, err := newTestGrid(store).Estimate(context.Background(), "tagansky", NewSegment("wood", 2, 1), testAsOf)
	assert.Nil(t, agg)
	assert.ErrorIs(t, err, ErrNoAggregate)
	store.AssertNumberOfCalls(t, "LatestAggregate", 2)
}

func TestGridEstimate_StoreErrorIsDataUnavailable(t *testing.T) {
	store := &MockAggregateStore{}
	store.On("LatestAggregate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database is locked"))

	agg, err := newTestGrid(store).Estimate(context.Background(), "tverskoy", NewSegment("brick", 8, 2), testAsOf)
	assert.Nil(t, agg)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestGridEstimate_ConfidenceCapped(t *testing.T) {
	store := &MockAggregateStore{}
	store.On("LatestAggregate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.SegmentAggregate{
			District:          "tverskoy",
			SegmentKey:        "brick-medium-2",
			MedianPricePerSqm: 210000,
			Confidence:        90,
		}, nil)

	agg, err := newTestGrid(store).Estimate(context.Background(), "tverskoy", NewSegment("brick", 8, 2), testAsOf)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEngineParams().GridConfidenceCap, agg.Confidence)
}
