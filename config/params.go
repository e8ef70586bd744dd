package config

// EngineParams holds the correction coefficients and thresholds used by the
// valuation engine. They are passed in at construction so tests can vary
// them per case instead of patching globals.
type EngineParams struct {
	// Radius around the subject within which comparables are considered
	SearchRadiusKm float64

	// Price-per-sqm adjustment per m2 of area difference
	AreaAdjustmentCoef float64

	// Minimum comparables required for the KNN path
	MinComparables int

	// Target comparable count when backfilling after the similarity cut
	BackfillTarget int

	// Aging discount accrued per 30 days on market
	AgingDiscountPer30d float64

	// Upper bound on the aging discount
	MaxAgingDiscount float64

	// First and top floor price discounts
	FirstFloorDiscount float64
	TopFloorDiscount   float64

	// Flat discount applied to the bottom-3 mean, modeling negotiation
	NegotiationDiscount float64

	// IQR multiplier for outlier bounds
	IQRMultiplier float64

	// Maximum relative deviation from the group median price-per-sqm
	// before a candidate is cut as dissimilar
	MedianDeviationCut float64

	// Ceiling on confidence for grid-only estimates
	GridConfidenceCap int

	// Maximum room count accepted in a subject query
	MaxRooms int
}

func DefaultEngineParams() EngineParams {
	return EngineParams{
		SearchRadiusKm:      2.0,
		AreaAdjustmentCoef:  0.001,
		MinComparables:      3,
		BackfillTarget:      5,
		AgingDiscountPer30d: 0.01,
		MaxAgingDiscount:    0.03,
		FirstFloorDiscount:  0.05,
		TopFloorDiscount:    0.02,
		NegotiationDiscount: 0.07,
		IQRMultiplier:       1.5,
		MedianDeviationCut:  0.25,
		GridConfidenceCap:   45,
		MaxRooms:            10,
	}
}
