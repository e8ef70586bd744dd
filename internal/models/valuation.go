package models

import "time"

// SubjectQuery describes the property being valued.
type SubjectQuery struct {
	Position     *Position `json:"position"`
	AreaTotal    float64   `json:"area_total"`
	Rooms        int       `json:"rooms"`
	Floor        int       `json:"floor"`
	TotalFloors  int       `json:"total_floors"`
	BuildingType string    `json:"building_type"`
	AsOf         time.Time `json:"as_of"`
}

// Comparable is a market listing scored against a subject. It is materialized
// per request and never persisted.
type Comparable struct {
	ListingID            int64     `json:"listing_id"`
	Price                float64   `json:"price"`
	AreaTotal            float64   `json:"area_total"`
	Rooms                int       `json:"rooms"`
	Floor                int       `json:"floor"`
	TotalFloors          int       `json:"total_floors"`
	BuildingType         string    `json:"building_type"`
	FirstSeen            time.Time `json:"first_seen"`
	LastSeen             time.Time `json:"last_seen"`
	DistanceKm           float64   `json:"distance_km"`
	PricePerSqm          float64   `json:"price_per_sqm"`
	CorrectedPricePerSqm float64   `json:"corrected_price_per_sqm"`
	SimilarityScore      float64   `json:"similarity_score"`
	Backfilled           bool      `json:"backfilled"`
}

// SegmentAggregate is a precomputed statistics row for a
// (district, segment, date) bucket.
type SegmentAggregate struct {
	ID                int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	District          string    `json:"district" gorm:"column:district"`
	SegmentKey        string    `json:"segment" gorm:"column:segment"`
	Date              string    `json:"date" gorm:"column:date"` // YYYY-MM-DD
	MeanPricePerSqm   float64   `json:"mean_price_per_sqm" gorm:"column:mean_ppsqm"`
	MedianPricePerSqm float64   `json:"median_price_per_sqm" gorm:"column:median_ppsqm"`
	MinPrice          float64   `json:"min_price" gorm:"column:min_price"`
	MaxPrice          float64   `json:"max_price" gorm:"column:max_price"`
	AreaMean          float64   `json:"area_mean" gorm:"column:area_mean"`
	PriceStddev       float64   `json:"price_stddev" gorm:"column:price_stddev"`
	ListingCount      int       `json:"listing_count" gorm:"column:listing_count"`
	Confidence        int       `json:"confidence" gorm:"column:confidence"`
}

func (SegmentAggregate) TableName() string {
	return "multidim_aggregates"
}

// ValuationResult is the engine's answer for one subject.
type ValuationResult struct {
	Price       float64      `json:"price"`
	PriceLow    float64      `json:"price_low"`
	PriceHigh   float64      `json:"price_high"`
	Confidence  int          `json:"confidence"`
	Source      string       `json:"source"`
	District    string       `json:"district"`
	Segment     string       `json:"segment"`
	Comparables []Comparable `json:"comparables"`
}
