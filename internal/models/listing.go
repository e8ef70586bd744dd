package models

import "time"

// Position is a geographic coordinate pair. A zero latitude or longitude is
// a valid value; absence is expressed by a nil *Position.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Listing struct {
	ID           int64     `json:"id" gorm:"column:id;primaryKey"`
	URL          string    `json:"url" gorm:"column:url"`
	District     string    `json:"district" gorm:"column:district"`
	Latitude     *float64  `json:"latitude" gorm:"column:latitude"`
	Longitude    *float64  `json:"longitude" gorm:"column:longitude"`
	Price        float64   `json:"price" gorm:"column:price"`
	AreaTotal    float64   `json:"area_total" gorm:"column:area_total"`
	Rooms        int       `json:"rooms" gorm:"column:rooms"`
	Floor        int       `json:"floor" gorm:"column:floor"`
	TotalFloors  int       `json:"total_floors" gorm:"column:total_floors"`
	BuildingType string    `json:"building_type" gorm:"column:building_type"`
	DealType     string    `json:"deal_type" gorm:"column:deal_type"`
	Status       string    `json:"status" gorm:"column:status"`
	PricePoints  int       `json:"price_points" gorm:"-"`
	FirstSeen    time.Time `json:"first_seen" gorm:"column:first_seen"`
	LastSeen     time.Time `json:"last_seen" gorm:"column:last_seen"`
}

func (Listing) TableName() string {
	return "listings"
}

// ListingFilter narrows a spatial listing query.
type ListingFilter struct {
	DealType    string
	RoomsMin    int
	RoomsMax    int
	ActiveOnly  bool
	PricedOnly  bool // require at least one price history entry
}

type DistrictStats struct {
	District       string  `json:"district"`
	ListingCount   int     `json:"listing_count"`
	AveragePrice   float64 `json:"average_price"`
	MedianPrice    float64 `json:"median_price"`
	AvgPricePerSqm float64 `json:"avg_price_per_sqm"`
}
