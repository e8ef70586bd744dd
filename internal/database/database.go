package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"kvadrat/server/internal/geometry"
	"kvadrat/server/internal/models"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// FindListingsNear returns listings within radiusKm of pos matching the
// filter. A bounding box narrows the SQL scan; the exact haversine check
// runs on the loaded rows.
func (d *Database) FindListingsNear(ctx context.Context, pos models.Position, radiusKm float64, filter models.ListingFilter) ([]models.Listing, error) {
	latMin, latMax, lonMin, lonMax := geometry.BoundAroundPoint(pos, radiusKm)

	query := `
        SELECT
            l.id,
            l.url,
            l.district,
            l.latitude,
            l.longitude,
            l.price,
            l.area_total,
            l.rooms,
            l.floor,
            l.total_floors,
            l.building_type,
            l.deal_type,
            l.status,
            COALESCE(l.first_seen, ''),
            COALESCE(l.last_seen, ''),
            (SELECT COUNT(*) FROM price_history ph WHERE ph.listing_id = l.id) AS price_points
        FROM listings l
        WHERE l.latitude IS NOT NULL
          AND l.longitude IS NOT NULL
          AND l.latitude BETWEEN ? AND ?
          AND l.longitude BETWEEN ? AND ?
          AND l.rooms BETWEEN ? AND ?
          AND l.price > 0
          AND (? = '' OR l.deal_type = ?)
          AND (? = 0 OR l.status = 'active')
          AND (? = 0 OR EXISTS (SELECT 1 FROM price_history ph WHERE ph.listing_id = l.id))
    `
	activeOnly := 0
	if filter.ActiveOnly {
		activeOnly = 1
	}
	pricedOnly := 0
	if filter.PricedOnly {
		pricedOnly = 1
	}

	rows, err := d.db.QueryContext(ctx, query,
		latMin, latMax,
		lonMin, lonMax,
		filter.RoomsMin, filter.RoomsMax,
		filter.DealType, filter.DealType,
		activeOnly,
		pricedOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}

		listingPos := models.Position{Latitude: *l.Latitude, Longitude: *l.Longitude}
		if geometry.DistanceKm(pos, listingPos) > radiusKm {
			continue
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func scanListing(rows *sql.Rows) (*models.Listing, error) {
	var l models.Listing
	var district, buildingType, dealType, status sql.NullString
	var firstSeen, lastSeen string
	var latitude, longitude sql.NullFloat64
	var price, areaTotal sql.NullFloat64
	var numRooms, floor, totalFloors, pricePoints sql.NullInt64

	err := rows.Scan(
		&l.ID,
		&l.URL,
		&district,
		&latitude,
		&longitude,
		&price,
		&areaTotal,
		&numRooms,
		&floor,
		&totalFloors,
		&buildingType,
		&dealType,
		&status,
		&firstSeen,
		&lastSeen,
		&pricePoints,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}

	if district.Valid {
		l.District = district.String
	}
	if buildingType.Valid {
		l.BuildingType = buildingType.String
	}
	if dealType.Valid {
		l.DealType = dealType.String
	}
	if status.Valid {
		l.Status = status.String
	}
	if price.Valid {
		l.Price = price.Float64
	}
	if areaTotal.Valid {
		l.AreaTotal = areaTotal.Float64
	}
	if numRooms.Valid {
		l.Rooms = int(numRooms.Int64)
	}
	if floor.Valid {
		l.Floor = int(floor.Int64)
	}
	if totalFloors.Valid {
		l.TotalFloors = int(totalFloors.Int64)
	}
	if pricePoints.Valid {
		l.PricePoints = int(pricePoints.Int64)
	}
	if latitude.Valid {
		lat := latitude.Float64
		l.Latitude = &lat
	}
	if longitude.Valid {
		lon := longitude.Float64
		l.Longitude = &lon
	}
	l.FirstSeen = parseTimestamp(firstSeen)
	l.LastSeen = parseTimestamp(lastSeen)
	return &l, nil
}

// parseTimestamp handles both RFC3339 and the sqlite driver's own timestamp
// string; the ingest paths write one or the other.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// LatestAggregate returns the most recent aggregate row for the
// (district, segment) pair at or before asOf, or nil when none exists.
func (d *Database) LatestAggregate(ctx context.Context, district, segmentKey string, asOf time.Time) (*models.SegmentAggregate, error) {
	var agg models.SegmentAggregate

	err := d.db.QueryRowContext(ctx, `
        SELECT id, district, segment, date, mean_ppsqm, median_ppsqm,
               min_price, max_price, area_mean, price_stddev, listing_count, confidence
        FROM multidim_aggregates
        WHERE district = ? AND segment = ? AND date <= ?
        ORDER BY date DESC
        LIMIT 1
    `, district, segmentKey, asOf.Format("2006-01-02")).Scan(
		&agg.ID,
		&agg.District,
		&agg.SegmentKey,
		&agg.Date,
		&agg.MeanPricePerSqm,
		&agg.MedianPricePerSqm,
		&agg.MinPrice,
		&agg.MaxPrice,
		&agg.AreaMean,
		&agg.PriceStddev,
		&agg.ListingCount,
		&agg.Confidence,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate: %w", err)
	}
	return &agg, nil
}

// GetListings returns listings filtered by district and status.
func (d *Database) GetListings(ctx context.Context, district, status string) ([]models.Listing, error) {
	query := `
        SELECT
            l.id, l.url, l.district, l.latitude, l.longitude, l.price,
            l.area_total, l.rooms, l.floor, l.total_floors, l.building_type,
            l.deal_type, l.status,
            COALESCE(l.first_seen, ''), COALESCE(l.last_seen, ''),
            (SELECT COUNT(*) FROM price_history ph WHERE ph.listing_id = l.id)
        FROM listings l
        WHERE (? = '' OR l.district = ?)
          AND (? = '' OR l.status = ?)
        ORDER BY l.last_seen DESC
    `
	rows, err := d.db.QueryContext(ctx, query, district, district, status, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// GetDistrictStats returns headline price statistics for a district's
// active listings.
func (d *Database) GetDistrictStats(ctx context.Context, district string) (models.DistrictStats, error) {
	stats := models.DistrictStats{District: district}

	err := d.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(AVG(price), 0),
            COALESCE(AVG(CAST(price AS FLOAT) / NULLIF(area_total, 0)), 0)
        FROM listings
        WHERE district = ? AND status = 'active' AND price > 0
    `, district).Scan(&stats.ListingCount, &stats.AveragePrice, &stats.AvgPricePerSqm)
	if err != nil {
		return stats, fmt.Errorf("failed to query district stats: %w", err)
	}

	if stats.ListingCount == 0 {
		return stats, nil
	}

	err = d.db.QueryRowContext(ctx, `
        SELECT price
        FROM listings
        WHERE district = ? AND status = 'active' AND price > 0
        ORDER BY price
        LIMIT 1 OFFSET ?
    `, district, stats.ListingCount/2).Scan(&stats.MedianPrice)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("failed to query median price: %w", err)
	}

	return stats, nil
}

// GetDB exposes the underlying connection pool so the gorm-based write
// paths can share it instead of opening a second handle.
func (d *Database) GetDB() *sql.DB {
	return d.db
}

func (d *Database) Close() error {
	return d.db.Close()
}
