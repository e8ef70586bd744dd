package database

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kvadrat/server/internal/models"
)

// UpsertListings writes a batch of listings inside the given transaction,
// keyed on URL, and appends a price history point for every priced row.
func UpsertListings(tx *gorm.DB, batch []*models.Listing) error {
	if len(batch) == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"district", "latitude", "longitude", "price", "area_total",
			"rooms", "floor", "total_floors", "building_type", "deal_type",
			"status", "last_seen",
		}),
	}).Create(&batch).Error
	if err != nil {
		return fmt.Errorf("failed to upsert listings: %w", err)
	}

	for _, l := range batch {
		if l.Price <= 0 {
			continue
		}
		err := tx.Exec(`
			INSERT INTO price_history (listing_id, price, observed_at)
			SELECT id, ?, ? FROM listings WHERE url = ?
		`, l.Price, l.LastSeen, l.URL).Error
		if err != nil {
			return fmt.Errorf("failed to record price point: %w", err)
		}
	}
	return nil
}
