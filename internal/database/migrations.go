package database

func (d *Database) RunMigrations() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT UNIQUE NOT NULL,
			district TEXT,
			latitude REAL,
			longitude REAL,
			price REAL,
			area_total REAL,
			rooms INTEGER,
			floor INTEGER,
			total_floors INTEGER,
			building_type TEXT,
			deal_type TEXT DEFAULT 'sale',
			status TEXT DEFAULT 'active',
			first_seen TIMESTAMP,
			last_seen TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			listing_id INTEGER NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			price REAL NOT NULL,
			observed_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS multidim_aggregates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			district TEXT NOT NULL,
			segment TEXT NOT NULL,
			date DATE NOT NULL,
			mean_ppsqm REAL,
			median_ppsqm REAL,
			min_price REAL,
			max_price REAL,
			area_mean REAL,
			price_stddev REAL,
			listing_count INTEGER,
			confidence INTEGER
		);
	`)
	if err != nil {
		return err
	}

	// Spatial index on coordinates
	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listings_coordinates
		ON listings(latitude, longitude);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_price_history_listing
		ON price_history(listing_id);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_aggregates_lookup
		ON multidim_aggregates(district, segment, date);
	`)
	if err != nil {
		return err
	}

	return nil
}
