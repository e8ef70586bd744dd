package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Server configuration
	Server struct {
		// Port the HTTP API listens on
		Port string `env:"SERVER_PORT" envDefault:"5250"`

		// Allowed CORS origins, comma separated
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	}

	// Database configuration
	Database struct {
		// Path to the SQLite database file
		Path string `env:"DATABASE_PATH" envDefault:"database/kvadrat.db"`
	}

	// Ingest configuration for the listing batch pipeline
	Ingest struct {
		// Maximum number of listings to accumulate before processing
		MaxBatchSize int `env:"INGEST_MAX_BATCH_SIZE" envDefault:"100"`

		// Queue buffer size in batches
		QueueSize int `env:"INGEST_QUEUE_SIZE" envDefault:"50"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"INGEST_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"INGEST_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"INGEST_RETRY_DELAY" envDefault:"5"`
	}

	// Aggregates configuration for the segment grid refresh job
	Aggregates struct {
		// Hour of day (local time) for the scheduled refresh
		RefreshHour int `env:"AGGREGATES_REFRESH_HOUR" envDefault:"2"`

		// Maximum number of retries for a failed refresh
		MaxRetries int `env:"AGGREGATES_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"AGGREGATES_RETRY_DELAY" envDefault:"10"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
