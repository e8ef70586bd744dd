package main

import (
	"os"
	"path/filepath"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kvadrat/server/config"
	"kvadrat/server/internal/aggregates"
	"kvadrat/server/internal/api"
	"kvadrat/server/internal/database"
	"kvadrat/server/internal/processor"
	"kvadrat/server/internal/queue"
	"kvadrat/server/internal/scheduler"
	"kvadrat/server/internal/valuation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	params := config.DefaultEngineParams()

	dbPath := cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", dbPath)

	// Initialize database
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// gorm handle over the same connection pool for the ingest and
	// aggregate paths
	gormDB, err := gorm.Open(&sqlite.Dialector{Conn: db.GetDB()}, &gorm.Config{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize gorm")
	}

	// Ingest pipeline
	listingQueue := queue.NewListingQueue(cfg.Ingest.QueueSize, logger)
	batchProcessor := processor.NewBatchProcessor(gormDB, listingQueue, cfg, logger)
	listingQueue.Start()
	batchProcessor.Start()
	defer batchProcessor.Stop()

	// Segment grid refresh
	refresher := aggregates.NewRefresher(gormDB, cfg, params, logger)
	refreshScheduler := scheduler.NewScheduler(refresher, cfg, logger)
	refreshScheduler.Start()
	defer refreshScheduler.Stop()

	// Valuation engine
	searcher := valuation.NewSearcher(db, params, logger)
	grid := valuation.NewGridEstimator(db, params, logger)
	engine := valuation.NewEngine(searcher, grid, params, logger)

	// HTTP API
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	handler := api.NewHandler(db, engine, listingQueue, refresher, cfg, logger)
	api.SetupRoutes(router, handler)

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
