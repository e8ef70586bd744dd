package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kvadrat/server/config"
	"kvadrat/server/internal/database"
	"kvadrat/server/internal/models"
	"kvadrat/server/internal/queue"
	"kvadrat/server/internal/valuation"
)

// Estimator values a subject property
type Estimator interface {
	Estimate(ctx context.Context, subject models.SubjectQuery) (*models.ValuationResult, error)
}

// Refresher rebuilds the segment aggregates on demand
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Handler struct {
	db        *database.Database
	engine    Estimator
	queue     *queue.ListingQueue
	refresher Refresher
	cfg       *config.Config
	logger    *logrus.Logger
}

type EstimateRequest struct {
	Lat          *float64 `json:"lat" binding:"required"`
	Lon          *float64 `json:"lon" binding:"required"`
	AreaTotal    float64  `json:"area_total" binding:"required"`
	Rooms        *int     `json:"rooms" binding:"required"`
	Floor        int      `json:"floor"`
	TotalFloors  int      `json:"total_floors"`
	BuildingType string   `json:"building_type"`
}

type ListingFilters struct {
	District string `form:"district"`
	Status   string `form:"status"`
}

func NewHandler(db *database.Database, engine Estimator, queue *queue.ListingQueue, refresher Refresher, cfg *config.Config, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		db:        db,
		engine:    engine,
		queue:     queue,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Estimate values a subject property from comparable listings
func (h *Handler) Estimate(c *gin.Context) {
	var req EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse estimate request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	subject := models.SubjectQuery{
		Position: &models.Position{
			Latitude:  *req.Lat,
			Longitude: *req.Lon,
		},
		AreaTotal:    req.AreaTotal,
		Rooms:        *req.Rooms,
		Floor:        req.Floor,
		TotalFloors:  req.TotalFloors,
		BuildingType: req.BuildingType,
		AsOf:         time.Now(),
	}

	result, err := h.engine.Estimate(c.Request.Context(), subject)
	if err != nil {
		h.respondEstimateError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondEstimateError maps the valuation error taxonomy onto HTTP statuses
func (h *Handler) respondEstimateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, valuation.ErrInvalidInput):
		h.logger.WithError(err).Warn("Rejected estimate request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, valuation.ErrInsufficientData):
		h.logger.WithError(err).Info("No data to price subject")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Not enough market data to estimate; try broader criteria"})
	case errors.Is(err, valuation.ErrDataUnavailable):
		h.logger.WithError(err).Error("Listing store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Market data temporarily unavailable"})
	default:
		h.logger.WithError(err).Error("Estimate failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to estimate"})
	}
}

// GetListings returns listings filtered by district and status
func (h *Handler) GetListings(c *gin.Context) {
	var filters ListingFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		h.logger.WithError(err).Error("Failed to parse listing filters")
	}

	listings, err := h.db.GetListings(c.Request.Context(), filters.District, filters.Status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}

	c.JSON(http.StatusOK, listings)
}

// IngestListings queues a batch of listings for upsert
func (h *Handler) IngestListings(c *gin.Context) {
	var batch []*models.Listing
	if err := c.ShouldBindJSON(&batch); err != nil {
		h.logger.WithError(err).Error("Failed to parse listing batch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing batch"})
		return
	}
	if len(batch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty listing batch"})
		return
	}
	if limit := h.cfg.Ingest.MaxBatchSize; limit > 0 && len(batch) > limit {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Listing batch exceeds maximum size of %d", limit)})
		return
	}

	if err := h.queue.Push(batch); err != nil {
		h.logger.WithError(err).Error("Failed to enqueue listing batch")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingest queue unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"listings": len(batch),
	})
}

// GetDistrictStats returns price statistics for a district
func (h *Handler) GetDistrictStats(c *gin.Context) {
	district := c.Param("code")
	if config.GetDistrictByCode(district) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown district"})
		return
	}

	stats, err := h.db.GetDistrictStats(c.Request.Context(), district)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get district stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get district stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RefreshAggregates triggers a segment grid rebuild
func (h *Handler) RefreshAggregates(c *gin.Context) {
	if err := h.refresher.Refresh(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to refresh aggregates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh aggregates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "Aggregates refreshed successfully",
	})
}

// Health reports service liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
