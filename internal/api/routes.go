package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.POST("/estimate", handler.Estimate)
		api.GET("/listings", handler.GetListings)
		api.POST("/listings", handler.IngestListings)
		api.GET("/districts/:code/stats", handler.GetDistrictStats)
		api.POST("/refresh-aggregates", handler.RefreshAggregates)
		api.GET("/health", handler.Health)
	}
}
