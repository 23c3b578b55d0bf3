package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockwave/handlers"
)

func SetupRoutes(router *gin.Engine, corsOrigins []string, forecastHandler *handlers.ForecastHandler, marketHandler *handlers.MarketHandler) {
	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "stockwave-api",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/predict", forecastHandler.HandlePredict)
	api.GET("/forecast", forecastHandler.HandleForecast)
	api.GET("/trending", marketHandler.HandleTrending)
	api.GET("/top_losers", marketHandler.HandleTopLosers)
	api.GET("/search", marketHandler.HandleSearch)
	api.GET("/company", marketHandler.HandleCompany)
}
