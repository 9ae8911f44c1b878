package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prediction-ledger-api/config"
	"prediction-ledger-api/middleware"
	"prediction-ledger-api/services"
)

type RouterDeps struct {
	DB           *gorm.DB
	Predictions  *services.PredictionService
	Cache        *services.CacheService
	Auth         *services.AuthService // nil leaves read routes open
	CORS         config.CORSConfig
	ModelVersion string
	Log          *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		middleware.Recovery(log),
		middleware.RequestLogger(log, middleware.WithIgnorePath("/health", "/metrics")),
		middleware.Metrics(),
		middleware.SetupCORS(d.CORS),
	)

	router.GET("/health", Health(d.DB, d.Cache, d.ModelVersion))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewPredictionHandler(d.Predictions, log)
	router.POST("/predict", h.Predict)
	router.POST("/update", h.Update)

	protected := router.Group("/", middleware.RequireToken(d.Auth))
	protected.GET("/predictions", h.ListPredictions)
	protected.GET("/predictions/:id", h.GetPrediction)

	router.GET("/ws/live", LiveWebSocket(d.Cache, d.Auth, log))

	return router
}
