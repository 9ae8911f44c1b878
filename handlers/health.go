package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"prediction-ledger-api/services"
)

// Health reports UP when the ledger database answers a ping. Redis is
// reported but never fails the check.
func Health(db *gorm.DB, cache *services.CacheService, modelVersion string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "UP", http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil {
			dbStatus = err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = err.Error()
		}
		if dbStatus != "ok" {
			status, code = "DOWN", http.StatusServiceUnavailable
		}

		redisStatus := "disabled"
		if cache.Available() {
			redisStatus = "ok"
			if err := cache.Client().Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}

		c.JSON(code, gin.H{
			"status":        status,
			"database":      dbStatus,
			"redis":         redisStatus,
			"model_version": modelVersion,
		})
	}
}
