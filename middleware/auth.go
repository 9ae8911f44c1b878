package middleware

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"prediction-ledger-api/services"
)

const ClaimsKey = "claims"

var errBadAuthorization = errors.New("authorization header must be \"Bearer <token>\"")

// ParseBearer extracts the token from an Authorization header. An absent
// header yields an empty token and no error.
func ParseBearer(header http.Header) (string, error) {
	value := strings.TrimSpace(header.Get("Authorization"))
	if value == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errBadAuthorization
	}
	return strings.TrimSpace(token), nil
}

// RequireToken rejects requests without a valid operator token. A nil auth
// service leaves the route open.
func RequireToken(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			c.Next()
			return
		}

		token, err := ParseBearer(c.Request.Header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}
