package handlers

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"prediction-ledger-api/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type PaginationParams struct {
	Limit      int
	Before     uint
	Reconciled *bool
}

type CursorResponse struct {
	Data       []models.PredictionRecord `json:"data"`
	NextCursor string                    `json:"next_cursor,omitempty"`
	HasMore    bool                      `json:"has_more"`
}

// ParsePagination reads limit, before and reconciled. An out of range limit
// is clamped; a malformed cursor or filter is an error.
func ParsePagination(c *gin.Context) (PaginationParams, error) {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = l
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		before, err := strconv.ParseUint(beforeStr, 10, 0)
		if err != nil || before == 0 {
			return p, errors.Newf("invalid before cursor %q", beforeStr)
		}
		p.Before = uint(before)
	}

	if recStr := c.Query("reconciled"); recStr != "" {
		reconciled, err := strconv.ParseBool(recStr)
		if err != nil {
			return p, errors.Newf("invalid reconciled filter %q", recStr)
		}
		p.Reconciled = &reconciled
	}

	return p, nil
}

// NewCursorResponse trims a limit+1 page and derives the next cursor.
func NewCursorResponse(rows []models.PredictionRecord, limit int) CursorResponse {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []models.PredictionRecord{}
	}

	resp := CursorResponse{Data: rows, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		resp.NextCursor = strconv.FormatUint(uint64(rows[len(rows)-1].ID), 10)
	}
	return resp
}
