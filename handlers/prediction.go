package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prediction-ledger-api/ledger"
	"prediction-ledger-api/metrics"
	"prediction-ledger-api/models"
	"prediction-ledger-api/schema"
	"prediction-ledger-api/services"
)

type PredictionHandler struct {
	svc *services.PredictionService
	log *zap.Logger
}

func NewPredictionHandler(svc *services.PredictionService, log *zap.Logger) *PredictionHandler {
	return &PredictionHandler{svc: svc, log: log}
}

type PredictRequest struct {
	ID          *models.ObservationID `json:"id"`
	Observation json.RawMessage       `json:"observation"`
}

type UpdateRequest struct {
	ID        *models.ObservationID `json:"id" binding:"required"`
	TrueClass *int64                `json:"true_class" binding:"required"`
}

type PredictResponse struct {
	Proba float64 `json:"proba"`
	Error string  `json:"error,omitempty"`
}

func alreadyExists(id models.ObservationID) string {
	return fmt.Sprintf("Observation ID: %q already exists", id.String())
}

func doesNotExist(id models.ObservationID) string {
	return fmt.Sprintf("Observation ID: %q does not exist", id.String())
}

// Predict scores an observation and records it under its identifier. The raw
// request body is stored alongside the probability.
func (h *PredictionHandler) Predict(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req PredictRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if req.ID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	id := *req.ID
	if len(req.Observation) == 0 || bytes.Equal(bytes.TrimSpace(req.Observation), []byte("null")) {
		c.JSON(http.StatusBadRequest, gin.H{"observation_id": id, "error": "observation is required"})
		return
	}

	var payload schema.Payload
	if err := json.Unmarshal(req.Observation, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"observation_id": id, "error": coercionMessage(err)})
		return
	}

	res, err := h.svc.Score(c.Request.Context(), id, string(raw), payload)
	if err != nil {
		var ce *schema.CoercionError
		if errors.As(err, &ce) {
			c.JSON(http.StatusBadRequest, gin.H{"observation_id": id, "error": ce.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"observation_id": id, "error": "failed to score observation"})
		return
	}

	resp := PredictResponse{Proba: res.Proba}
	if res.Duplicate {
		resp.Error = alreadyExists(id)
	}
	c.JSON(http.StatusOK, resp)
}

// Update reconciles a recorded prediction with its true class.
func (h *PredictionHandler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := *req.ID

	rec, err := h.svc.Reconcile(c.Request.Context(), id, *req.TrueClass, metrics.SourceHTTP)
	if err != nil {
		h.writeLedgerError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	id := models.ObservationID(c.Param("id"))

	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeLedgerError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *PredictionHandler) ListPredictions(c *gin.Context) {
	p, err := ParsePagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.svc.List(c.Request.Context(), ledger.ListParams{
		Limit:      p.Limit + 1,
		Before:     p.Before,
		Reconciled: p.Reconciled,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	c.JSON(http.StatusOK, NewCursorResponse(rows, p.Limit))
}

func (h *PredictionHandler) writeLedgerError(c *gin.Context, id models.ObservationID, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": doesNotExist(id)})
	case errors.Is(err, ledger.ErrOutcomeConflict):
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Observation ID: %q already has a different true_class", id.String())})
	case errors.Is(err, ledger.ErrInvalidOutcome):
		c.JSON(http.StatusBadRequest, gin.H{"error": ledger.ErrInvalidOutcome.Error()})
	default:
		_ = c.Error(err)
		h.log.Error("ledger operation failed", zap.String("observation_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
	}
}

func coercionMessage(err error) string {
	var ce *schema.CoercionError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	return "observation must be a JSON object of scalar values"
}
