package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"prediction-ledger-api/ledger"
	"prediction-ledger-api/metrics"
	"prediction-ledger-api/models"
	"prediction-ledger-api/schema"
	"prediction-ledger-api/scoring"
)

const (
	EventScored     = "scored"
	EventReconciled = "reconciled"
)

// Store is the subset of ledger.Ledger the service depends on.
type Store interface {
	Create(ctx context.Context, id models.ObservationID, raw string, proba float64) (models.PredictionRecord, error)
	FindByID(ctx context.Context, id models.ObservationID) (models.PredictionRecord, error)
	RecordOutcome(ctx context.Context, id models.ObservationID, outcome int64) (models.PredictionRecord, bool, error)
	List(ctx context.Context, p ledger.ListParams) ([]models.PredictionRecord, error)
}

// Event is published on EventsChannel after a prediction is recorded or
// reconciled.
type Event struct {
	Type          string               `json:"type"`
	ObservationID models.ObservationID `json:"observation_id"`
	Proba         float64              `json:"proba"`
	TrueClass     *int64               `json:"true_class,omitempty"`
	At            time.Time            `json:"at"`
}

// ScoreResult is the outcome of scoring one observation. Duplicate is set when
// the identifier was already in the ledger; Proba is still the fresh score and
// the stored record is left untouched.
type ScoreResult struct {
	Proba     float64
	Duplicate bool
	Record    models.PredictionRecord
}

type PredictionService struct {
	schema *schema.Schema
	scorer scoring.Scorer
	store  Store
	cache  *CacheService
	log    *zap.Logger

	// mutableOutcomes mirrors the ledger's overwrite setting. When outcomes
	// can change, no record is ever final and nothing is cached.
	mutableOutcomes bool
}

type Option func(*PredictionService)

// WithOutcomeOverwrite must match the ledger's overwrite setting.
func WithOutcomeOverwrite(allow bool) Option {
	return func(s *PredictionService) { s.mutableOutcomes = allow }
}

func NewPredictionService(s *schema.Schema, scorer scoring.Scorer, store Store, cache *CacheService, log *zap.Logger, opts ...Option) *PredictionService {
	if log == nil {
		log = zap.NewNop()
	}
	svc := &PredictionService{schema: s, scorer: scorer, store: store, cache: cache, log: log}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Score coerces the payload, scores it and records the prediction together
// with the raw request body. Coercion failures come back as
// *schema.CoercionError and model failures as *scoring.ScoringError.
func (s *PredictionService) Score(ctx context.Context, id models.ObservationID, raw string, payload schema.Payload) (ScoreResult, error) {
	obs, err := s.schema.Coerce(payload)
	if err != nil {
		var ce *schema.CoercionError
		if errors.As(err, &ce) {
			metrics.CoercionErrors.WithLabelValues(s.columnLabel(ce.Column)).Inc()
		}
		s.log.Info("observation rejected", zap.String("observation_id", id.String()), zap.Error(err))
		return ScoreResult{}, err
	}

	proba, err := s.scorer.Score(obs)
	if err != nil {
		metrics.ScoringErrors.Inc()
		s.log.Error("scoring failed", zap.String("observation_id", id.String()), zap.Error(err))
		return ScoreResult{}, err
	}
	metrics.PredictionsScored.Inc()
	metrics.Probability.Observe(proba)

	rec, err := s.store.Create(ctx, id, raw, proba)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateIdentifier) {
			metrics.DuplicateObservations.Inc()
			s.log.Warn("observation already recorded", zap.String("observation_id", id.String()), zap.Float64("proba", proba))
			return ScoreResult{Proba: proba, Duplicate: true}, nil
		}
		return ScoreResult{}, errors.Wrap(err, "recording prediction")
	}
	metrics.PredictionsRecorded.Inc()

	s.publish(ctx, Event{Type: EventScored, ObservationID: rec.ObservationID, Proba: rec.Proba, At: rec.CreatedAt})
	return ScoreResult{Proba: proba, Record: rec}, nil
}

// Reconcile attaches the true class to an existing prediction. source labels
// the metrics (metrics.SourceHTTP or metrics.SourceMQTT). Repeating an
// already recorded outcome returns the stored record and publishes nothing.
func (s *PredictionService) Reconcile(ctx context.Context, id models.ObservationID, outcome int64, source string) (models.PredictionRecord, error) {
	rec, changed, err := s.store.RecordOutcome(ctx, id, outcome)
	if err != nil {
		metrics.OutcomesRejected.WithLabelValues(source, rejectReason(err)).Inc()
		s.log.Info("outcome rejected",
			zap.String("observation_id", id.String()),
			zap.Int64("true_class", outcome),
			zap.String("source", source),
			zap.Error(err),
		)
		return models.PredictionRecord{}, err
	}
	if !changed {
		s.log.Debug("outcome already recorded", zap.String("observation_id", id.String()), zap.String("source", source))
		return rec, nil
	}
	metrics.OutcomesReconciled.WithLabelValues(source).Inc()

	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("observation_id", id.String()), zap.Error(err))
	}

	at := time.Now().UTC()
	if rec.ReconciledAt.Valid {
		at = rec.ReconciledAt.Time
	}
	tc := rec.TrueClass.Int64
	s.publish(ctx, Event{Type: EventReconciled, ObservationID: rec.ObservationID, Proba: rec.Proba, TrueClass: &tc, At: at})
	return rec, nil
}

// Get reads one record. Only final records, reconciled with overwrite
// disabled, are cached; a pending record is always read from the ledger so a
// concurrent reconciliation can never be masked by a cache entry.
func (s *PredictionService) Get(ctx context.Context, id models.ObservationID) (models.PredictionRecord, error) {
	key := cacheKey(id)

	var cached models.PredictionRecord
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.PredictionRecord{}, err
	}
	if s.final(rec) {
		if err := s.cache.Set(ctx, key, rec, s.cache.TTL()); err != nil {
			s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rec, nil
}

func (s *PredictionService) final(rec models.PredictionRecord) bool {
	return rec.Reconciled() && !s.mutableOutcomes && s.cache.Available()
}

func (s *PredictionService) List(ctx context.Context, p ledger.ListParams) ([]models.PredictionRecord, error) {
	return s.store.List(ctx, p)
}

func (s *PredictionService) publish(ctx context.Context, ev Event) {
	if err := s.cache.Publish(ctx, EventsChannel, ev); err != nil {
		s.log.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// columnLabel keeps the coercion metric bounded: keys outside the schema come
// from clients and share one label.
func (s *PredictionService) columnLabel(column string) string {
	if _, ok := s.schema.DTypes[column]; ok {
		return column
	}
	return "extra"
}

func cacheKey(id models.ObservationID) string {
	return "prediction:" + id.String()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrOutcomeConflict):
		return "conflict"
	case errors.Is(err, ledger.ErrInvalidOutcome):
		return "invalid"
	default:
		return "error"
	}
}
