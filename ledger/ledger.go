// Package ledger persists one prediction record per observation identifier
// and attaches ground-truth outcomes to existing records.
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prediction-ledger-api/models"
)

var (
	ErrDuplicateIdentifier = errors.New("observation already recorded")
	ErrNotFound            = errors.New("observation not found")
	ErrOutcomeConflict     = errors.New("observation already reconciled with a different outcome")
	ErrInvalidOutcome      = errors.New("true_class must be 0 or 1")
	ErrInvalidProbability  = errors.New("probability must be within [0, 1]")
)

type Ledger struct {
	db             *gorm.DB
	log            *zap.Logger
	allowOverwrite bool
}

type Option func(*Ledger)

// WithOutcomeOverwrite lets a later reconciliation replace a different,
// already recorded outcome instead of failing with ErrOutcomeConflict.
func WithOutcomeOverwrite(allow bool) Option {
	return func(l *Ledger) { l.allowOverwrite = allow }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Migrate creates the predictions table and its unique index.
func (l *Ledger) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&models.PredictionRecord{}); err != nil {
		return errors.Wrap(err, "migrating predictions table")
	}
	return nil
}

// Create inserts a new record. Uniqueness is left to the storage constraint:
// a concurrent insert of the same identifier fails with ErrDuplicateIdentifier
// and leaves the existing record untouched.
func (l *Ledger) Create(ctx context.Context, id models.ObservationID, raw string, proba float64) (models.PredictionRecord, error) {
	if err := id.Validate(); err != nil {
		return models.PredictionRecord{}, err
	}
	if math.IsNaN(proba) || proba < 0 || proba > 1 {
		return models.PredictionRecord{}, errors.Wrapf(ErrInvalidProbability, "got %v", proba)
	}

	rec := models.PredictionRecord{
		ObservationID: id,
		Observation:   raw,
		Proba:         proba,
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return models.PredictionRecord{}, errors.Wrapf(ErrDuplicateIdentifier, "observation %s", id)
		}
		return models.PredictionRecord{}, errors.Wrapf(err, "creating prediction %s", id)
	}

	l.log.Debug("prediction recorded", zap.String("observation_id", id.String()), zap.Uint("row_id", rec.ID))
	return rec, nil
}

func (l *Ledger) FindByID(ctx context.Context, id models.ObservationID) (models.PredictionRecord, error) {
	var rec models.PredictionRecord
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("observation_id = ?", id).Take(&rec).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PredictionRecord{}, errors.Wrapf(ErrNotFound, "observation %s", id)
		}
		return models.PredictionRecord{}, errors.Wrapf(err, "finding prediction %s", id)
	}
	return rec, nil
}

// RecordOutcome sets the true class of an existing record and returns the
// stored row. It never creates a record. changed is false when the record
// already held outcome; nothing is written then, so reconciled_at keeps the
// time of the first reconciliation. The write is a single conditional UPDATE
// so concurrent reconciliations cannot interleave a read and a write.
func (l *Ledger) RecordOutcome(ctx context.Context, id models.ObservationID, outcome int64) (rec models.PredictionRecord, changed bool, err error) {
	if outcome != 0 && outcome != 1 {
		return models.PredictionRecord{}, false, errors.Wrapf(ErrInvalidOutcome, "got %d", outcome)
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.PredictionRecord{}).Where("observation_id = ?", id)
		if l.allowOverwrite {
			q = q.Where("(true_class IS NULL OR true_class <> ?)", outcome)
		} else {
			q = q.Where("true_class IS NULL")
		}
		res := q.Updates(map[string]any{
			"true_class":    outcome,
			"reconciled_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0

		if err := tx.Where("observation_id = ?", id).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !changed && rec.TrueClass.Int64 != outcome {
			return ErrOutcomeConflict
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrOutcomeConflict):
			return models.PredictionRecord{}, false, errors.Wrapf(err, "observation %s", id)
		default:
			return models.PredictionRecord{}, false, errors.Wrapf(err, "recording outcome for %s", id)
		}
	}

	l.log.Debug("outcome recorded",
		zap.String("observation_id", id.String()),
		zap.Int64("true_class", outcome),
		zap.Bool("changed", changed),
	)
	return rec, changed, nil
}
