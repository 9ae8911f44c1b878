package ledger

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"prediction-ledger-api/models"
)

// ListParams selects a page of records, newest first. Before is an exclusive
// row-id cursor; zero starts from the newest record.
type ListParams struct {
	Limit      int
	Before     uint
	Reconciled *bool
}

func (l *Ledger) List(ctx context.Context, p ListParams) ([]models.PredictionRecord, error) {
	var rows []models.PredictionRecord
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.PredictionRecord{}).Order("id DESC")
		if p.Limit > 0 {
			q = q.Limit(p.Limit)
		}
		if p.Before > 0 {
			q = q.Where("id < ?", p.Before)
		}
		if p.Reconciled != nil {
			if *p.Reconciled {
				q = q.Where("true_class IS NOT NULL")
			} else {
				q = q.Where("true_class IS NULL")
			}
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing predictions")
	}
	return rows, nil
}
