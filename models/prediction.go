package models

import (
	"time"

	"github.com/guregu/null/v5"
)

// PredictionRecord is one scored observation. Proba is written once at
// creation; TrueClass stays null until the outcome is reconciled.
type PredictionRecord struct {
	ID            uint          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ObservationID ObservationID `gorm:"column:observation_id;type:varchar(255);not null;uniqueIndex:idx_predictions_observation_id" json:"observation_id"`
	Observation   string        `gorm:"column:observation;type:text;not null" json:"observation"`
	Proba         float64       `gorm:"column:proba;not null" json:"proba"`
	TrueClass     null.Int      `gorm:"column:true_class" json:"true_class"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ReconciledAt  null.Time     `gorm:"column:reconciled_at" json:"reconciled_at"`
}

func (PredictionRecord) TableName() string { return "predictions" }

func (r PredictionRecord) Reconciled() bool { return r.TrueClass.Valid }
