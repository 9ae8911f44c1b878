// Package outcomes reconciles ground-truth outcomes delivered as broker
// messages.
package outcomes

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"prediction-ledger-api/metrics"
	"prediction-ledger-api/models"
)

var ErrInvalidMessage = errors.New("invalid outcome message")

type Reconciler interface {
	Reconcile(ctx context.Context, id models.ObservationID, outcome int64, source string) (models.PredictionRecord, error)
}

// Message is the payload published by upstream systems once the true class
// of an observation is known.
type Message struct {
	ID        *models.ObservationID `json:"id"`
	TrueClass *int64                `json:"true_class"`
}

type Consumer struct {
	reconciler Reconciler
	log        *zap.Logger
}

func NewConsumer(r Reconciler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reconciler: r, log: log}
}

// Handle reconciles one message. Errors are returned for the caller to count;
// a bad message never stops the consumer.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.OutcomesRejected.WithLabelValues(metrics.SourceMQTT, "malformed").Inc()
		c.log.Warn("malformed outcome message", zap.ByteString("payload", payload), zap.Error(err))
		return errors.Mark(errors.Wrap(err, "decoding outcome message"), ErrInvalidMessage)
	}
	if msg.ID == nil || msg.TrueClass == nil {
		metrics.OutcomesRejected.WithLabelValues(metrics.SourceMQTT, "malformed").Inc()
		c.log.Warn("outcome message missing fields", zap.ByteString("payload", payload))
		return errors.Wrap(ErrInvalidMessage, "id and true_class are required")
	}

	rec, err := c.reconciler.Reconcile(ctx, *msg.ID, *msg.TrueClass, metrics.SourceMQTT)
	if err != nil {
		return err
	}
	c.log.Info("outcome reconciled",
		zap.String("observation_id", rec.ObservationID.String()),
		zap.Int64("true_class", rec.TrueClass.Int64),
	)
	return nil
}
