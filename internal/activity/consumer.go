package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
)

// Counter is notified of every record applied by the consumer.
type Counter interface {
	RecordActivity(activityType string)
}

// HandleMessage returns a Kafka MessageHandler that decodes activity records
// and appends them to the store. Undecodable or invalid records are logged
// and skipped so they do not block the partition; store errors are returned
// so the message is retried.
func HandleMessage(store Appender, counter Counter) kafka.MessageHandler {
	logger := slog.Default().With("component", "activity-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		rec, err := kafka.DecodeJSON[Record](value)
		if err != nil {
			logger.Error("failed to decode activity record",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := Validate(rec); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				logger.Warn("dropping invalid activity record",
					"activity_id", rec.ID,
					"error", err,
				)
				return nil
			}
			return err
		}
		if err := store.Append(ctx, rec); err != nil {
			return fmt.Errorf("appending activity %s: %w", rec.ID, err)
		}
		if counter != nil {
			counter.RecordActivity(string(rec.Type))
		}
		logger.Debug("activity applied",
			"activity_id", rec.ID,
			"user_id", rec.UserID,
			"type", rec.Type,
		)
		return nil
	}
}
