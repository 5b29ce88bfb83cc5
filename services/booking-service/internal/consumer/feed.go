package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/yhd-salon/salonbook/libs/kafkax"
)

// FeedHandler wakes the live feed of the salon an event belongs to. The salon
// comes from the salon_id header, or from the payload for producers that do
// not set it. Undecodable events are logged and skipped, never retried.
func FeedHandler(logger *slog.Logger, notify func(salonID string)) Handler {
	return func(_ context.Context, msg kafka.Message) error {
		salonID := kafkax.ExtractEventMeta(msg).SalonID
		if salonID == "" {
			var payload struct {
				SalonID string `json:"salon_id"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			salonID = payload.SalonID
		}
		if salonID != "" {
			notify(salonID)
		}
		return nil
	}
}
