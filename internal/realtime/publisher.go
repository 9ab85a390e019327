package realtime

import (
	"context"
	"errors"

	"bidflow/internal/models"
	"bidflow/utils"
)

//go:generate mockgen -source=publisher.go -destination=publisher_mock.go -package=realtime

// Publisher fans an event out to everyone subscribed to topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event models.Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, event models.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify publishes best-effort: a failure is logged and never returned.
func Notify(ctx context.Context, p Publisher, topic string, event models.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, topic, event); err != nil {
		utils.Warn("realtime: publish failed", map[string]any{
			"topic":      topic,
			"event":      string(event.Type),
			"auction_id": event.AuctionID,
			"error":      err.Error(),
		})
	}
}
