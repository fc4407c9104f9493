package services

import (
	"context"
	"time"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
)

// publishTimeout bounds a single publish so a slow broker never holds up the caller
const publishTimeout = 2 * time.Second

// Notifier broadcasts committed queue changes
type Notifier interface {
	Publish(ctx context.Context, event *entities.QueueStatusEvent)
}

// QueueNotifier publishes queue status events to the entry's room channel
// and to the receptionist channel. Delivery is best-effort: failures are
// logged and counted but never reported to the caller.
type QueueNotifier struct {
	bus     providers.EventBus
	metrics *observability.Metrics
}

// NewQueueNotifier creates a notifier over bus. A nil bus disables publishing.
func NewQueueNotifier(bus providers.EventBus, metrics *observability.Metrics) *QueueNotifier {
	return &QueueNotifier{bus: bus, metrics: metrics}
}

// Publish sends event once to room.<roomId> and once to receptionist
func (n *QueueNotifier) Publish(ctx context.Context, event *entities.QueueStatusEvent) {
	if n.bus == nil || event == nil || event.Entry == nil {
		return
	}

	// The originating request may already be finishing; the event must still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, channel := range providers.EventChannels(event.Entry.RoomID) {
		if err := n.bus.Publish(ctx, channel, event); err != nil {
			observability.LoggerFromContext(ctx).Warn().
				Err(err).
				Str("channel", channel).
				Str("queue_id", event.Entry.ID).
				Str("event_id", event.ID).
				Msg("Failed to publish queue event")
			observability.RecordPublishFailure(ctx, n.metrics, channel)
		}
	}
}
