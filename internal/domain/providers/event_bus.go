package providers

import (
	"context"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// EventBus carries queue status events between the API process, which
// publishes after every committed transition, and the stream process, which
// relays them to dashboards. Delivery is best-effort and unordered across
// channels; consumers recover from gaps by refetching the listing.
type EventBus interface {
	Publish(ctx context.Context, channel string, event *entities.QueueStatusEvent) error

	// Subscribe returns a reader that is closed when ctx ends, the channel is
	// unsubscribed or the bus closes. Slow readers may miss events.
	Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueStatusEvent, error)

	// Unsubscribe closes every local reader of channel
	Unsubscribe(ctx context.Context, channel string) error

	Close() error
}

const (
	// EventChannelRoomPrefix is the prefix of the per-room doctor channels
	EventChannelRoomPrefix = "room."

	// EventChannelReceptionist carries every queue change of the clinic
	EventChannelReceptionist = "receptionist"
)

// RoomChannel returns the channel of one consultation room
func RoomChannel(roomID string) string {
	return EventChannelRoomPrefix + roomID
}

// EventChannels lists every channel a change in roomID is published to
func EventChannels(roomID string) []string {
	return []string{RoomChannel(roomID), EventChannelReceptionist}
}
