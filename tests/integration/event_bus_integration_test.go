//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicqueue/internal/adapters/database"
	"github.com/zatekoja/clinicqueue/internal/adapters/events"
	"github.com/zatekoja/clinicqueue/internal/application/services"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
)

func TestRedisEventBusFanoutIntegration(t *testing.T) {
	requireRedis(t)

	eventBus := events.NewRedisEventBus(newTestRedisClient(t))
	defer eventBus.Close()

	channel := providers.RoomChannel("it-3")
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	sub1, err := eventBus.Subscribe(ctx1, channel)
	require.NoError(t, err)
	sub2, err := eventBus.Subscribe(ctx2, channel)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	event := entities.NewQueueStatusEvent(&entities.QueueEntry{
		ID: "q-redis-1", RoomID: "it-3", Status: entities.QueueStatusInConsultation, Version: 2,
	}, entities.QueueEventUpdated)
	require.NoError(t, eventBus.Publish(context.Background(), channel, event))

	received1 := waitForQueueEvent(t, sub1)
	received2 := waitForQueueEvent(t, sub2)

	assert.Equal(t, event.ID, received1.ID)
	assert.Equal(t, event.ID, received2.ID)
	assert.Equal(t, entities.QueueStatusInConsultation, received1.Entry.Status)
}

func TestQueueService_PublishesThroughRedis(t *testing.T) {
	requireDB(t)
	requireRedis(t)

	eventBus := events.NewRedisEventBus(newTestRedisClient(t))
	defer eventBus.Close()

	repo := database.NewQueueAdapter(newTestPostgresClient(t), nil)
	svc := services.NewQueueService(repo, nil, services.NewQueueNotifier(eventBus, nil), nil, services.QueueServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomEvents, err := eventBus.Subscribe(ctx, providers.RoomChannel("3"))
	require.NoError(t, err)
	deskEvents, err := eventBus.Subscribe(ctx, providers.EventChannelReceptionist)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	entry := receive(t, svc, "p1", "3")
	waitForQueueEvent(t, roomEvents)
	waitForQueueEvent(t, deskEvents)

	called, err := svc.CallPatient(ctx, entry.ID)
	require.NoError(t, err)

	received := waitForQueueEvent(t, roomEvents)
	assert.Equal(t, entities.QueueEventUpdated, received.Action)
	assert.Equal(t, called.Version, received.Entry.Version)
	assert.Equal(t, entities.QueueStatusInConsultation, received.Entry.Status)
}
