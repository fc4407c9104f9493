package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicqueue/internal/adapters/cache"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
)

type mockQueueRepository struct {
	mock.Mock
}

func (m *mockQueueRepository) List(ctx context.Context, filter repositories.QueueFilter) ([]*entities.QueueEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.QueueEntry), args.Error(1)
}

func (m *mockQueueRepository) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QueueEntry), args.Error(1)
}

func (m *mockQueueRepository) WithRoomLock(ctx context.Context, roomID, date string, fn func(ctx context.Context, tx repositories.QueueTx) error) error {
	args := m.Called(ctx, roomID, date)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, nil)
}

func TestCachedQueueAdapter_ListServesFromCache(t *testing.T) {
	ctx := context.Background()
	inner := new(mockQueueRepository)
	filter := repositories.QueueFilter{Date: "2025-06-01"}
	inner.On("List", ctx, filter).Return([]*entities.QueueEntry{{ID: "q-1", Status: entities.QueueStatusWaiting}}, nil).Once()

	adapter := NewCachedQueueAdapter(inner, cache.NewMemoryAdapter(), 5, nil)

	first, err := adapter.List(ctx, filter)
	require.NoError(t, err)
	second, err := adapter.List(ctx, filter)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	inner.AssertNumberOfCalls(t, "List", 1)
}

func TestCachedQueueAdapter_CommittedWriteInvalidatesDay(t *testing.T) {
	ctx := context.Background()
	inner := new(mockQueueRepository)
	room := "3"
	dayFilter := repositories.QueueFilter{Date: "2025-06-01"}
	roomFilter := repositories.QueueFilter{Date: "2025-06-01", RoomID: &room}
	inner.On("List", ctx, dayFilter).Return([]*entities.QueueEntry{}, nil).Twice()
	inner.On("List", ctx, roomFilter).Return([]*entities.QueueEntry{}, nil).Twice()
	inner.On("WithRoomLock", ctx, "3", "2025-06-01").Return(nil)

	adapter := NewCachedQueueAdapter(inner, cache.NewMemoryAdapter(), 5, nil)

	_, _ = adapter.List(ctx, dayFilter)
	_, _ = adapter.List(ctx, roomFilter)
	require.NoError(t, adapter.WithRoomLock(ctx, "3", "2025-06-01", func(context.Context, repositories.QueueTx) error { return nil }))
	_, _ = adapter.List(ctx, dayFilter)
	_, _ = adapter.List(ctx, roomFilter)

	inner.AssertNumberOfCalls(t, "List", 4)
}

func TestCachedQueueAdapter_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	inner := new(mockQueueRepository)
	filter := repositories.QueueFilter{Date: "2025-06-01"}
	inner.On("List", ctx, filter).Return([]*entities.QueueEntry{}, nil).Once()
	inner.On("WithRoomLock", ctx, "3", "2025-06-01").Return(repositories.ErrStaleEntry)

	adapter := NewCachedQueueAdapter(inner, cache.NewMemoryAdapter(), 5, nil)

	_, _ = adapter.List(ctx, filter)
	err := adapter.WithRoomLock(ctx, "3", "2025-06-01", func(context.Context, repositories.QueueTx) error { return nil })
	assert.ErrorIs(t, err, repositories.ErrStaleEntry)
	_, _ = adapter.List(ctx, filter)

	inner.AssertNumberOfCalls(t, "List", 1)
}

func TestCachedQueueAdapter_ZeroTTLBypassesCache(t *testing.T) {
	ctx := context.Background()
	inner := new(mockQueueRepository)
	filter := repositories.QueueFilter{Date: "2025-06-01"}
	inner.On("List", ctx, filter).Return([]*entities.QueueEntry{}, nil)

	adapter := NewCachedQueueAdapter(inner, cache.NewMemoryAdapter(), 0, nil)
	_, _ = adapter.List(ctx, filter)
	_, _ = adapter.List(ctx, filter)

	inner.AssertNumberOfCalls(t, "List", 2)
}

func TestCachedQueueAdapter_ListingReadBeforeCommitIsNotServed(t *testing.T) {
	ctx := context.Background()
	inner := new(mockQueueRepository)
	filter := repositories.QueueFilter{Date: "2025-06-01"}
	adapter := NewCachedQueueAdapter(inner, cache.NewMemoryAdapter(), 5, nil)

	stale := []*entities.QueueEntry{{ID: "q-1", Status: entities.QueueStatusWaiting}}
	fresh := []*entities.QueueEntry{{ID: "q-1", Status: entities.QueueStatusInConsultation}}

	// The write commits while the first listing is still being read.
	inner.On("WithRoomLock", ctx, "3", "2025-06-01").Return(nil)
	inner.On("List", ctx, filter).Run(func(mock.Arguments) {
		require.NoError(t, adapter.WithRoomLock(ctx, "3", "2025-06-01", func(context.Context, repositories.QueueTx) error { return nil }))
	}).Return(stale, nil).Once()
	inner.On("List", ctx, filter).Return(fresh, nil).Once()

	first, err := adapter.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusWaiting, first[0].Status)

	second, err := adapter.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusInConsultation, second[0].Status)

	third, err := adapter.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusInConsultation, third[0].Status)
	inner.AssertNumberOfCalls(t, "List", 2)
}
