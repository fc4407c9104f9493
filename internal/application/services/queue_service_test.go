package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicqueue/internal/adapters/memory"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/query/views"
	apperrors "github.com/zatekoja/clinicqueue/pkg/errors"
)

const clinicDay = "2025-06-01"

type recordingNotifier struct {
	mu     sync.Mutex
	events []*entities.QueueStatusEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, event *entities.QueueStatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []*entities.QueueStatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*entities.QueueStatusEvent(nil), n.events...)
}

func newTestQueueService(t *testing.T, entries ...*entities.QueueEntry) (*QueueService, *memory.QueueStore, *recordingNotifier) {
	t.Helper()
	store := newSeededStore(entries...)
	notifier := &recordingNotifier{}
	svc := NewQueueService(store, NewOccupancyGuard(store), notifier, nil, QueueServiceConfig{AllowCancelInConsultation: true})
	return svc, store, notifier
}

func newSeededStore(entries ...*entities.QueueEntry) *memory.QueueStore {
	store := memory.NewQueueStore()
	store.Seed(entries...)
	return store
}

func queueEntry(id, room string, pos int, status entities.QueueStatus) *entities.QueueEntry {
	return &entities.QueueEntry{
		ID: id, PatientID: "p-" + id, PatientName: "Patient " + id, RoomID: room, DoctorID: "d-" + room,
		QueueDate: clinicDay, QueueTime: "09:00", QueuePosition: pos, Status: status, Version: 1,
	}
}

func entryIDs(entries []*entities.QueueEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestQueueService_ListQueue_OrdersAndColors(t *testing.T) {
	svc, _, _ := newTestQueueService(t,
		queueEntry("A", "3", 2, entities.QueueStatusWaiting),
		queueEntry("B", "3", 1, entities.QueueStatusWaiting),
		queueEntry("C", "3", 7, entities.QueueStatusInConsultation),
		queueEntry("X", "4", 1, entities.QueueStatusWaiting),
	)

	room := "3"
	entries, err := svc.ListQueue(context.Background(), clinicDay, &room)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "B", "A"}, entryIDs(entries))
	for _, e := range entries {
		assert.Equal(t, entities.RoomColor("3"), e.DisplayColor)
	}

	all, err := svc.ListQueue(context.Background(), clinicDay, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestQueueService_ListQueue_DashboardAgreesOnTies(t *testing.T) {
	svc, _, _ := newTestQueueService(t,
		queueEntry("D1", "3", 1, entities.QueueStatusDone),
		queueEntry("D0", "3", 1, entities.QueueStatusDone),
	)
	ctx := context.Background()

	for _, room := range []string{"2", "1"} {
		_, err := svc.ReceivePatient(ctx, ReceiveRequest{
			PatientID: "p-" + room, PatientName: "Patient " + room, RoomID: room, DoctorID: "d-" + room,
			QueueDate: clinicDay, QueueTime: "09:00",
		})
		require.NoError(t, err)
	}

	listing, err := svc.ListQueue(ctx, clinicDay, nil)
	require.NoError(t, err)

	view := views.NewQueueView()
	view.Replace(listing)

	assert.Equal(t, entryIDs(listing), entryIDs(view.Entries()))
	assert.Equal(t, "1", listing[0].RoomID)
	assert.Equal(t, "2", listing[1].RoomID)
	assert.Equal(t, []string{"D0", "D1"}, entryIDs(listing[2:]))
}

func TestQueueService_ListQueue_InvalidDate(t *testing.T) {
	svc, _, _ := newTestQueueService(t)

	_, err := svc.ListQueue(context.Background(), "06/01/2025", nil)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
	assert.Equal(t, "date", appErr.Field)
}

func TestQueueService_Prioritize_MovesToFront(t *testing.T) {
	svc, _, notifier := newTestQueueService(t,
		queueEntry("A", "3", 2, entities.QueueStatusWaiting),
		queueEntry("B", "3", 1, entities.QueueStatusWaiting),
		queueEntry("C", "3", 7, entities.QueueStatusInConsultation),
	)
	ctx := context.Background()

	updated, err := svc.Prioritize(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, updated.QueuePosition)

	room := "3"
	entries, err := svc.ListQueue(ctx, clinicDay, &room)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, entryIDs(entries))
	require.Len(t, notifier.Events(), 1)
}

func TestQueueService_Prioritize_AlreadyAtFrontIsNoop(t *testing.T) {
	svc, _, notifier := newTestQueueService(t,
		queueEntry("A", "3", 2, entities.QueueStatusWaiting),
		queueEntry("B", "3", 1, entities.QueueStatusWaiting),
	)

	updated, err := svc.Prioritize(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.QueuePosition)
	assert.Equal(t, int64(1), updated.Version)
	assert.Empty(t, notifier.Events())
}

func TestQueueService_Prioritize_Twice(t *testing.T) {
	svc, _, _ := newTestQueueService(t,
		queueEntry("A", "3", 3, entities.QueueStatusWaiting),
		queueEntry("B", "3", 1, entities.QueueStatusWaiting),
	)
	ctx := context.Background()

	first, err := svc.Prioritize(ctx, "A")
	require.NoError(t, err)
	second, err := svc.Prioritize(ctx, "A")
	require.NoError(t, err)

	assert.Equal(t, first.QueuePosition, second.QueuePosition)
}

func TestQueueService_CallPatient_RoomOccupied(t *testing.T) {
	svc, store, notifier := newTestQueueService(t,
		queueEntry("X", "3", 2, entities.QueueStatusWaiting),
		queueEntry("Y", "3", 1, entities.QueueStatusInConsultation),
	)
	ctx := context.Background()

	blocking, err := svc.CallPatient(ctx, "X")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeResourceBusy))
	assert.Equal(t, entities.CodeRoomOccupied, apperrors.CodeOf(err))
	require.NotNil(t, blocking)
	assert.Equal(t, "Y", blocking.ID)
	assert.Contains(t, err.Error(), "occupied by Patient Y")

	x, err := store.GetByID(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusWaiting, x.Status)
	assert.Empty(t, notifier.Events())
}

func TestQueueService_CallPatient_AlreadyCalled(t *testing.T) {
	svc, _, notifier := newTestQueueService(t, queueEntry("X", "3", 1, entities.QueueStatusWaiting))
	ctx := context.Background()

	_, err := svc.CallPatient(ctx, "X")
	require.NoError(t, err)

	current, err := svc.CallPatient(ctx, "X")
	assert.Equal(t, entities.CodeAlreadyCalled, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAlreadySettled))
	require.NotNil(t, current)
	assert.Equal(t, entities.QueueStatusInConsultation, current.Status)
	assert.Len(t, notifier.Events(), 1)
}

func TestQueueService_CompleteConsultation(t *testing.T) {
	svc, _, notifier := newTestQueueService(t, queueEntry("X", "3", 1, entities.QueueStatusWaiting))
	ctx := context.Background()

	_, err := svc.CompleteConsultation(ctx, "X")
	assert.Equal(t, entities.CodeInvalidTransition, apperrors.CodeOf(err))

	_, err = svc.CallPatient(ctx, "X")
	require.NoError(t, err)
	done, err := svc.CompleteConsultation(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusDone, done.Status)

	events := notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, entities.QueueEventUpdated, events[0].Action)
	assert.Equal(t, entities.QueueEventCompleted, events[1].Action)
	assert.Equal(t, entities.QueueStatusDone, events[1].Entry.Status)
}

func TestQueueService_CompleteFreesRoom(t *testing.T) {
	svc, _, _ := newTestQueueService(t,
		queueEntry("X", "3", 1, entities.QueueStatusInConsultation),
		queueEntry("Y", "3", 2, entities.QueueStatusWaiting),
	)
	ctx := context.Background()

	_, err := svc.CompleteConsultation(ctx, "X")
	require.NoError(t, err)

	called, err := svc.CallPatient(ctx, "Y")
	require.NoError(t, err)
	assert.Equal(t, entities.QueueStatusInConsultation, called.Status)
}

func TestQueueService_Cancel_AlreadyCancelled(t *testing.T) {
	svc, store, notifier := newTestQueueService(t, queueEntry("X", "3", 1, entities.QueueStatusCancelled))
	ctx := context.Background()

	current, err := svc.Cancel(ctx, "X")
	assert.Equal(t, entities.CodeAlreadyCancelled, apperrors.CodeOf(err))
	assert.Equal(t, entities.QueueStatusCancelled, current.Status)

	stored, err := store.GetByID(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Empty(t, notifier.Events())
}

func TestQueueService_Cancel_InConsultation(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		svc, _, _ := newTestQueueService(t, queueEntry("X", "3", 1, entities.QueueStatusInConsultation))
		cancelled, err := svc.Cancel(context.Background(), "X")
		require.NoError(t, err)
		assert.Equal(t, entities.QueueStatusCancelled, cancelled.Status)
	})

	t.Run("rejected when disabled", func(t *testing.T) {
		store := newSeededStore(queueEntry("X", "3", 1, entities.QueueStatusInConsultation))
		svc := NewQueueService(store, nil, nil, nil, QueueServiceConfig{AllowCancelInConsultation: false})

		current, err := svc.Cancel(context.Background(), "X")
		assert.Equal(t, entities.CodeInvalidTransition, apperrors.CodeOf(err))
		assert.Equal(t, entities.QueueStatusInConsultation, current.Status)
	})
}

func TestQueueService_TerminalStatesAreImmutable(t *testing.T) {
	actions := map[string]func(*QueueService, context.Context, string) (*entities.QueueEntry, error){
		"call":       (*QueueService).CallPatient,
		"complete":   (*QueueService).CompleteConsultation,
		"cancel":     (*QueueService).Cancel,
		"prioritize": (*QueueService).Prioritize,
	}

	for _, status := range []entities.QueueStatus{entities.QueueStatusDone, entities.QueueStatusCancelled} {
		svc, store, notifier := newTestQueueService(t, queueEntry("T", "3", 1, status))
		ctx := context.Background()

		for name, act := range actions {
			for attempt := 0; attempt < 3; attempt++ {
				current, err := act(svc, ctx, "T")
				require.Error(t, err, "%s from %s", name, status)
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAlreadySettled), "%s from %s: %v", name, status, err)
				assert.Equal(t, status, current.Status)
			}
		}

		stored, err := store.GetByID(ctx, "T")
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
		assert.Equal(t, int64(1), stored.Version)
		assert.Empty(t, notifier.Events())
	}
}

func TestQueueService_UnknownEntry(t *testing.T) {
	svc, _, _ := newTestQueueService(t)

	_, err := svc.CallPatient(context.Background(), "missing")
	assert.Equal(t, entities.CodeQueueEntryNotFound, apperrors.CodeOf(err))

	_, err = svc.Cancel(context.Background(), "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestQueueService_ConcurrentCallsInSameRoom(t *testing.T) {
	for round := 0; round < 25; round++ {
		svc, store, notifier := newTestQueueService(t,
			queueEntry("A", "3", 1, entities.QueueStatusWaiting),
			queueEntry("B", "3", 2, entities.QueueStatusWaiting),
		)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i, id := range []string{"A", "B"} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.CallPatient(ctx, id)
			}(i, id)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			code := apperrors.CodeOf(err)
			assert.Contains(t, []string{entities.CodeRoomOccupied, entities.CodeAlreadyCalled}, code)
		}
		require.Equal(t, 1, succeeded, "round %d", round)

		room := "3"
		entries, err := store.List(ctx, repositories.QueueFilter{Date: clinicDay, RoomID: &room})
		require.NoError(t, err)
		inConsultation := 0
		for _, e := range entries {
			if e.Status == entities.QueueStatusInConsultation {
				inConsultation++
			}
		}
		assert.Equal(t, 1, inConsultation)
		assert.Len(t, notifier.Events(), 1)
	}
}

func TestQueueService_AtMostOneInConsultationUnderLoad(t *testing.T) {
	const rooms, perRoom = 4, 6
	var seed []*entities.QueueEntry
	for r := 0; r < rooms; r++ {
		for p := 0; p < perRoom; p++ {
			seed = append(seed, queueEntry(fmt.Sprintf("r%d-%d", r, p), fmt.Sprint(r), p+1, entities.QueueStatusWaiting))
		}
	}
	svc, store, _ := newTestQueueService(t, seed...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, e := range seed {
		for _, act := range []func(context.Context, string) (*entities.QueueEntry, error){svc.CallPatient, svc.CompleteConsultation, svc.Prioritize, svc.CallPatient} {
			wg.Add(1)
			go func(id string, act func(context.Context, string) (*entities.QueueEntry, error)) {
				defer wg.Done()
				_, _ = act(ctx, id)
			}(e.ID, act)
		}
	}
	wg.Wait()

	all, err := store.List(ctx, repositories.QueueFilter{Date: clinicDay})
	require.NoError(t, err)
	perRoomServing := map[string]int{}
	waitingPositions := map[string]map[int]bool{}
	for _, e := range all {
		if e.Status == entities.QueueStatusInConsultation {
			perRoomServing[e.RoomID]++
		}
		if e.Status == entities.QueueStatusWaiting {
			if waitingPositions[e.RoomID] == nil {
				waitingPositions[e.RoomID] = map[int]bool{}
			}
			assert.False(t, waitingPositions[e.RoomID][e.QueuePosition], "duplicate waiting position in room %s", e.RoomID)
			waitingPositions[e.RoomID][e.QueuePosition] = true
		}
	}
	for room, n := range perRoomServing {
		assert.LessOrEqual(t, n, 1, "room %s", room)
	}
}

func TestQueueService_ReceivePatient(t *testing.T) {
	svc, _, notifier := newTestQueueService(t,
		queueEntry("A", "3", 4, entities.QueueStatusDone),
	)
	ctx := context.Background()

	entry, err := svc.ReceivePatient(ctx, ReceiveRequest{
		PatientID: "p-9", PatientName: "Ani", RoomID: "3", DoctorID: "d-3", DoctorName: "Dr. Rina",
		QueueDate: clinicDay, QueueTime: "9:30",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, entities.QueueStatusWaiting, entry.Status)
	assert.Equal(t, 5, entry.QueuePosition)
	assert.Equal(t, "09:30", entry.QueueTime)
	assert.Equal(t, entities.RoomColor("3"), entry.DisplayColor)
	require.Len(t, notifier.Events(), 1)
	assert.Equal(t, entry.ID, notifier.Events()[0].Entry.ID)
}

func TestQueueService_ReceivePatient_SameAppointmentOnce(t *testing.T) {
	svc, _, notifier := newTestQueueService(t)
	ctx := context.Background()
	apt := "apt-1"
	req := ReceiveRequest{PatientID: "p-1", PatientName: "Budi", RoomID: "3", DoctorID: "d-3",
		QueueDate: clinicDay, QueueTime: "10:00", AppointmentID: &apt}

	first, err := svc.ReceivePatient(ctx, req)
	require.NoError(t, err)
	second, err := svc.ReceivePatient(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, notifier.Events(), 1)
}

func TestQueueService_ReceivePatient_Validation(t *testing.T) {
	svc, _, _ := newTestQueueService(t)

	tests := []struct {
		name  string
		req   ReceiveRequest
		field string
	}{
		{"missing patient", ReceiveRequest{PatientName: "n", RoomID: "3", DoctorID: "d", QueueDate: clinicDay, QueueTime: "09:00"}, "patient_id"},
		{"missing room", ReceiveRequest{PatientID: "p", PatientName: "n", DoctorID: "d", QueueDate: clinicDay, QueueTime: "09:00"}, "room_id"},
		{"bad date", ReceiveRequest{PatientID: "p", PatientName: "n", RoomID: "3", DoctorID: "d", QueueDate: "tomorrow", QueueTime: "09:00"}, "queue_date"},
		{"bad time", ReceiveRequest{PatientID: "p", PatientName: "n", RoomID: "3", DoctorID: "d", QueueDate: clinicDay, QueueTime: "9am"}, "queue_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ReceivePatient(context.Background(), tt.req)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestQueueService_CallNext(t *testing.T) {
	svc, _, _ := newTestQueueService(t,
		queueEntry("A", "3", 2, entities.QueueStatusWaiting),
		queueEntry("B", "3", 1, entities.QueueStatusWaiting),
		queueEntry("Z", "3", 0, entities.QueueStatusCancelled),
	)
	ctx := context.Background()

	called, err := svc.CallNext(ctx, "3", clinicDay)
	require.NoError(t, err)
	assert.Equal(t, "B", called.ID)

	blocking, err := svc.CallNext(ctx, "3", clinicDay)
	assert.Equal(t, entities.CodeRoomOccupied, apperrors.CodeOf(err))
	assert.Equal(t, "B", blocking.ID)

	_, err = svc.CompleteConsultation(ctx, "B")
	require.NoError(t, err)
	called, err = svc.CallNext(ctx, "3", clinicDay)
	require.NoError(t, err)
	assert.Equal(t, "A", called.ID)

	_, err = svc.CompleteConsultation(ctx, "A")
	require.NoError(t, err)
	_, err = svc.CallNext(ctx, "3", clinicDay)
	assert.Equal(t, entities.CodeQueueEmpty, apperrors.CodeOf(err))
}

func TestQueueService_IsRoomOccupied(t *testing.T) {
	svc, _, _ := newTestQueueService(t,
		queueEntry("A", "3", 1, entities.QueueStatusInConsultation),
		queueEntry("B", "4", 1, entities.QueueStatusWaiting),
	)
	ctx := context.Background()

	busy, err := svc.IsRoomOccupied(ctx, "3", clinicDay)
	require.NoError(t, err)
	assert.True(t, busy)

	busy, err = svc.IsRoomOccupied(ctx, "4", clinicDay)
	require.NoError(t, err)
	assert.False(t, busy)

	busy, err = svc.IsRoomOccupied(ctx, "3", "2025-06-02")
	require.NoError(t, err)
	assert.False(t, busy)

	occupant, err := svc.RoomOccupant(ctx, "3", clinicDay)
	require.NoError(t, err)
	assert.Equal(t, "A", occupant.ID)
}
