package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/query/views"
)

func TestRenderQueue(t *testing.T) {
	var buf bytes.Buffer
	err := renderQueue(&buf, []*entities.QueueEntry{
		{ID: "q-2", RoomID: "3", QueuePosition: 1, PatientName: "Bola", Status: entities.QueueStatusInConsultation},
		{ID: "q-1", RoomID: "3", QueuePosition: 2, PatientName: "Ani", Status: entities.QueueStatusWaiting},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "Bola")
	assert.Contains(t, lines[1], "In consultation")
	assert.Contains(t, lines[2], "Waiting")
}

func TestRenderQueue_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderQueue(&buf, nil))
	assert.Contains(t, buf.String(), "no patients queued")
}

func TestQueueClient_List(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/queue", r.URL.Path)
		assert.Equal(t, "2025-06-01", r.URL.Query().Get("date"))
		assert.Equal(t, "3", r.URL.Query().Get("room_id"))
		_ = json.NewEncoder(w).Encode(listResponse{
			Date:    "2025-06-01",
			Entries: []*entities.QueueEntry{{ID: "q-1", RoomID: "3", Status: entities.QueueStatusWaiting}},
			Count:   1,
		})
	}))
	defer server.Close()

	entries, err := newQueueClient(server.URL+"/").List(context.Background(), "2025-06-01", "3")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "q-1", entries[0].ID)
}

func TestQueueClient_ListError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newQueueClient(server.URL).List(context.Background(), "2025-06-01", "")
	assert.Error(t, err)
}

func TestApplyMessage(t *testing.T) {
	view := views.NewQueueView()
	view.Replace([]*entities.QueueEntry{{ID: "q-1", RoomID: "3", Status: entities.QueueStatusWaiting, Version: 1}})

	assert.False(t, applyMessage(view, []byte(`{"type":"ack","action":"subscribe"}`)))
	assert.False(t, applyMessage(view, []byte("not json")))

	event := entities.NewQueueStatusEvent(&entities.QueueEntry{
		ID: "q-1", RoomID: "3", Status: entities.QueueStatusInConsultation, Version: 2,
	}, entities.QueueEventUpdated)
	data, err := json.Marshal(event)
	require.NoError(t, err)

	assert.True(t, applyMessage(view, data))
	assert.Equal(t, entities.QueueStatusInConsultation, view.Entries()[0].Status)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "receptionist", topicFor(""))
	assert.Equal(t, "room.3", topicFor("3"))
}
