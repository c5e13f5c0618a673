package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/pairing-server/internal/sse"
)

func TestEventsHandler_Unauthenticated(t *testing.T) {
	handler := NewEventsHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	handler := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := handler.sendRawEvent(rec, rec, sse.Event{
		Type: "connection.accepted",
		Data: json.RawMessage(`{"connectionId":"c-1"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "event: connection.accepted\ndata: {\"connectionId\":\"c-1\"}\n\n", rec.Body.String())
}

type sseFrame struct {
	Event string
	Data  string
}

func readFrame(t *testing.T, reader *bufio.Reader) sseFrame {
	t.Helper()
	var frame sseFrame
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if frame.Event != "" {
				return frame
			}
		case strings.HasPrefix(line, "event: "):
			frame.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsHandler_StreamsConnectionEvents(t *testing.T) {
	srv := newTestServer(t)
	doctor := srv.doctor(t, "kim")
	patient := srv.patient(t, "lee")

	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?access_token="+patient.token, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	connected := readFrame(t, reader)
	assert.Equal(t, "connected", connected.Event)
	assert.Contains(t, connected.Data, patient.ID)

	rec := srv.do(t, http.MethodPost, "/api/connections", &doctor, map[string]any{
		"doctor_id": doctor.ID, "patient_id": patient.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := connectionID(t, rec)

	frame := readFrame(t, reader)
	assert.Equal(t, "connection.requested", frame.Event)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(frame.Data), &payload))
	assert.Equal(t, id, payload["connectionId"])
	assert.Equal(t, "pending", payload["status"])
	assert.Equal(t, doctor.ID, payload["actorId"])
}
