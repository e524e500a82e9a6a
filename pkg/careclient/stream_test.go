package careclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Watch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "connection_requests", r.URL.Query().Get("tables"))
		assert.Equal(t, "p@x.com", r.Header.Get(devEmailHeader))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(Event{Type: "INSERT", Table: TableConnectionRequests, New: []byte(`{"patient_email":"p@x.com"}`)})
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	got := make(chan Event, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Watch(ctx, []string{TableConnectionRequests}, func(ev Event) { got <- ev })
	}()

	select {
	case ev := <-got:
		assert.Equal(t, TableConnectionRequests, ev.Table)
		assert.True(t, ev.Touches("patient_email", "p@x.com"))
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestClient_WatchDialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	err := c.Watch(t.Context(), nil, func(Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
