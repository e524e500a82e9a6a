package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBus(client, "", zerolog.Nop()), mr
}

func TestRedisBus_Channel(t *testing.T) {
	bus, _ := newTestBus(t)
	assert.Equal(t, "healthplix:changes:connection_requests", bus.Channel(TableConnectionRequests))
}

func TestRedisBus_RelayDeliversPublishedChanges(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Change, 4)
	sink := PublisherFunc(func(_ context.Context, c Change) error {
		received <- c
		return nil
	})

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- bus.Relay(ctx, sink, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	change, err := NewChange(Update, TableConnectionRequests,
		row{ID: "r1", PatientEmail: "p@x.com", Status: "pending"},
		row{ID: "r1", PatientEmail: "p@x.com", Status: "approved"},
	)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, change))

	select {
	case got := <-received:
		assert.Equal(t, Update, got.Type)
		assert.Equal(t, TableConnectionRequests, got.Table)
		assert.Equal(t, "approved", got.Field("status"))
	case <-time.After(2 * time.Second):
		t.Fatal("change was not relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on cancel")
	}
}

func TestRedisBus_PublishFailsWhenServerDown(t *testing.T) {
	bus, mr := newTestBus(t)
	mr.Close()

	err := bus.Publish(context.Background(), Change{Type: Insert, Table: TableCareAssignments})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
