package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/notify"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func tierEvent() loyalty.Event {
	return loyalty.Event{
		ID:         "evt-1",
		Type:       loyalty.EventTierChanged,
		OccurredAt: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Member:     loyalty.MemberKey{GuestID: "guest-1", Scope: "hotel-1"},
		OldTier:    "BRONZE",
		NewTier:    "SILVER",
		Upgraded:   true,
	}
}

func TestKafkaSink_KeyedByGuest(t *testing.T) {
	w := &fakeWriter{}
	sink := notify.NewKafkaSink(w)

	require.NoError(t, sink.Publish(context.Background(), tierEvent()))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "guest-1", string(msg.Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "tier.changed", decoded["type"])
	assert.Equal(t, "SILVER", decoded["new_tier"])
	assert.Equal(t, true, decoded["upgraded"])
}

func TestKafkaSink_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	sink := notify.NewKafkaSink(&fakeWriter{err: boom})

	err := sink.Publish(context.Background(), tierEvent())
	assert.ErrorIs(t, err, boom)
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &notify.Recorder{}
	failing := &notify.Recorder{Err: boom}

	err := notify.Multi{ok, failing, nil}.Publish(context.Background(), tierEvent())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.Events(), 1)
	assert.Len(t, failing.Events(), 1)
}

func TestLogSink_WritesStructuredLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := notify.NewLogSink(zap.New(core))

	require.NoError(t, sink.Publish(context.Background(), tierEvent()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tier.changed", entries[0].Message)
	assert.Equal(t, "SILVER", entries[0].ContextMap()["new_tier"])
}
