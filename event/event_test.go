package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit(t *testing.T) {
	t.Run("stamps missing timestamps", func(t *testing.T) {
		rec := &Recorder{}
		Emit(rec, Event{Type: TurnStart})

		events := rec.Events()
		require.Len(t, events, 1)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("keeps explicit timestamps", func(t *testing.T) {
		rec := &Recorder{}
		at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		Emit(rec, Event{Type: TurnEnd, Timestamp: at})
		assert.Equal(t, at, rec.Events()[0].Timestamp)
	})

	t.Run("nil sink is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() { Emit(nil, Event{Type: TurnStart}) })
	})
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var called int
	s := Multi(a, nil, b, SinkFunc(func(Event) { called++ }), Discard)

	s.Emit(Event{Type: FieldResolved, Field: "channel", Source: SourceMemory})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, 1, called)
}

func TestChannel(t *testing.T) {
	t.Run("delivers events", func(t *testing.T) {
		ch := NewChannel()
		ch.Emit(Event{Type: Generate, Step: 1})

		got := <-ch
		assert.Equal(t, Generate, got.Type)
		assert.Equal(t, 1, got.Step)
	})

	t.Run("drops when full", func(t *testing.T) {
		ch := make(Channel, 1)
		ch.Emit(Event{Type: Generate, Step: 1})
		ch.Emit(Event{Type: Generate, Step: 2})

		assert.Len(t, ch, 1)
		assert.Equal(t, 1, (<-ch).Step)
	})
}

func TestBlocking(t *testing.T) {
	t.Run("waits for the receiver", func(t *testing.T) {
		ch := make(chan Event)
		sink := Blocking(context.Background(), ch)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 1; i <= 3; i++ {
				sink.Emit(Event{Type: Generate, Step: i})
			}
		}()

		time.Sleep(20 * time.Millisecond)
		for i := 1; i <= 3; i++ {
			assert.Equal(t, i, (<-ch).Step)
		}
		<-done
	})

	t.Run("gives up once the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		sink := Blocking(ctx, make(chan Event))

		assert.NotPanics(t, func() { sink.Emit(Event{Type: TurnEnd}) })
	})
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(Event{Type: FieldMissing, Field: "a"})
	rec.Emit(Event{Type: FieldResolved, Field: "a"})
	rec.Emit(Event{Type: FieldMissing, Field: "b"})

	missing := rec.OfType(FieldMissing)
	require.Len(t, missing, 2)
	assert.Equal(t, "b", missing[1].Field)
	assert.Empty(t, rec.OfType(TurnError))
}

func TestEmitContext(t *testing.T) {
	shared, scoped := &Recorder{}, &Recorder{}

	EmitContext(context.Background(), shared, Event{Type: Generate})
	assert.Len(t, shared.Events(), 1)

	ctx := ContextWithSink(context.Background(), scoped)
	assert.Equal(t, Sink(scoped), SinkFromContext(ctx))
	EmitContext(ctx, shared, Event{Type: TurnEnd})

	assert.Len(t, shared.Events(), 2)
	require.Len(t, scoped.Events(), 1)
	assert.Equal(t, shared.Events()[1].Timestamp, scoped.Events()[0].Timestamp)
	assert.Nil(t, SinkFromContext(context.Background()))
}
