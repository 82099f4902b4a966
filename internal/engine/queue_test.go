package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/timely"
)

func inputEvent(source string, ts timely.Timestamp) Event {
	return Event{Type: EventTypeInput, Source: source, Input: timely.WatermarkInput(ts)}
}

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	ok := q.Enqueue(inputEvent("orders", 3))
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, EventTypeInput, got.Type)
	assert.Equal(t, "orders", got.Source)
	require.True(t, got.Input.IsWatermark())
	assert.Equal(t, timely.Timestamp(3), *got.Input.Watermark)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, name := range []string{"a", "b", "c"} {
		q.Enqueue(inputEvent(name, 1))
	}

	for _, want := range []string{"a", "b", "c"} {
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, e.Source)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_Wait_SignalsEnqueue(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(inputEvent("orders", 1))
	}()

	select {
	case <-q.Wait():
		_, ok := q.TryDequeue()
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestEventQueue_Close_UnblocksWait(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Close()
	}()

	select {
	case <-q.Wait():
		assert.Equal(t, 0, q.Len())
		assert.True(t, q.isClosed())
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock after close")
	}
}

func TestEventQueue_Enqueue_AfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close()

	ok := q.Enqueue(inputEvent("orders", 1))
	assert.False(t, ok, "enqueue after close should return false")
}

func TestEventQueue_Len(t *testing.T) {
	q := newEventQueue()

	assert.Equal(t, 0, q.Len())

	q.Enqueue(inputEvent("a", 1))
	assert.Equal(t, 1, q.Len())

	q.Enqueue(inputEvent("b", 1))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())

	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				q.Enqueue(inputEvent("orders", timely.Timestamp(i)))
			}
		}()
	}
	wg.Wait()

	received := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		received++
	}
	assert.Equal(t, producers*eventsPerProducer, received)
}

func TestEventQueue_PerProducerOrder(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Enqueue(inputEvent(name, timely.Timestamp(i)))
			}
		}()
	}
	wg.Wait()

	last := map[string]timely.Timestamp{}
	for {
		e, ok := q.TryDequeue()
		if !ok {
			break
		}
		ts := *e.Input.Watermark
		if prev, seen := last[e.Source]; seen {
			assert.Greater(t, ts, prev, "source %s out of order", e.Source)
		}
		last[e.Source] = ts
	}
	assert.Len(t, last, 2)
}
