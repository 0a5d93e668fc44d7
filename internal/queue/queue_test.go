package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messhall/internal/queue"
)

func TestEncodeDecode(t *testing.T) {
	msg := queue.Reconcile("2024-03-10")
	assert.Equal(t, "reconcile|2024-03-10", queue.Encode(msg))
	assert.Equal(t, msg, queue.Decode(queue.Encode(msg)))

	empty := queue.Decode("reconcile|")
	assert.Equal(t, queue.TypeReconcile, empty.Type)
	assert.Empty(t, empty.Body)
	assert.Equal(t, queue.Message{Body: []byte("orphan")}, queue.Decode("orphan"))
	assert.Equal(t, "a|b", string(queue.Decode("t|a|b").Body))
}

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewInMemory(4)

	require.NoError(t, q.Publish(ctx, queue.Reconcile("2024-03-10")))
	require.NoError(t, q.Publish(ctx, queue.Reconcile("")))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	for _, want := range []string{"2024-03-10", ""} {
		select {
		case msg := <-msgs:
			assert.Equal(t, queue.TypeReconcile, msg.Type)
			assert.Equal(t, want, string(msg.Body))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := queue.NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, queue.Reconcile("")), context.Canceled)
}
