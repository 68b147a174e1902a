package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueOrder(t *testing.T) {
	q := newTaskQueue()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.push(func() { got = append(got, i) }))
	}
	for i := 0; i < 100; i++ {
		task, ok := q.pop()
		require.True(t, ok)
		task()
	}

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTaskQueueCloseDrains(t *testing.T) {
	q := newTaskQueue()

	ran := 0
	q.push(func() { ran++ })
	q.push(func() { ran++ })
	q.close()

	assert.False(t, q.push(func() { ran++ }))
	for {
		task, ok := q.pop()
		if !ok {
			break
		}
		task()
	}
	assert.Equal(t, 2, ran)
}

func TestTaskQueuePopBlocksUntilPush(t *testing.T) {
	q := newTaskQueue()
	popped := make(chan struct{})

	go func() {
		task, ok := q.pop()
		if ok {
			task()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.push(func() { close(popped) })

	select {
	case <-popped:
	case <-time.After(time.Second):
		t.Fatal("pop did not return after push")
	}
}
