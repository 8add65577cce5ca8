package queue_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/statecraft/go-statechart/queue"
)

func TestQueueFIFO(t *testing.T) {
	q := queue.New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueClear(t *testing.T) {
	q := queue.New[string]()
	q.Push("a")
	q.Push("b")
	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := queue.New[int]()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, q.Len())
}
