package post

import (
	"sync"
	"testing"

	"github.com/bmizerany/assert"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	assert.Equal(t, 1, Tick())
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, Tick())
}

func TestQueueOrderAndNesting(t *testing.T) {
	q := NewQueue()
	var order []int
	q.Post(func() {
		order = append(order, 1)
		q.Post(func() { order = append(order, 3) })
	})
	q.Post(func() { panic("boom") })
	q.Post(func() { order = append(order, 2) })
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 4, q.Tick())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrentPost(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Tick())
	assert.Equal(t, 800, count)
}
