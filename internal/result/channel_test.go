package result

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsumeOnce(t *testing.T) {
	ch := New[string]()

	_, ok := ch.Consume()
	assert.False(t, ok, "empty channel must not deliver")

	ch.Post("done")
	v, ok := ch.Consume()
	assert.True(t, ok)
	assert.Equal(t, "done", v)

	_, ok = ch.Consume()
	assert.False(t, ok, "second consume must return nothing")
}

func TestPostResetsConsumed(t *testing.T) {
	ch := New[int]()
	ch.Post(1)
	ch.Consume()

	ch.Post(2)
	v, ok := ch.Consume()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPostReplacesUnconsumed(t *testing.T) {
	ch := New[int]()
	ch.Post(1)
	ch.Post(2)

	v, ok := ch.Peek()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = ch.Consume()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestReadySignalsPost(t *testing.T) {
	ch := New[int]()
	ready := ch.Ready()

	go func() {
		time.Sleep(5 * time.Millisecond)
		ch.Post(9)
	}()

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("ready was not closed by Post")
	}

	ch.Consume()
	select {
	case <-ch.Ready():
		t.Fatal("ready must be open after consume")
	default:
	}
}

func TestConcurrentConsumersSeeOneDelivery(t *testing.T) {
	for round := 0; round < 200; round++ {
		ch := New[int]()
		var delivered atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if _, ok := ch.Consume(); ok {
						delivered.Add(1)
					}
				}
			}()
		}
		ch.Post(round)
		wg.Wait()

		if _, ok := ch.Consume(); ok {
			delivered.Add(1)
		}
		if got := delivered.Load(); got != 1 {
			t.Fatalf("round %d: delivered %d times", round, got)
		}
	}
}
