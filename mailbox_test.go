package offload

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_Order(t *testing.T) {
	m := newMailbox[int]()

	var got []int
	go m.run(func(i int) {
		got = append(got, i)
	})

	for i := 0; i < 100; i++ {
		assert.True(t, m.put(i))
	}
	m.close(true)

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMailbox_PutNeverBlocks(t *testing.T) {
	m := newMailbox[int]()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go m.run(func(int) {
		<-release
	})

	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			m.put(i)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("put blocked on a busy consumer")
	}

	close(release)
	m.close(true)
}

func TestMailbox_Close(t *testing.T) {
	m := newMailbox[string]()
	go m.run(func(string) {})

	m.close(true)
	m.close(true)
	assert.False(t, m.put("late"))
}
