package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoopRunsInOrder(t *testing.T) {
	loop := NewLoop()
	var got []int
	loop.Post(func() { got = append(got, 1) })
	loop.Post(func() {
		got = append(got, 2)
		loop.Post(func() { got = append(got, 4) })
	})
	loop.Post(func() { got = append(got, 3) })

	assert.Equal(t, 4, loop.RunPending())
	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Zero(t, loop.RunPending())
}

func TestLoopRunProcessesPostsFromOtherGoroutines(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(stopped)
	}()

	var wg sync.WaitGroup
	done := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loop.Post(func() { done <- i })
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for len(seen) < 10 {
		select {
		case i := <-done:
			seen[i] = true
		case <-time.After(2 * time.Second):
			require.FailNow(t, "loop did not run posted work")
		}
	}

	cancel()
	<-stopped
}
