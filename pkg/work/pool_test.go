package work

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSize(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultSize(), 1)
}

func TestPoolRunsTasks(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		ok := p.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
		})
		require.True(t, ok)
	}
	wg.Wait()
	assert.Equal(t, int64(50), atomic.LoadInt64(&counter))
}

func TestPoolShutdownDrains(t *testing.T) {
	p := New(1)

	var counter int64
	for i := 0; i < 10; i++ {
		require.True(t, p.Submit(func() { atomic.AddInt64(&counter, 1) }))
	}
	p.Shutdown()
	assert.Equal(t, int64(10), atomic.LoadInt64(&counter))
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(1)
	p.Shutdown()
	assert.False(t, p.Submit(func() {}))
}

func TestShutdownIdempotent(t *testing.T) {
	p := New(1)
	p.Shutdown()
	assert.NotPanics(t, p.Shutdown)
}
