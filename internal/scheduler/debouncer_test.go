package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_runsLastCallOnce(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := int32(i)
		require.True(t, d.Schedule("a.txt", func() {
			calls.Add(1)
			last.Store(i)
		}))
	}
	assert.Equal(t, 1, d.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(5), last.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_keysAreIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	fired := map[string]int{}
	for _, key := range []string{"a", "b", "c"} {
		key := key
		d.Schedule(key, func() {
			mu.Lock()
			fired[key]++
			mu.Unlock()
		})
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_cancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	d.Schedule("a", func() { calls.Add(1) })
	assert.True(t, d.Cancel("a"))
	assert.False(t, d.Cancel("a"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_stopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var calls atomic.Int32
	d.Schedule("a", func() { calls.Add(1) })
	d.Schedule("b", func() { calls.Add(1) })
	d.Stop()
	assert.Equal(t, 0, d.Pending())
	assert.False(t, d.Schedule("c", func() { calls.Add(1) }))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
