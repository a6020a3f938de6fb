package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) (T, bool) {
	t.Helper()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced result")
		var zero T
		return zero, false
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := New[int](20 * time.Millisecond)
	var calls atomic.Int32

	var chans []<-chan int
	for i := 1; i <= 5; i++ {
		v := i
		chans = append(chans, d.Trigger(func() int {
			calls.Add(1)
			return v * 10
		}))
	}

	for _, ch := range chans {
		v, ok := receive(t, ch)
		require.True(t, ok)
		assert.Equal(t, 50, v, "every caller receives the latest computation")
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	d := New[string](10 * time.Millisecond)

	first, ok := receive(t, d.Trigger(func() string { return "a" }))
	require.True(t, ok)
	second, ok := receive(t, d.Trigger(func() string { return "b" }))
	require.True(t, ok)

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestDebouncer_Stop(t *testing.T) {
	d := New[int](50 * time.Millisecond)
	var calls atomic.Int32

	ch := d.Trigger(func() int {
		calls.Add(1)
		return 1
	})
	assert.True(t, d.Pending())
	d.Stop()

	_, ok := receive(t, ch)
	assert.False(t, ok, "channel is closed without a value")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, d.Pending())
}
