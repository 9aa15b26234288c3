package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleCoalescesToLastCall(t *testing.T) {
	d := New()
	var calls atomic.Int32
	var last atomic.Value

	for _, v := range []string{"a", "ab", "abc"} {
		v := v
		d.Schedule("k", 20*time.Millisecond, func() {
			calls.Add(1)
			last.Store(v)
		})
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, "abc", last.Load())
	require.False(t, d.Pending("k"))
}

func TestKeysAreIndependent(t *testing.T) {
	d := New()
	var a, b atomic.Int32
	d.Schedule("a", 10*time.Millisecond, func() { a.Add(1) })
	d.Schedule("b", 10*time.Millisecond, func() { b.Add(1) })

	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCancelPreventsCall(t *testing.T) {
	d := New()
	var calls atomic.Int32
	d.Schedule("k", 20*time.Millisecond, func() { calls.Add(1) })

	require.True(t, d.Pending("k"))
	require.True(t, d.Cancel("k"))
	require.False(t, d.Cancel("k"))

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestCancelAll(t *testing.T) {
	d := New()
	var calls atomic.Int32
	d.Schedule("a", 20*time.Millisecond, func() { calls.Add(1) })
	d.Schedule("b", 20*time.Millisecond, func() { calls.Add(1) })
	require.Equal(t, 2, d.Len())

	d.CancelAll()
	require.Zero(t, d.Len())

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, calls.Load())
}
