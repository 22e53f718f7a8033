package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestManualFiresInDeadlineOrder тестирует порядок срабатывания таймеров
func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var order []int
	m.AfterFunc(30*time.Millisecond, func() { order = append(order, 3) })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	m.AfterFunc(20*time.Millisecond, func() {
		order = append(order, 2)
		m.AfterFunc(5*time.Millisecond, func() { order = append(order, 25) })
	})
	stopped := m.AfterFunc(15*time.Millisecond, func() { order = append(order, 15) })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	m.Advance(29 * time.Millisecond)
	assert.Equal(t, []int{1, 2, 25}, order)
	assert.Equal(t, 1, m.Pending())

	m.Advance(time.Millisecond)
	assert.Equal(t, []int{1, 2, 25, 3}, order)
	assert.Equal(t, time.Unix(0, 0).Add(30*time.Millisecond), m.Now())
}

// TestDebounceCoalesces тестирует N вызовов в окне -> один запуск
func TestDebounceCoalesces(t *testing.T) {
	m := NewManual()
	d := NewDebouncer(m, 280*time.Millisecond)

	var calls, last int
	for i := 1; i <= 5; i++ {
		i := i
		d.Trigger(func() { calls++; last = i })
		m.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 0, calls)
	assert.True(t, d.Pending())

	m.Advance(180 * time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 5, last)
	assert.False(t, d.Pending())

	m.Advance(time.Second)
	assert.Equal(t, 1, calls)
}

func TestDebounceFlushAndCancel(t *testing.T) {
	m := NewManual()
	d := NewDebouncer(m, time.Second)

	var calls int
	assert.False(t, d.Flush())
	d.Trigger(func() { calls++ })
	assert.True(t, d.Flush())
	assert.Equal(t, 1, calls)

	// после Flush старый таймер не срабатывает
	m.Advance(2 * time.Second)
	assert.Equal(t, 1, calls)

	d.Trigger(func() { calls++ })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())
	m.Advance(2 * time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.Pending())
}

func TestDebounceReplacedReported(t *testing.T) {
	d := NewDebouncer(NewManual(), time.Second)
	assert.False(t, d.Trigger(func() {}))
	assert.True(t, d.Trigger(func() {}))
}

func TestDebounceRealClock(t *testing.T) {
	d := NewDebouncer(Real(), 20*time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
