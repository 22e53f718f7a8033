// Package schedule абстрагирует отложенный запуск функций, чтобы
// дебаунс и повторные запросы можно было тестировать на виртуальных часах.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Timer отменяемый отложенный вызов.
type Timer interface {
	// Stop отменяет вызов; false если он уже выполнен или отменён.
	Stop() bool
}

// Scheduler планирует fn через d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

type realScheduler struct{}

// Real планировщик на системных часах.
func Real() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (realScheduler) Now() time.Time { return time.Now() }

// Manual виртуальные часы для тестов. Таймеры срабатывают синхронно
// внутри Advance в порядке дедлайнов.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	m        *Manual
	id       uint64
	deadline time.Time
	fn       func()
}

// NewManual создаёт виртуальные часы.
func NewManual() *Manual {
	return &Manual{
		now:    time.Unix(0, 0),
		timers: make(map[uint64]*manualTimer),
	}
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, id: m.seq, deadline: m.now.Add(d), fn: fn}
	m.timers[t.id] = t
	return t
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending число незапущенных таймеров.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance сдвигает часы на d и запускает все наступившие таймеры.
// Таймеры, запланированные колбэками и попавшие в окно, тоже срабатывают.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.timers, next.id)
		if next.deadline.After(m.now) {
			m.now = next.deadline
		}
		m.mu.Unlock()

		next.fn()
	}
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}
