package schedule

import (
	"sync"
	"time"
)

// Debouncer откладывает вызов до окна тишины. Слот ровно один:
// новый Trigger заменяет ожидающую функцию.
type Debouncer struct {
	sched  Scheduler
	window time.Duration

	mu      sync.Mutex
	gen     uint64
	pending func()
	timer   Timer
}

// NewDebouncer создаёт дебаунсер с окном window.
func NewDebouncer(sched Scheduler, window time.Duration) *Debouncer {
	if sched == nil {
		sched = Real()
	}
	return &Debouncer{sched: sched, window: window}
}

// Window длительность окна.
func (d *Debouncer) Window() time.Duration { return d.window }

// Trigger отменяет ожидающий вызов и планирует fn через окно.
// Возвращает true, если ожидающий вызов был заменён.
func (d *Debouncer) Trigger(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := d.pending != nil
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = d.sched.AfterFunc(d.window, func() { d.fire(gen) })
	return replaced
}

// fire выполняет слот, если за время ожидания его не заменили.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.take()
	d.mu.Unlock()
	fn()
}

// Flush немедленно выполняет ожидающий вызов. false, если слот пуст.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return false
	}
	fn := d.take()
	d.mu.Unlock()
	fn()
	return true
}

// Cancel сбрасывает ожидающий вызов без выполнения.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return false
	}
	d.take()
	return true
}

// Pending есть ли ожидающий вызов.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// take очищает слот; вызывается под d.mu.
func (d *Debouncer) take() func() {
	fn := d.pending
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return fn
}
