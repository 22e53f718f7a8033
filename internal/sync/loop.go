package sync

import (
	"context"
	"errors"
)

// ErrClosed координатор остановлен.
var ErrClosed = errors.New("sync: coordinator closed")

// loop единственная горутина-владелец состояния координатора. Входящие
// сообщения, срабатывания таймеров и вызовы API выполняются в ней
// строго по очереди.
type loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
}

func newLoop(buffer int) *loop {
	return &loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			return
		}
	}
}

// post ставит задачу в очередь, не дожидаясь выполнения.
// false, если цикл уже остановлен.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// call выполняет fn в цикле и ждёт завершения.
func (l *loop) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop останавливает цикл и ждёт выхода. Задачи, оставшиеся в очереди,
// не выполняются.
func (l *loop) stop() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
	<-l.done
}
