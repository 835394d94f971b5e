package engine

import (
	tomb "gopkg.in/tomb.v2"
)

// Dispatcher serialises work onto one goroutine. Everything that reads or
// writes the store goes through it, so the store itself needs no locking.
type Dispatcher struct {
	tasks chan func()
	t     *tomb.Tomb
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		// Unbuffered: once a send succeeds the loop owns the task and will
		// run it.
		tasks: make(chan func()),
	}
}

// Start launches the loop under t. It must be called before Do.
func (d *Dispatcher) Start(t *tomb.Tomb) {
	d.t = t
	t.Go(d.run)
}

func (d *Dispatcher) run() error {
	for {
		select {
		case <-d.t.Dying():
			return nil
		case task := <-d.tasks:
			task()
		}
	}
}

// Do runs f on the loop and waits for it to finish. It must not be called
// from the loop itself.
func (d *Dispatcher) Do(f func()) error {
	if d.t == nil {
		return ErrBoardClosed
	}

	done := make(chan struct{})
	select {
	case <-d.t.Dying():
		return ErrBoardClosed
	case d.tasks <- func() {
		defer close(done)
		f()
	}:
	}
	<-done
	return nil
}
