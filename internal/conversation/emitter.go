package conversation

import "sync"

// emitter delivers events to the handler in order on its own goroutine, so
// the handler never runs under the controller lock and a slow consumer
// cannot stall a turn. A level event queued behind another level event
// replaces it: only the latest loudness matters to a consumer that is
// behind.
type emitter struct {
	fn func(Event)

	mu     sync.Mutex
	queue  []Event
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newEmitter(fn func(Event)) *emitter {
	e := &emitter{
		fn:   fn,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *emitter) emit(ev Event) {
	if e.fn == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if n := len(e.queue); n > 0 && ev.Kind == EventLevel && e.queue[n-1].Kind == EventLevel {
		e.queue[n-1] = ev
	} else {
		e.queue = append(e.queue, ev)
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *emitter) run() {
	defer close(e.done)
	for {
		select {
		case <-e.wake:
			e.drain()
		case <-e.quit:
			e.drain()
			return
		}
	}
}

func (e *emitter) drain() {
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			e.fn(ev)
		}
	}
}

// close delivers what is queued and stops the goroutine.
func (e *emitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.quit)
	<-e.done
}
