// Package watch is a publish/subscribe queue built on go-events.
package watch

import (
	"sync"

	"github.com/docker/go-events"
)

// Queue is the structure used to publish events and watch for them.
type Queue struct {
	mu          sync.Mutex
	broadcast   *events.Broadcaster
	cancelFuncs map[events.Sink]func()
	buffer      int
	closed      bool
}

// NewQueue creates a new publish/subscribe queue which supports watchers.
// The channels that it will create for subscriptions will have the buffer
// size specified by buffer. Events are queued per watcher, so a slow watcher
// never blocks Publish.
func NewQueue(buffer int) *Queue {
	return &Queue{
		broadcast:   events.NewBroadcaster(),
		cancelFuncs: make(map[events.Sink]func()),
		buffer:      buffer,
	}
}

// Watch returns a channel which will receive all items published to the
// queue from this point, until cancel is called.
func (q *Queue) Watch() (eventq chan events.Event, cancel func()) {
	return q.CallbackWatch(nil)
}

// CallbackWatch returns a channel which will receive all events published to
// the queue from this point that pass the check in the provided matcher. The
// returned cancel function stops the flow of events; the channel is left
// open, except when the queue was already closed.
func (q *Queue) CallbackWatch(matcher events.Matcher) (eventq chan events.Event, cancel func()) {
	ch := events.NewChannel(q.buffer)
	sink := events.Sink(events.NewQueue(ch))

	if matcher != nil {
		sink = events.NewFilter(sink, matcher)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		ch.Close()
		close(ch.C)
		return ch.C, func() {}
	}

	q.broadcast.Add(sink)

	var once sync.Once
	cancelFunc := func() {
		once.Do(func() {
			q.broadcast.Remove(sink)
			ch.Close()
			sink.Close()
		})
	}
	q.cancelFuncs[sink] = cancelFunc

	return ch.C, func() {
		q.mu.Lock()
		fn, ok := q.cancelFuncs[sink]
		delete(q.cancelFuncs, sink)
		q.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// Publish adds an item to the queue.
func (q *Queue) Publish(item events.Event) {
	q.broadcast.Write(item)
}

// Close closes the queue and cancels every watcher.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	cancelFuncs := q.cancelFuncs
	q.cancelFuncs = make(map[events.Sink]func())
	q.mu.Unlock()

	for _, fn := range cancelFuncs {
		fn()
	}
	return q.broadcast.Close()
}
