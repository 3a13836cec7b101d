package realtime

import (
	"context"
	"sync"
)

// subscription tracks one delivery goroutine and the transport resource
// behind it.
type subscription struct {
	once    sync.Once
	done    chan struct{}
	wg      sync.WaitGroup
	release func() error
	err     error
}

func newSubscription(release func() error) *subscription {
	if release == nil {
		release = func() error { return nil }
	}
	return &subscription{done: make(chan struct{}), release: release}
}

// run starts the delivery loop.
func (s *subscription) run(loop func(done <-chan struct{})) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		loop(s.done)
	}()
}

// Close stops delivery, releases the transport and waits for the loop.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.release()
		s.wg.Wait()
	})
	return s.err
}

// Noop is the transport used when realtime delivery is disabled.
type Noop struct{}

// Name implements Transport.
func (Noop) Name() string { return "none" }

// Subscribe returns an inert subscription.
func (Noop) Subscribe(_ context.Context, _ Handler) (Subscription, error) {
	return newSubscription(nil), nil
}

// Publish drops the change.
func (Noop) Publish(context.Context, Change) error { return nil }

// Close implements Transport.
func (Noop) Close() error { return nil }
