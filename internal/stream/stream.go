// Package stream turns change events into lazy, restartable sequences of
// snapshots. A Stream fetches nothing until it is subscribed, emits a first
// snapshot right away and refetches whenever one of its topics changes.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/dnspotify/server/internal/domain"
)

// Source delivers change events by topic. *pubsub.Hub implements it.
type Source interface {
	Subscribe(topic string, buffer int) (<-chan domain.Event, func())
}

// Fetcher reads the current value of a stream.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Snapshot is one emitted value. A failed fetch yields a snapshot with Err
// set; the stream keeps running.
type Snapshot[T any] struct {
	Data T
	Err  error
	At   time.Time
}

// DefaultSettle is how long a stream waits after a change before it
// refetches, so that bursts collapse into one snapshot.
const DefaultSettle = 50 * time.Millisecond

// Stream pairs topics with a fetcher.
type Stream[T any] struct {
	src    Source
	topics []string
	fetch  Fetcher[T]
	settle time.Duration
	now    func() time.Time
}

// New creates a stream over topics. The first topic names the stream.
func New[T any](src Source, fetch Fetcher[T], topics ...string) *Stream[T] {
	return &Stream[T]{
		src:    src,
		topics: topics,
		fetch:  fetch,
		settle: DefaultSettle,
		now:    time.Now,
	}
}

// WithSettle sets the coalescing delay. Zero refetches on every change.
func (s *Stream[T]) WithSettle(d time.Duration) *Stream[T] {
	s.settle = d
	return s
}

// Topic returns the stream's name.
func (s *Stream[T]) Topic() string {
	if len(s.topics) == 0 {
		return ""
	}
	return s.topics[0]
}

// Subscribe starts the sequence. The channel is closed once ctx is done.
// Each call is independent, so subscribing again restarts the sequence.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan Snapshot[T] {
	out := make(chan Snapshot[T], 1)
	go s.run(ctx, out)
	return out
}

func (s *Stream[T]) run(ctx context.Context, out chan<- Snapshot[T]) {
	defer close(out)

	// Subscribe before the first fetch so no change between the two is lost.
	dirty := make(chan struct{}, 1)
	cancels := make([]func(), 0, len(s.topics))
	var wg sync.WaitGroup
	for _, topic := range s.topics {
		events, cancel := s.src.Subscribe(topic, 8)
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range events {
				select {
				case dirty <- struct{}{}:
				default:
				}
			}
		}()
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
		wg.Wait()
	}()

	if !s.emit(ctx, out) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirty:
		}

		if s.settle > 0 {
			timer := time.NewTimer(s.settle)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			select {
			case <-dirty:
			default:
			}
		}

		if !s.emit(ctx, out) {
			return
		}
	}
}

func (s *Stream[T]) emit(ctx context.Context, out chan<- Snapshot[T]) bool {
	data, err := s.fetch(ctx)
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- Snapshot[T]{Data: data, Err: err, At: s.now()}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Frame is a snapshot with its type erased, ready to be encoded.
type Frame struct {
	Topic string    `json:"topic"`
	Data  any       `json:"data"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Feed is a stream of any element type.
type Feed interface {
	Topic() string
	Frames(ctx context.Context) <-chan Frame
}

// Frames subscribes and converts every snapshot to a Frame.
func (s *Stream[T]) Frames(ctx context.Context) <-chan Frame {
	snaps := s.Subscribe(ctx)
	out := make(chan Frame, 1)
	topic := s.Topic()
	go func() {
		defer close(out)
		for snap := range snaps {
			f := Frame{Topic: topic, At: snap.At}
			if snap.Err != nil {
				f.Error = snap.Err.Error()
			} else {
				f.Data = snap.Data
			}
			select {
			case out <- f:
			case <-ctx.Done():
				// drain so run can observe ctx and exit
				for range snaps {
				}
				return
			}
		}
	}()
	return out
}
