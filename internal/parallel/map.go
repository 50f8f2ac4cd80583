package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map is a bounded parallel mapping function, which runs at most limit mapFuncs
// at once and waits for their completion. The input and output are represented
// as iterators, so the typical usage is.
//
//	for result, err := range parallel.NewMap(ctx, 5, f).Iter(input) {}
//
// Every started mapFunc is reported exactly once, including those which failed
// or which observed a canceled context. Canceled context only stops starting
// new entries.
type Map[E, D any] struct {
	parentCtx    context.Context
	cancelParent context.CancelFunc
	g            *errgroup.Group
	gctx         context.Context
	mapped       chan result[D]
	mapFunc      func(context.Context, E) (D, error)
}

func NewMap[E, D any](parentCtx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	if limit < 1 {
		limit = 1
	}
	parentCtx, cancelParent := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(parentCtx)
	// +1 for the goroutine feeding the workers
	g.SetLimit(limit + 1)

	return &Map[E, D]{
		parentCtx:    parentCtx,
		cancelParent: cancelParent,
		g:            g,
		gctx:         gctx,
		mapped:       make(chan result[D], limit),
		mapFunc:      mapFunc,
	}
}

func (s *Map[E, D]) goWorkers(seq iter.Seq2[E, error]) {
	s.g.Go(func() error {
		for entry, nerr := range seq {
			if s.gctx.Err() != nil {
				return nil
			}
			if nerr != nil {
				continue
			}
			s.g.Go(func() error {
				// canceled while waiting for a free slot
				if s.gctx.Err() != nil {
					return nil
				}
				d, err := s.mapFunc(s.gctx, entry)
				s.mapped <- result[D]{d: d, e: err}
				return nil
			})
		}
		return nil
	})
}

// Iter starts the workers and yields results in a completion order.
// Stopping the iteration cancels the remaining work, results of the
// already running mapFuncs are discarded.
func (s *Map[E, D]) Iter(seq iter.Seq2[E, error]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		defer s.cancelParent()
		s.goWorkers(seq)

		go func() {
			_ = s.g.Wait()
			close(s.mapped)
		}()

		for r := range s.mapped {
			if !yield(r.d, r.e) {
				go drain(s.mapped)
				return
			}
		}
	}
}

func drain[D any](ch <-chan result[D]) {
	for range ch {
	}
}

// FromSlice adapts a slice to the input of Map.Iter
func FromSlice[T any](s []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, x := range s {
			if !yield(x, nil) {
				return
			}
		}
	}
}
