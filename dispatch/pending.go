package dispatch

import (
	"context"
)

// Pending is the handle for an in-flight dispatch. A call resolves to a
// single result; an event fan-out resolves to one result per invoked
// destination, in no particular order, with the first observed failure
// surfaced once every destination has been attempted.
type Pending struct {
	done    chan struct{}
	results []any
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved returns an already-completed Pending carrying results.
func Resolved(results ...any) *Pending {
	p := newPending()
	p.results = results
	close(p.done)
	return p
}

// Failed returns an already-completed Pending carrying an error.
func Failed(err error) *Pending {
	p := newPending()
	p.err = err
	close(p.done)
	return p
}

// Done is closed once the dispatch has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until completion or context cancellation and returns the
// collected results and the first failure, if any.
func (p *Pending) Wait(ctx context.Context) ([]any, error) {
	select {
	case <-p.done:
		return p.results, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// One is Wait for single-destination dispatches: it returns the sole
// result.
func (p *Pending) One(ctx context.Context) (any, error) {
	results, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (p *Pending) complete(results []any, err error) {
	p.results = results
	p.err = err
	close(p.done)
}

// Join aggregates several pending dispatches into one that completes
// when all of them have, concatenating results and keeping the first
// failure.
func Join(pendings ...*Pending) *Pending {
	out := newPending()
	go func() {
		var results []any
		var firstErr error
		for _, p := range pendings {
			<-p.done
			results = append(results, p.results...)
			if firstErr == nil && p.err != nil {
				firstErr = p.err
			}
		}
		out.complete(results, firstErr)
	}()
	return out
}
