// Package dispatch resolves a destination path to its registered
// endpoints and invokes them: a call goes to exactly one endpoint, an
// event fans out to every endpoint except its source. Dispatch returns
// a Pending handle; callers impose their own timeout by cancelling the
// context they wait with.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/registry"
)

// Flag modifies the behavior of one dispatch.
type Flag uint8

const (
	// FlagLocal restricts the dispatch to in-process endpoints.
	FlagLocal Flag = 1 << iota
)

// Details carries one dispatch request.
type Details struct {
	Type   registry.RPCType
	Source *registry.Point
	Dst    *address.Path
	Flags  Flag
	Args   []any
}

// NewDetails validates and assembles dispatch details. The destination
// may be anything address.New accepts.
func NewDetails(t registry.RPCType, src *registry.Point, dst any, flags Flag, args ...any) (Details, error) {
	if t != registry.CallType && t != registry.EventType {
		return Details{}, fmt.Errorf("%w: type %v", ErrBadDetails, t)
	}
	if src == nil {
		return Details{}, fmt.Errorf("%w: nil source point", ErrBadDetails)
	}
	path, err := address.New(dst)
	if err != nil {
		return Details{}, fmt.Errorf("%w: %v", ErrBadDetails, err)
	}
	return Details{Type: t, Source: src, Dst: path, Flags: flags, Args: args}, nil
}

// Dispatcher routes dispatch requests through a registry.
type Dispatcher struct {
	reg *registry.Registry
	log zerolog.Logger
}

// New returns a dispatcher over reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		reg: reg,
		log: log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch resolves the destination record and routes the request.
// Lookup and selection errors are returned synchronously; endpoint
// failures travel through the Pending.
func (d *Dispatcher) Dispatch(ctx context.Context, det Details) (*Pending, error) {
	rec, err := d.reg.Record(det.Dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDestination, det.Dst)
	}
	points := rec.PointsOf(det.Type)
	if det.Flags&FlagLocal != 0 {
		kept := points[:0]
		for _, p := range points {
			if p.Remote() {
				continue
			}
			kept = append(kept, p)
		}
		points = kept
	}
	switch det.Type {
	case registry.CallType:
		return d.dispatchCall(ctx, det, points)
	case registry.EventType:
		return d.dispatchEvent(ctx, det, points)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, det.Type)
	}
}

func (d *Dispatcher) dispatchCall(ctx context.Context, det Details, points []*registry.Point) (*Pending, error) {
	var dst *registry.Point
	for _, p := range points {
		if p == det.Source {
			continue
		}
		if dst != nil {
			return nil, fmt.Errorf("%w at %s", ErrManyDestinations, det.Dst)
		}
		dst = p
	}
	if dst == nil {
		return nil, fmt.Errorf("%w: no call endpoint at %s", ErrNoDestination, det.Dst)
	}
	pending := newPending()
	go func() {
		result, err := dst.Invoke(ctx, det.Args)
		if err != nil {
			d.log.Debug().Err(err).Stringer("path", det.Dst).Msg("call failed")
			pending.complete(nil, err)
			return
		}
		pending.complete([]any{result}, nil)
	}()
	return pending, nil
}

// dispatchEvent invokes every destination except the source point and
// joins the results; delivery order across destinations is undefined
// and one failing destination never blocks delivery to the others.
func (d *Dispatcher) dispatchEvent(ctx context.Context, det Details, points []*registry.Point) (*Pending, error) {
	var dests []*registry.Point
	for _, p := range points {
		// source-flagged points emit events, they never receive them
		if p == det.Source || p.IsSource() {
			continue
		}
		dests = append(dests, p)
	}
	pending := newPending()
	go func() {
		var (
			mu       sync.Mutex
			results  []any
			firstErr error
			wg       sync.WaitGroup
		)
		for _, p := range dests {
			wg.Add(1)
			go func(p *registry.Point) {
				defer wg.Done()
				result, err := p.Invoke(ctx, det.Args)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				results = append(results, result)
			}(p)
		}
		wg.Wait()
		if firstErr != nil {
			d.log.Debug().Err(firstErr).Stringer("path", det.Dst).Msg("event delivery failed")
		}
		pending.complete(results, firstErr)
	}()
	return pending, nil
}
