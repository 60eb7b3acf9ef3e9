package registry

import (
	"context"
	"fmt"

	"github.com/croftja/treebus/address"
)

// Invoker executes an endpoint when a dispatch selects it.
type Invoker func(ctx context.Context, args []any) (any, error)

// Point is the live singleton for one Key. Points are deduplicated per
// Registry: asking for a Point with an equal Key returns the existing
// instance. A Point with CallType enforces at most one call endpoint
// per Record on attach.
type Point struct {
	reg    *Registry
	key    Key
	invoke Invoker

	// isSource marks the point as the origin of dispatches rather than
	// a destination; event fan-out skips the source point.
	isSource bool
	// remote marks points standing in for endpoints behind the
	// transport; a Record is local iff any attached point is not remote.
	remote bool

	// records is guarded by reg.mu.
	records map[*Record]struct{}
}

// PointOption configures a Point at first construction; options are
// ignored when an existing Point is returned for the Key.
type PointOption func(*Point)

// AsSource marks the point as a dispatch source.
func AsSource() PointOption {
	return func(p *Point) { p.isSource = true }
}

// AsRemote marks the point as standing in for a transport-side endpoint.
func AsRemote() PointOption {
	return func(p *Point) { p.remote = true }
}

// Key returns the identifying key.
func (p *Point) Key() Key { return p.key }

// Type returns the dispatch discipline of the endpoint.
func (p *Point) Type() RPCType { return p.key.RPC() }

// IsSource reports whether the point is a dispatch source.
func (p *Point) IsSource() bool { return p.isSource }

// Remote reports whether the point stands in for a transport endpoint.
func (p *Point) Remote() bool { return p.remote }

// Invoke runs the endpoint. Source-only points have no invoker and
// fail.
func (p *Point) Invoke(ctx context.Context, args []any) (any, error) {
	if p.invoke == nil {
		return nil, fmt.Errorf("%w: point %v has no invoker", ErrRPC, p.key)
	}
	return p.invoke(ctx, args)
}

// Paths returns the paths of every Record the point is attached to.
func (p *Point) Paths() []*address.Path {
	p.reg.mu.RLock()
	defer p.reg.mu.RUnlock()
	out := make([]*address.Path, 0, len(p.records))
	for r := range p.records {
		out = append(out, r.path)
	}
	return out
}

func (p *Point) String() string {
	return fmt.Sprintf("point(%v/%s source=%t remote=%t)",
		p.key, p.Type(), p.isSource, p.remote)
}
