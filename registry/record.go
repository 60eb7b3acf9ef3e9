package registry

import (
	"github.com/croftja/treebus/address"
)

// Record is the per-path container of attached Points. Records are
// created lazily on first registration at a path and expunged from the
// Registry as soon as they hold no Points.
type Record struct {
	reg  *Registry
	path *address.Path

	// points is guarded by reg.mu.
	points map[Key]*Point
}

// Path returns the address the record lives at.
func (r *Record) Path() *address.Path { return r.path }

// Len returns the number of attached points.
func (r *Record) Len() int {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	return len(r.points)
}

// Owners returns the distinct owners of the attached points.
func (r *Record) Owners() []Owner {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	return r.ownersLocked()
}

func (r *Record) ownersLocked() []Owner {
	seen := make(map[Owner]struct{}, len(r.points))
	out := make([]Owner, 0, len(r.points))
	for k := range r.points {
		o := k.KeyOwner()
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

// IsLocal reports whether any attached point lives in this process.
func (r *Record) IsLocal() bool {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	for _, p := range r.points {
		if !p.remote {
			return true
		}
	}
	return false
}

// PointsOf returns the attached points of one rpc type.
func (r *Record) PointsOf(t RPCType) []*Point {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	return r.pointsOfLocked(t)
}

func (r *Record) pointsOfLocked(t RPCType) []*Point {
	out := make([]*Point, 0, len(r.points))
	for _, p := range r.points {
		if p.Type() == t {
			out = append(out, p)
		}
	}
	return out
}

// Point returns the attached point for a key, if any.
func (r *Record) Point(k Key) (*Point, bool) {
	r.reg.mu.RLock()
	defer r.reg.mu.RUnlock()
	p, ok := r.points[k]
	return p, ok
}

// attachLocked adds a point; reg.mu must be held for writing.
func (r *Record) attachLocked(p *Point) error {
	if _, ok := r.points[p.key]; ok {
		return ErrDuplicatePoint
	}
	if p.Type() == CallType {
		for k := range r.points {
			if k.RPC() == CallType {
				return ErrDuplicateCall
			}
		}
	}
	r.points[p.key] = p
	p.records[r] = struct{}{}
	return nil
}

// detachLocked removes a point; reg.mu must be held for writing.
func (r *Record) detachLocked(p *Point) error {
	if _, ok := r.points[p.key]; !ok {
		return ErrNotAttached
	}
	delete(r.points, p.key)
	delete(p.records, r)
	return nil
}

// hasOwnerTypeLocked reports whether any attached point belongs to
// owner with rpc type t; reg.mu must be held.
func (r *Record) hasOwnerTypeLocked(owner Owner, t RPCType) bool {
	for k := range r.points {
		if k.RPC() == t && k.KeyOwner() == owner {
			return true
		}
	}
	return false
}
