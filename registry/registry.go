package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croftja/treebus/address"
)

// Registry is the process-wide endpoint index: Path -> Record plus a
// reverse owner -> Records index used for bulk teardown. All mutation
// goes through its methods and every method leaves both indexes
// consistent before returning.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	owners  map[Owner]map[*Record]struct{}
	points  map[Key]*Point

	ctxMu    sync.Mutex
	contexts map[Owner]*RegContext

	sessMu       sync.RWMutex
	onSessionEnd SessionEndFunc

	log zerolog.Logger
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		records:  make(map[string]*Record),
		owners:   make(map[Owner]map[*Record]struct{}),
		points:   make(map[Key]*Point),
		contexts: make(map[Owner]*RegContext),
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// Point returns the live point for key, creating it with the given
// invoker and options on first use. An existing point is returned
// unchanged, options included.
func (g *Registry) Point(key Key, invoke Invoker, opts ...PointOption) *Point {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.points[key]; ok {
		return p
	}
	p := &Point{
		reg:     g,
		key:     key,
		invoke:  invoke,
		records: make(map[*Record]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	g.points[key] = p
	return p
}

// LookupPoint returns the live point for key, if one exists. Unlike
// Point it never creates one.
func (g *Registry) LookupPoint(key Key) (*Point, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.points[key]
	return p, ok
}

// AddPoint attaches a point to the record at path, creating the record
// if needed and indexing it under the point's owner.
func (g *Registry) AddPoint(p *Point, path any) error {
	dst, err := address.New(path)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.records[dst.Key()]
	if !ok {
		r = &Record{reg: g, path: dst, points: make(map[Key]*Point)}
	}
	if err := r.attachLocked(p); err != nil {
		return fmt.Errorf("%w (path %s)", err, dst)
	}
	g.records[dst.Key()] = r
	g.indexLocked(r, p.key.KeyOwner())
	g.log.Trace().Stringer("path", dst).Str("type", p.Type().String()).
		Msg("point attached")
	return nil
}

// RemovePoint detaches a point from the record at path, or from every
// record it belongs to when no path is given. Records left empty are
// expunged and owner index entries left empty are pruned.
func (g *Registry) RemovePoint(p *Point, paths ...any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var targets []*Record
	if len(paths) == 0 {
		targets = make([]*Record, 0, len(p.records))
		for r := range p.records {
			targets = append(targets, r)
		}
	} else {
		for _, path := range paths {
			dst, err := address.New(path)
			if err != nil {
				return err
			}
			r, ok := g.records[dst.Key()]
			if !ok {
				return fmt.Errorf("%w: %s", ErrNoRecord, dst)
			}
			targets = append(targets, r)
		}
	}
	for _, r := range targets {
		if err := r.detachLocked(p); err != nil {
			return fmt.Errorf("%w (path %s)", err, r.path)
		}
		g.unindexLocked(r, p.key.KeyOwner())
		if len(r.points) == 0 {
			delete(g.records, r.path.Key())
		}
	}
	if len(p.records) == 0 {
		delete(g.points, p.key)
	}
	return nil
}

// PointsForOwner returns a frozen snapshot of every point the owner has
// attached anywhere, letting teardown drain an owner without tracking
// registrations itself.
func (g *Registry) PointsForOwner(owner Owner) []*Point {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[*Point]struct{})
	var out []*Point
	for r := range g.owners[owner] {
		for k, p := range r.points {
			if k.KeyOwner() != owner {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Get returns the record at path, or nil when the path is unknown or
// malformed.
func (g *Registry) Get(path any) *Record {
	dst, err := address.New(path)
	if err != nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.records[dst.Key()]
}

// Record returns the record at path, failing when absent.
func (g *Registry) Record(path any) (*Record, error) {
	dst, err := address.New(path)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.records[dst.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRecord, dst)
	}
	return r, nil
}

// Contains reports whether a record exists at path.
func (g *Registry) Contains(path any) bool {
	return g.Get(path) != nil
}

// HasOwner reports whether the owner index holds any record for owner.
func (g *Registry) HasOwner(owner Owner) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.owners[owner]) > 0
}

// indexLocked indexes r under owner; g.mu must be held for writing.
func (g *Registry) indexLocked(r *Record, owner Owner) {
	set, ok := g.owners[owner]
	if !ok {
		set = make(map[*Record]struct{})
		g.owners[owner] = set
	}
	set[r] = struct{}{}
}

// unindexLocked drops r from the owner's index entry when the owner has
// no point left in it, pruning empty entries; g.mu must be held.
func (g *Registry) unindexLocked(r *Record, owner Owner) {
	for k := range r.points {
		if k.KeyOwner() == owner {
			return
		}
	}
	set := g.owners[owner]
	delete(set, r)
	if len(set) == 0 {
		delete(g.owners, owner)
	}
}

// ownerHasTypeLocked reports whether owner still has an endpoint of
// type t at path key pk; g.mu must be held.
func (g *Registry) ownerHasTypeLocked(owner Owner, pk string, t RPCType) bool {
	r, ok := g.records[pk]
	if !ok {
		return false
	}
	return r.hasOwnerTypeLocked(owner, t)
}

// ownerHasType is the locked variant for session journaling.
func (g *Registry) ownerHasType(owner Owner, pk string, t RPCType) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ownerHasTypeLocked(owner, pk, t)
}
