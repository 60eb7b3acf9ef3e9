package address

import (
	"strings"
	"sync"
)

// Arena interns Path values by (local fragments, base identity) so that
// structurally identical paths constructed through it share one
// instance. Interning is an optimization: correctness never depends on
// pointer identity, only on Key equality.
type Arena struct {
	mu    sync.Mutex
	paths map[arenaKey]*Path
}

type arenaKey struct {
	local string
	base  *Path
}

// NewArena returns an empty interning arena.
func NewArena() *Arena {
	return &Arena{paths: make(map[arenaKey]*Path)}
}

var defaultArena = NewArena()

// Purge drops every interned entry from the process-default arena.
// Outstanding Paths stay valid; later constructions simply produce
// fresh instances.
func Purge() { defaultArena.Purge() }

// Purge drops every interned entry.
func (a *Arena) Purge() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = make(map[arenaKey]*Path)
}

// New returns the interned Path for value. A *Path argument is returned
// unchanged.
func (a *Arena) New(value any) (*Path, error) {
	if p, ok := value.(*Path); ok {
		if p == nil {
			return nil, ErrEmptyPath
		}
		return p, nil
	}
	frags, err := Norm(value, false)
	if err != nil {
		return nil, err
	}
	return a.intern(frags, nil), nil
}

// NewBased returns the interned Path with the given local fragments
// anchored at base.
func (a *Arena) NewBased(value, base any) (*Path, error) {
	if _, ok := value.(*Path); ok {
		return nil, ErrAmbiguousBase
	}
	frags, err := Norm(value, false)
	if err != nil {
		return nil, err
	}
	bp, err := a.New(base)
	if err != nil {
		return nil, err
	}
	return a.intern(frags, bp), nil
}

func (a *Arena) intern(local []string, base *Path) *Path {
	key := arenaKey{local: strings.Join(local, Sep), base: base}
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.paths[key]; ok {
		return p
	}
	p := &Path{local: local, base: base}
	p.key = strings.Join(p.Fragments(), Sep)
	a.paths[key] = p
	return p
}
