// Package address implements the hierarchical addressing scheme used to
// reach endpoints in a node tree. A Path is an immutable, interned
// sequence of dotted fragments, optionally anchored to a base Path so
// that relative addresses ("@child.leaf") can be resolved against it.
package address

import (
	"fmt"
	"strings"
)

// Sep separates path fragments in the dotted string form.
const Sep = "."

// relMarker prefixes the first fragment of a base-relative address.
const relMarker = '@'

// ResolverFunc is consulted during relative resolution. It receives the
// path the resolution is anchored at and the normalized fragments of the
// address being resolved, and returns the absolute fragments or nil when
// it has no opinion.
type ResolverFunc func(at *Path, fragments []string) []string

// Path is an immutable hierarchical address. Structurally identical
// paths created through the same Arena are the same pointer, but
// equality is always defined over the fully resolved fragment sequence
// (see Equal and Key), never over pointer identity.
type Path struct {
	local []string
	base  *Path
	key   string
}

// Norm returns the normalized fragment tuple for a value, which may be
// a dotted string, a []string, or a *Path. For a *Path the local
// fragments are returned unless full is true, in which case the fully
// resolved absolute fragments are returned.
func Norm(value any, full bool) ([]string, error) {
	switch v := value.(type) {
	case *Path:
		if v == nil {
			return nil, ErrEmptyPath
		}
		if full {
			return v.Fragments(), nil
		}
		return v.local, nil
	case string:
		if v == "" {
			return nil, ErrEmptyPath
		}
		return strings.Split(v, Sep), nil
	case []string:
		if len(v) == 0 {
			return nil, ErrEmptyPath
		}
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadValue, value)
	}
}

// New returns the interned Path for a dotted string, a fragment slice,
// or another Path (returned as-is).
func New(value any) (*Path, error) {
	return defaultArena.New(value)
}

// NewBased returns the interned Path whose local fragments come from
// value and which is anchored at base. The base may be a Path or any
// value New accepts.
func NewBased(value, base any) (*Path, error) {
	return defaultArena.NewBased(value, base)
}

// MustNew is New for values known to be valid; it panics otherwise.
func MustNew(value any) *Path {
	p, err := New(value)
	if err != nil {
		panic(err)
	}
	return p
}

// Fragments returns the fully resolved absolute fragment sequence.
func (p *Path) Fragments() []string {
	if p.base == nil {
		return p.local
	}
	bf := p.base.Fragments()
	out := make([]string, 0, len(bf)+len(p.local))
	out = append(out, bf...)
	return append(out, p.local...)
}

// Base returns the base Path, or nil for an absolute path.
func (p *Path) Base() *Path { return p.base }

// Absolute returns the path re-rooted as an absolute path with no base.
func (p *Path) Absolute() *Path {
	if p.base == nil {
		return p
	}
	abs, err := New(p.Fragments())
	if err != nil {
		// fragments of an existing path are never empty
		panic(err)
	}
	return abs
}

// Key returns the dotted absolute form; two paths are interchangeable
// as registry keys iff their Keys are equal.
func (p *Path) Key() string { return p.key }

func (p *Path) String() string { return p.key }

// Len returns the number of absolute fragments.
func (p *Path) Len() int {
	if p.base == nil {
		return len(p.local)
	}
	return p.base.Len() + len(p.local)
}

// At returns the i-th absolute fragment.
func (p *Path) At(i int) string { return p.Fragments()[i] }

// Last returns the final fragment.
func (p *Path) Last() string { return p.local[len(p.local)-1] }

// Equal reports whether two paths resolve to the same absolute address,
// regardless of how each one splits into base and local parts.
func (p *Path) Equal(other *Path) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.key == other.key
}

// Join composes the path with a suffix, which may be a dotted string, a
// fragment slice, or another Path. The result keeps whichever side owns
// a base; two different bases are ambiguous and fail.
func (p *Path) Join(other any) (*Path, error) {
	base := p.base
	var suffix []string
	if op, ok := other.(*Path); ok {
		if op.base != nil {
			if base != nil && base != op.base {
				return nil, ErrAmbiguousBase
			}
			base = op.base
		}
		suffix = op.local
	} else {
		frags, err := Norm(other, false)
		if err != nil {
			return nil, err
		}
		suffix = frags
	}
	local := make([]string, 0, len(p.local)+len(suffix))
	local = append(local, p.local...)
	local = append(local, suffix...)
	if base == nil {
		return New(local)
	}
	return NewBased(local, base)
}

// Resolve turns a potentially relative address into an absolute Path.
//
// An address whose first fragment starts with '@' is resolved against
// the path's base. Otherwise each resolver is consulted in order and
// the first non-nil answer wins. Failing both, the address is taken as
// already absolute, provided it only contains the characters allowed in
// a public address.
func (p *Path) Resolve(value any, resolvers []ResolverFunc) (*Path, error) {
	if _, ok := value.(*Path); ok {
		return nil, fmt.Errorf("%w: value to resolve is already a Path", ErrPath)
	}
	frags, err := Norm(value, false)
	if err != nil {
		return nil, err
	}
	if len(frags[0]) > 0 && frags[0][0] == relMarker {
		if p.base == nil {
			return nil, ErrNoBase
		}
		rest := make([]string, len(frags))
		copy(rest, frags)
		rest[0] = rest[0][1:]
		if rest[0] == "" {
			rest = rest[1:]
		}
		out := append(p.base.Fragments(), rest...)
		return New(out)
	}
	for _, resolver := range resolvers {
		if out := resolver(p, frags); out != nil {
			return New(out)
		}
	}
	dotted := strings.Join(frags, Sep)
	if !validAddress(dotted) {
		return nil, fmt.Errorf("%w: %q", ErrNotResolvable, dotted)
	}
	return New(frags)
}

// validAddress reports whether s only contains [a-z0-9._*].
func validAddress(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !(isLower || isDigit || c == '.' || c == '_' || c == '*') {
			return false
		}
	}
	return true
}
