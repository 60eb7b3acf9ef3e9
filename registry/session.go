package registry

import (
	"sync"

	"github.com/croftja/treebus/address"
)

// JournalEntry records one type-level change made through a session: an
// rpc type appearing at (Removed=false) or vanishing from (Removed=true)
// a path for the session's owner.
type JournalEntry struct {
	Path    *address.Path
	Type    RPCType
	Removed bool
}

// SessionEndFunc observes a completed session with its frozen journal.
type SessionEndFunc func(owner Owner, journal []JournalEntry)

// OnSessionEnd installs the session completion observer. The observer
// runs synchronously inside Session.End, before another session for the
// same owner may open.
func (g *Registry) OnSessionEnd(fn SessionEndFunc) {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()
	g.onSessionEnd = fn
}

// RegContext is the per-owner registration context. Sessions opened
// through the same context execute one at a time; contexts for
// different owners proceed independently.
type RegContext struct {
	reg   *Registry
	owner Owner
	sem   sync.Mutex

	// active counts sessions open or waiting to open on this context;
	// guarded by reg.ctxMu. The context may be pruned only at zero.
	active int
}

// NewSessionFor returns the registration context for owner, creating it
// on first use.
func (g *Registry) NewSessionFor(owner Owner) *RegContext {
	g.ctxMu.Lock()
	defer g.ctxMu.Unlock()
	if c, ok := g.contexts[owner]; ok {
		return c
	}
	c := &RegContext{reg: g, owner: owner}
	g.contexts[owner] = c
	return c
}

// Begin opens a session, blocking until any in-flight session for the
// same owner has fully closed. Every Begin funnels through the owner's
// live context, so a RegContext held across a prune still serializes
// against sessions opened through a replacement context.
func (c *RegContext) Begin() *Session {
	g := c.reg
	g.ctxMu.Lock()
	cur, ok := g.contexts[c.owner]
	if !ok {
		cur = c
		g.contexts[c.owner] = c
	}
	cur.active++
	g.ctxMu.Unlock()
	cur.sem.Lock()
	return &Session{ctx: cur}
}

// Session is an append-only journaled batch of endpoint changes for one
// owner. It must be closed with End exactly once.
type Session struct {
	ctx     *RegContext
	journal []JournalEntry
	closed  bool
}

// Owner returns the owner the session is scoped to.
func (s *Session) Owner() Owner { return s.ctx.owner }

// AddPoint attaches a point through the registry, journaling the change
// when it broadens the owner's set of endpoint types at the path.
func (s *Session) AddPoint(p *Point, path any) error {
	if s.closed {
		return ErrSessionClosed
	}
	dst, err := address.New(path)
	if err != nil {
		return err
	}
	g := s.ctx.reg
	owner := p.key.KeyOwner()
	t := p.Type()
	had := t != 0 && g.ownerHasType(owner, dst.Key(), t)
	if err := g.AddPoint(p, dst); err != nil {
		return err
	}
	if t != 0 && !had {
		s.journal = append(s.journal, JournalEntry{Path: dst, Type: t})
	}
	return nil
}

// RemovePoint detaches a point from the record at path, or from every
// record it belongs to when no path is given, journaling each path
// where the owner's last endpoint of that type went away.
func (s *Session) RemovePoint(p *Point, paths ...any) error {
	if s.closed {
		return ErrSessionClosed
	}
	g := s.ctx.reg
	owner := p.key.KeyOwner()
	t := p.Type()
	var targets []*address.Path
	if len(paths) == 0 {
		targets = p.Paths()
	} else {
		for _, path := range paths {
			dst, err := address.New(path)
			if err != nil {
				return err
			}
			targets = append(targets, dst)
		}
	}
	for _, dst := range targets {
		if err := g.RemovePoint(p, dst); err != nil {
			return err
		}
		if t != 0 && !g.ownerHasType(owner, dst.Key(), t) {
			s.journal = append(s.journal, JournalEntry{Path: dst, Type: t, Removed: true})
		}
	}
	return nil
}

// Journal returns a copy of the entries recorded so far.
func (s *Session) Journal() []JournalEntry {
	out := make([]JournalEntry, len(s.journal))
	copy(out, s.journal)
	return out
}

// End freezes the journal, emits the session completion event, and
// releases the owner's session slot. The owner's context is dropped
// once it holds no live records and no session is open or waiting on
// it.
func (s *Session) End() {
	if s.closed {
		return
	}
	s.closed = true
	c := s.ctx
	g := c.reg
	g.sessMu.RLock()
	fn := g.onSessionEnd
	g.sessMu.RUnlock()
	if fn != nil {
		fn(c.owner, s.Journal())
	}
	c.sem.Unlock()
	g.ctxMu.Lock()
	c.active--
	if c.active == 0 && g.contexts[c.owner] == c && !g.HasOwner(c.owner) {
		delete(g.contexts, c.owner)
	}
	g.ctxMu.Unlock()
}
