// Package node implements the tree of addressable objects. A Node is
// constructed unbound, binds into the tree at a path where it registers
// its declared endpoints, and unbinds exactly once no matter how many
// callers race the teardown. Cross-boundary node references degrade to
// Proxy path handles, never raw pointers.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/registry"
)

// SelfName registers an endpoint at the node's own path instead of a
// child fragment.
const SelfName = "."

// CallSpec declares one call endpoint.
type CallSpec struct {
	Name string
	Func registry.Invoker
}

// HandlerSpec declares one event handler endpoint.
type HandlerSpec struct {
	Name string
	Func registry.Invoker
}

// SignalSpec declares one emitted event.
type SignalSpec struct {
	Name string
}

// Endpoints is the explicit registration table of a node: the set of
// endpoints bound when the node binds. Endpoints are data, not
// introspection.
type Endpoints struct {
	Calls    []CallSpec
	Handlers []HandlerSpec
	Signals  []SignalSpec
}

// Describer is implemented by types that carry their own endpoint
// table.
type Describer interface {
	Describe() Endpoints
}

// Hook observes a node lifecycle event.
type Hook func(ctx context.Context, n *Node)

type hookList struct {
	mu  sync.Mutex
	fns []Hook
}

func (h *hookList) add(fn Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *hookList) notify(ctx context.Context, n *Node) {
	h.mu.Lock()
	fns := make([]Hook, len(h.fns))
	copy(fns, h.fns)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, n)
	}
}

type unbindOp struct {
	done chan struct{}
	err  error
}

// Node is one element of the addressable tree.
type Node struct {
	id        string
	endpoints Endpoints

	mu         sync.Mutex
	path       *address.Path
	nctx       *Context
	parent     *Node
	registered bool
	unbind     *unbindOp

	childMu  sync.Mutex
	children map[string]*Node

	bound      hookList
	unbinding  hookList
	unbound    hookList
	childAdded hookList
}

// New returns an unbound node with the given endpoint table.
func New(eps Endpoints) *Node {
	return &Node{
		id:        uuid.NewString(),
		endpoints: eps,
		children:  make(map[string]*Node),
	}
}

// For returns an unbound node described by d.
func For(d Describer) *Node {
	return New(d.Describe())
}

// ID returns the node's stable identity token.
func (n *Node) ID() string { return n.id }

// SerialID marks nodes for envelope serialization.
func (n *Node) SerialID() string { return NodeSerialID }

// Path returns the bound path, or nil while unbound.
func (n *Node) Path() *address.Path {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// Context returns the bound context, or nil while unbound.
func (n *Node) Context() *Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nctx
}

// Parent returns the parent node, or nil.
func (n *Node) Parent() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

// Registered reports whether the node's endpoints are registered.
func (n *Node) Registered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registered
}

// OnBound registers a hook fired after a successful bind.
func (n *Node) OnBound(fn Hook) { n.bound.add(fn) }

// OnUnbinding registers a hook fired during teardown, after the node's
// endpoints are drained and its children have unwound.
func (n *Node) OnUnbinding(fn Hook) { n.unbinding.add(fn) }

// OnUnbound registers a hook fired once teardown has completed.
func (n *Node) OnUnbound(fn Hook) { n.unbound.add(fn) }

// OnChildAdded registers a hook fired with each child bound under the
// node; the hook receives the child.
func (n *Node) OnChildAdded(fn Hook) { n.childAdded.add(fn) }

func (n *Node) logger() zerolog.Logger {
	nctx := n.Context()
	if nctx == nil {
		return zerolog.Nop()
	}
	return nctx.Logger()
}

// Bind attaches the node to the tree: it computes the node's path,
// chains its context, registers the declared endpoints in one
// registration session, and links the parent lifecycle. A registration
// failure is logged and returned as a node error, leaving the node
// partially registered; callers must treat it as fatal and unbind.
func (n *Node) Bind(ctx context.Context, path any, nctx *Context, parent *Node) error {
	n.mu.Lock()
	if n.registered {
		n.mu.Unlock()
		return ErrAlreadyBound
	}
	if nctx == nil && parent != nil {
		if pctx := parent.Context(); pctx != nil {
			nctx = pctx.New()
		}
	}
	if nctx == nil {
		n.mu.Unlock()
		return ErrNoContext
	}
	bound, err := n.bindPath(path, nctx)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	n.path = bound
	n.nctx = nctx
	n.parent = parent
	n.registered = true
	n.unbind = nil
	n.mu.Unlock()

	log := n.logger()
	if err := n.register(); err != nil {
		log.Error().Err(err).Stringer("path", bound).
			Msg("endpoint registration failed during bind")
		return fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	if parent != nil {
		if err := parent.adopt(n); err != nil {
			return err
		}
	}
	if m := nctx.Manager(); m != nil {
		m.track(n)
	}
	log.Debug().Stringer("path", bound).Msg("node bound")
	n.bound.notify(ctx, n)
	return nil
}

// bindPath normalizes the bind target, anchoring plain values at the
// context's base path when one is set.
func (n *Node) bindPath(path any, nctx *Context) (*address.Path, error) {
	if p, ok := path.(*address.Path); ok {
		return p, nil
	}
	if base := nctx.PathBase(); base != nil {
		return address.NewBased(path, base)
	}
	return address.New(path)
}

// endpointPath maps a declared endpoint name to its address: SelfName
// means the node's own path, anything else a descendant fragment.
func (n *Node) endpointPath(name string) (*address.Path, error) {
	if name == SelfName {
		return n.path, nil
	}
	return n.path.Join(name)
}

// register binds every declared endpoint inside one session.
func (n *Node) register() error {
	reg := n.nctx.Registry()
	if reg == nil {
		return fmt.Errorf("%w: no registry", ErrNoContext)
	}
	sess := reg.NewSessionFor(n).Begin()
	defer sess.End()
	for _, sig := range n.endpoints.Signals {
		dst, err := n.endpointPath(sig.Name)
		if err != nil {
			return err
		}
		point := reg.Point(registry.SignalKey{Owner: registry.Owner(n), Signal: sig.Name},
			nil, registry.AsSource())
		if err := sess.AddPoint(point, dst); err != nil {
			return fmt.Errorf("signal %q: %w", sig.Name, err)
		}
	}
	for _, h := range n.endpoints.Handlers {
		dst, err := n.endpointPath(h.Name)
		if err != nil {
			return err
		}
		point := reg.Point(registry.HandlerKey{Owner: registry.Owner(n), Handler: h.Name},
			n.wrapHandler(h.Func))
		if err := sess.AddPoint(point, dst); err != nil {
			return fmt.Errorf("handler %q: %w", h.Name, err)
		}
	}
	for _, c := range n.endpoints.Calls {
		dst, err := n.endpointPath(c.Name)
		if err != nil {
			return err
		}
		point := reg.Point(registry.CallKey{Owner: registry.Owner(n), Call: c.Name},
			n.wrapCall(c.Func))
		if err := sess.AddPoint(point, dst); err != nil {
			return fmt.Errorf("call %q: %w", c.Name, err)
		}
	}
	return nil
}

func (n *Node) wrapHandler(fn registry.Invoker) registry.Invoker {
	if w := n.nctx.SubscriptionWrapper(); w != nil {
		return w(fn)
	}
	return fn
}

func (n *Node) wrapCall(fn registry.Invoker) registry.Invoker {
	if w := n.nctx.CallWrapper(); w != nil {
		return w(fn)
	}
	return fn
}

// AddChild binds child at the node's path plus name, chaining its
// context from the node's own.
func (n *Node) AddChild(ctx context.Context, name string, child *Node) error {
	if child == nil {
		return fmt.Errorf("%w: nil node", ErrBadChild)
	}
	if child.Parent() != nil || child.Registered() {
		return fmt.Errorf("%w: %q already has a parent", ErrBadChild, name)
	}
	n.mu.Lock()
	if !n.registered {
		n.mu.Unlock()
		return ErrNotBound
	}
	base := n.path
	nctx := n.nctx
	n.mu.Unlock()
	path, err := base.Join(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadChild, err)
	}
	if err := child.Bind(ctx, path, nctx.New(), n); err != nil {
		return err
	}
	n.childAdded.notify(ctx, child)
	return nil
}

// RemoveChild unbinds the named child.
func (n *Node) RemoveChild(ctx context.Context, name string) error {
	n.childMu.Lock()
	child, ok := n.children[name]
	n.childMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoChild, name)
	}
	return child.Unbind(ctx)
}

// Child returns the named child, if bound under the node.
func (n *Node) Child(name string) (*Node, bool) {
	n.childMu.Lock()
	defer n.childMu.Unlock()
	c, ok := n.children[name]
	return c, ok
}

// adopt records a bound child so a parent unbind cascades to it.
func (n *Node) adopt(child *Node) error {
	name := child.Path().Last()
	n.childMu.Lock()
	defer n.childMu.Unlock()
	if _, ok := n.children[name]; ok {
		return fmt.Errorf("%w: name %q taken", ErrBadChild, name)
	}
	n.children[name] = child
	return nil
}

// forget detaches a child reference during the child's teardown.
func (n *Node) forget(child *Node) {
	n.childMu.Lock()
	defer n.childMu.Unlock()
	for name, c := range n.children {
		if c == child {
			delete(n.children, name)
			return
		}
	}
}

// Unbind reverses Bind exactly once. Concurrent callers share the one
// in-flight teardown and observe its result.
func (n *Node) Unbind(ctx context.Context) error {
	n.mu.Lock()
	if op := n.unbind; op != nil {
		n.mu.Unlock()
		select {
		case <-op.done:
			return op.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !n.registered {
		n.mu.Unlock()
		return nil
	}
	op := &unbindOp{done: make(chan struct{})}
	n.unbind = op
	n.mu.Unlock()

	op.err = n.teardown(ctx)
	close(op.done)
	return op.err
}

// teardown detaches from the parent, drains the node's points in one
// registration session, unwinds children before notifying the node's
// own unbinding observers, and clears the binding.
func (n *Node) teardown(ctx context.Context) error {
	n.mu.Lock()
	parent := n.parent
	nctx := n.nctx
	path := n.path
	n.mu.Unlock()

	log := n.logger()
	if parent != nil {
		parent.forget(n)
	}

	var firstErr error
	if reg := nctx.Registry(); reg != nil {
		sess := reg.NewSessionFor(n).Begin()
		for _, point := range reg.PointsForOwner(registry.Owner(n)) {
			if err := sess.RemovePoint(point); err != nil {
				log.Error().Err(err).Stringer("path", path).
					Msg("deregistration failed during unbind")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		sess.End()
	}

	// children unwind before the node's own observers see the unbind
	n.childMu.Lock()
	kids := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		kids = append(kids, c)
	}
	n.childMu.Unlock()
	for _, child := range kids {
		if err := child.Unbind(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.unbinding.notify(ctx, n)

	if m := nctx.Manager(); m != nil {
		m.untrack(n)
	}

	n.unbound.notify(ctx, n)

	n.mu.Lock()
	n.path = nil
	n.nctx = nil
	n.parent = nil
	n.registered = false
	n.mu.Unlock()

	log.Debug().Stringer("path", path).Msg("node unbound")
	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrNode, firstErr)
	}
	return nil
}
