package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/dispatch"
	"github.com/croftja/treebus/registry"
	"github.com/croftja/treebus/serial"
)

// managerOwner is the manager's own registry identity, used as the
// source of dispatches that arrive through the transport.
type managerOwner struct {
	id string
}

// ManagerConfig assembles a Manager.
type ManagerConfig struct {
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Transport  Transport
	Serial     *serial.Registry
}

// Manager bridges a node tree to its transport. It observes completed
// registration sessions and mirrors their type-level journal onto the
// transport: the first call endpoint at a path registers a procedure,
// the first event endpoint subscribes a topic, and the reverse entries
// tear those down. It also routes outgoing calls and notifications,
// locally when the destination record is in-process and through the
// transport otherwise.
type Manager struct {
	reg       *registry.Registry
	disp      *dispatch.Dispatcher
	transport Transport
	serial    *serial.Registry
	owner     managerOwner
	log       zerolog.Logger

	mu    sync.Mutex
	procs map[string]*bridgeEntry
	subs  map[string]*bridgeEntry
	nodes map[string]*Node
}

type bridgeEntry struct {
	refs         int
	registration Registration
	subscription Subscription
}

// NewManager wires a manager over the given collaborators and installs
// it as the registry's session observer.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		reg:       cfg.Registry,
		disp:      cfg.Dispatcher,
		transport: cfg.Transport,
		serial:    cfg.Serial,
		owner:     managerOwner{id: uuid.NewString()},
		log:       log.With().Str("component", "manager").Logger(),
		procs:     make(map[string]*bridgeEntry),
		subs:      make(map[string]*bridgeEntry),
		nodes:     make(map[string]*Node),
	}
	if m.reg == nil {
		m.reg = registry.New()
	}
	if m.disp == nil {
		m.disp = dispatch.New(m.reg)
	}
	m.reg.OnSessionEnd(m.sessionEnd)
	return m
}

// Registry returns the managed registry.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Dispatcher returns the managed dispatcher.
func (m *Manager) Dispatcher() *dispatch.Dispatcher { return m.disp }

// NewContext returns a root context carrying the manager.
func (m *Manager) NewContext(opts ...ContextOption) *Context {
	all := append([]ContextOption{WithManager(m)}, opts...)
	return NewContext(all...)
}

// track records a bound node for local reference resolution.
func (m *Manager) track(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.Path().Key()] = n
}

func (m *Manager) untrack(n *Node) {
	path := n.Path()
	if path == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[path.Key()] == n {
		delete(m.nodes, path.Key())
	}
}

// LocalNode returns the bound node at path, when it lives in this
// process.
func (m *Manager) LocalNode(path *address.Path) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[path.Key()]
}

// sessionEnd mirrors a frozen session journal onto the transport.
// Transport failures are logged, not raised: the registry stays
// authoritative and the transport reconciles on the next change.
func (m *Manager) sessionEnd(owner registry.Owner, journal []registry.JournalEntry) {
	if m.transport == nil || !m.transport.Attached() {
		return
	}
	callOpts, subOpts := m.registrationOptions(owner)
	for _, entry := range journal {
		uri := entry.Path.Key()
		switch {
		case entry.Type == registry.CallType && !entry.Removed:
			m.bridgeRegister(uri, callOpts)
		case entry.Type == registry.CallType && entry.Removed:
			m.bridgeUnregister(uri)
		case entry.Type == registry.EventType && !entry.Removed:
			m.bridgeSubscribe(uri, subOpts)
		case entry.Type == registry.EventType && entry.Removed:
			m.bridgeUnsubscribe(uri)
		}
	}
}

func (m *Manager) registrationOptions(owner registry.Owner) (Options, Options) {
	if n, ok := owner.(*Node); ok {
		if nctx := n.Context(); nctx != nil {
			return nctx.CallRegistrationOptions(), nctx.SubscriptionRegistrationOptions()
		}
	}
	return nil, nil
}

func (m *Manager) bridgeRegister(uri string, opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.procs[uri]
	if !ok {
		entry = &bridgeEntry{}
		m.procs[uri] = entry
	}
	entry.refs++
	if entry.refs > 1 {
		return
	}
	reg, err := m.transport.Register(m.inboundCall, uri, opts)
	if err != nil {
		m.log.Error().Err(err).Str("uri", uri).Msg("transport registration failed")
		return
	}
	entry.registration = reg
}

func (m *Manager) bridgeUnregister(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.procs[uri]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs > 0 {
		return
	}
	delete(m.procs, uri)
	if entry.registration != nil {
		if err := entry.registration.Unregister(); err != nil {
			m.log.Error().Err(err).Str("uri", uri).Msg("transport unregistration failed")
		}
	}
}

func (m *Manager) bridgeSubscribe(uri string, opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.subs[uri]
	if !ok {
		entry = &bridgeEntry{}
		m.subs[uri] = entry
	}
	entry.refs++
	if entry.refs > 1 {
		return
	}
	sub, err := m.transport.Subscribe(m.inboundEvent, uri, opts)
	if err != nil {
		m.log.Error().Err(err).Str("uri", uri).Msg("transport subscription failed")
		return
	}
	entry.subscription = sub
}

func (m *Manager) bridgeUnsubscribe(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.subs[uri]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs > 0 {
		return
	}
	delete(m.subs, uri)
	if entry.subscription != nil {
		if err := entry.subscription.Unsubscribe(); err != nil {
			m.log.Error().Err(err).Str("uri", uri).Msg("transport unsubscription failed")
		}
	}
}

// sourcePoint returns the manager's dispatch-source point for inbound
// traffic of one rpc type.
func (m *Manager) sourcePoint(t registry.RPCType) *registry.Point {
	return m.reg.Point(registry.TypedKey{Owner: m.owner, Type: t}, nil,
		registry.AsSource(), registry.AsRemote())
}

// inboundCall handles a transport delivery for a registered procedure.
func (m *Manager) inboundCall(ctx context.Context, uri string, args []any) (any, error) {
	det, err := dispatch.NewDetails(registry.CallType, m.sourcePoint(registry.CallType),
		uri, dispatch.FlagLocal, args...)
	if err != nil {
		return nil, err
	}
	pending, err := m.disp.Dispatch(ctx, det)
	if err != nil {
		return nil, err
	}
	return pending.One(ctx)
}

// inboundEvent handles a transport delivery for a subscribed topic.
func (m *Manager) inboundEvent(ctx context.Context, uri string, args []any) (any, error) {
	det, err := dispatch.NewDetails(registry.EventType, m.sourcePoint(registry.EventType),
		uri, dispatch.FlagLocal, args...)
	if err != nil {
		return nil, err
	}
	pending, err := m.disp.Dispatch(ctx, det)
	if err != nil {
		return nil, err
	}
	_, err = pending.Wait(ctx)
	return nil, err
}

// resolveTarget turns a call/notify target into an absolute path,
// resolving relative addresses against the node's own path.
func (m *Manager) resolveTarget(from *Node, target any) (*address.Path, error) {
	if p, ok := target.(*address.Path); ok {
		return p, nil
	}
	at := from.Path()
	if at == nil {
		return nil, ErrNotBound
	}
	return at.Resolve(target, from.Context().PathResolvers())
}

// Call routes a call from a node to a target path: locally when a call
// endpoint is registered in-process, through the transport otherwise.
func (m *Manager) Call(ctx context.Context, from *Node, target any, args ...any) (*dispatch.Pending, error) {
	dst, err := m.resolveTarget(from, target)
	if err != nil {
		return nil, err
	}
	if rec := m.reg.Get(dst); rec != nil && len(rec.PointsOf(registry.CallType)) > 0 {
		src := m.reg.Point(registry.OwnerKey{Owner: registry.Owner(from)}, nil, registry.AsSource())
		det, err := dispatch.NewDetails(registry.CallType, src, dst, 0, args...)
		if err != nil {
			return nil, err
		}
		return m.disp.Dispatch(ctx, det)
	}
	if m.transport != nil && m.transport.Attached() {
		result, err := m.transport.Call(ctx, dst.Key(), args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dispatch.ErrNoDestination, err)
		}
		return dispatch.Resolved(result), nil
	}
	return nil, fmt.Errorf("%w: %s", dispatch.ErrNoDestination, dst)
}

// NotifyFrom fans an event out from a source point: locally to the
// record at the path, and through the transport as a publication.
// The publishing source never observes its own event.
func (m *Manager) NotifyFrom(ctx context.Context, src *registry.Point, dst *address.Path, args ...any) (*dispatch.Pending, error) {
	var pendings []*dispatch.Pending
	if m.reg.Contains(dst) {
		det, err := dispatch.NewDetails(registry.EventType, src, dst, 0, args...)
		if err != nil {
			return nil, err
		}
		pending, err := m.disp.Dispatch(ctx, det)
		if err != nil {
			return nil, err
		}
		pendings = append(pendings, pending)
	}
	if m.transport != nil && m.transport.Attached() {
		publish := func(ctx context.Context, pargs []any) (any, error) {
			return nil, m.transport.Publish(ctx, dst.Key(), pargs...)
		}
		if w := m.publicationWrapper(src); w != nil {
			publish = w(publish)
		}
		if _, err := publish(ctx, args); err != nil {
			m.log.Error().Err(err).Stringer("path", dst).Msg("publication failed")
			pendings = append(pendings, dispatch.Failed(err))
		}
	}
	if len(pendings) == 0 {
		return dispatch.Resolved(), nil
	}
	return dispatch.Join(pendings...), nil
}

// publicationWrapper resolves the publication interception hook from
// the source point's owning node, if any.
func (m *Manager) publicationWrapper(src *registry.Point) Wrapper {
	if n, ok := src.Key().KeyOwner().(*Node); ok {
		if nctx := n.Context(); nctx != nil {
			return nctx.PublicationWrapper()
		}
	}
	return nil
}

// Connect attaches a handler owned by a node to an arbitrary path.
func (m *Manager) Connect(from *Node, target any, name string, fn registry.Invoker) error {
	dst, err := m.resolveTarget(from, target)
	if err != nil {
		return err
	}
	point := m.reg.Point(registry.HandlerKey{Owner: registry.Owner(from), Handler: name},
		from.wrapHandler(fn))
	sess := m.reg.NewSessionFor(registry.Owner(from)).Begin()
	defer sess.End()
	return sess.AddPoint(point, dst)
}

// Disconnect detaches a handler previously connected at a path. A
// handler that was never connected reports ErrNotAttached; no point is
// minted for it.
func (m *Manager) Disconnect(from *Node, target any, name string) error {
	dst, err := m.resolveTarget(from, target)
	if err != nil {
		return err
	}
	point, ok := m.reg.LookupPoint(registry.HandlerKey{Owner: registry.Owner(from), Handler: name})
	if !ok {
		return fmt.Errorf("%w: handler %q at %s", registry.ErrNotAttached, name, dst)
	}
	sess := m.reg.NewSessionFor(registry.Owner(from)).Begin()
	defer sess.End()
	return sess.RemovePoint(point, dst)
}
