package node

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/dispatch"
	"github.com/croftja/treebus/registry"
	"github.com/croftja/treebus/serial"
)

// Context is the chained configuration of a node tree. A child context
// created with New inherits every value it does not override by walking
// its parent chain, which is how a branch narrows configuration without
// copying shared state.
type Context struct {
	parent *Context
	vals   map[string]any
}

// Recognized context value keys.
const (
	keyManager       = "manager"
	keyRegistry      = "registry"
	keyDispatcher    = "dispatcher"
	keyTransport     = "transport"
	keySerial        = "serial"
	keyPathBase      = "path_base"
	keyPathResolvers = "path_resolvers"
	keyLogger        = "logger"
	keyCallWrapper   = "call_wrapper"
	keySubWrapper    = "subscription_wrapper"
	keyPubWrapper    = "publication_wrapper"
	keyCallRegOpts   = "call_registration_options"
	keySubRegOpts    = "subscription_registration_options"
)

// Wrapper intercepts an endpoint or transport invocation; it receives
// the next invoker and returns the one actually installed.
type Wrapper func(next registry.Invoker) registry.Invoker

// ContextOption sets one value on a Context.
type ContextOption func(*Context)

func WithManager(m *Manager) ContextOption {
	return func(c *Context) { c.vals[keyManager] = m }
}

func WithRegistry(r *registry.Registry) ContextOption {
	return func(c *Context) { c.vals[keyRegistry] = r }
}

func WithDispatcher(d *dispatch.Dispatcher) ContextOption {
	return func(c *Context) { c.vals[keyDispatcher] = d }
}

func WithTransport(t Transport) ContextOption {
	return func(c *Context) { c.vals[keyTransport] = t }
}

func WithSerial(r *serial.Registry) ContextOption {
	return func(c *Context) { c.vals[keySerial] = r }
}

func WithPathBase(p *address.Path) ContextOption {
	return func(c *Context) { c.vals[keyPathBase] = p }
}

func WithPathResolvers(rs ...address.ResolverFunc) ContextOption {
	return func(c *Context) { c.vals[keyPathResolvers] = rs }
}

func WithLogger(l zerolog.Logger) ContextOption {
	return func(c *Context) { c.vals[keyLogger] = l }
}

func WithCallWrapper(w Wrapper) ContextOption {
	return func(c *Context) { c.vals[keyCallWrapper] = w }
}

func WithSubscriptionWrapper(w Wrapper) ContextOption {
	return func(c *Context) { c.vals[keySubWrapper] = w }
}

func WithPublicationWrapper(w Wrapper) ContextOption {
	return func(c *Context) { c.vals[keyPubWrapper] = w }
}

func WithCallRegistrationOptions(o Options) ContextOption {
	return func(c *Context) { c.vals[keyCallRegOpts] = o }
}

func WithSubscriptionRegistrationOptions(o Options) ContextOption {
	return func(c *Context) { c.vals[keySubRegOpts] = o }
}

// NewContext returns a root context.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{vals: make(map[string]any)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New returns a child context chained to c with the given overrides.
func (c *Context) New(opts ...ContextOption) *Context {
	child := &Context{parent: c, vals: make(map[string]any)}
	for _, opt := range opts {
		opt(child)
	}
	return child
}

// Set assigns a value on this context level.
func (c *Context) Set(key string, value any) {
	c.vals[key] = value
}

// Get looks up a key along the parent chain.
func (c *Context) Get(key string) (any, bool) {
	for cur := c; cur != nil; cur = cur.parent {
		if v, ok := cur.vals[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Manager returns the tree manager, if configured.
func (c *Context) Manager() *Manager {
	if v, ok := c.Get(keyManager); ok {
		return v.(*Manager)
	}
	return nil
}

// Registry returns the endpoint registry, falling back to the
// manager's.
func (c *Context) Registry() *registry.Registry {
	if v, ok := c.Get(keyRegistry); ok {
		return v.(*registry.Registry)
	}
	if m := c.Manager(); m != nil {
		return m.reg
	}
	return nil
}

// Dispatcher returns the dispatcher, falling back to the manager's.
func (c *Context) Dispatcher() *dispatch.Dispatcher {
	if v, ok := c.Get(keyDispatcher); ok {
		return v.(*dispatch.Dispatcher)
	}
	if m := c.Manager(); m != nil {
		return m.disp
	}
	return nil
}

// Transport returns the transport collaborator, falling back to the
// manager's.
func (c *Context) Transport() Transport {
	if v, ok := c.Get(keyTransport); ok {
		return v.(Transport)
	}
	if m := c.Manager(); m != nil {
		return m.transport
	}
	return nil
}

// Serial returns the serialization registry, if configured.
func (c *Context) Serial() *serial.Registry {
	if v, ok := c.Get(keySerial); ok {
		return v.(*serial.Registry)
	}
	if m := c.Manager(); m != nil {
		return m.serial
	}
	return nil
}

// PathBase returns the base path relative addresses resolve against.
func (c *Context) PathBase() *address.Path {
	if v, ok := c.Get(keyPathBase); ok {
		return v.(*address.Path)
	}
	return nil
}

// PathResolvers returns the ordered relative-path resolvers.
func (c *Context) PathResolvers() []address.ResolverFunc {
	if v, ok := c.Get(keyPathResolvers); ok {
		return v.([]address.ResolverFunc)
	}
	return nil
}

// Logger returns the configured logger or the process logger.
func (c *Context) Logger() zerolog.Logger {
	if v, ok := c.Get(keyLogger); ok {
		return v.(zerolog.Logger)
	}
	return log.Logger
}

// CallWrapper returns the call interception hook, if any.
func (c *Context) CallWrapper() Wrapper {
	if v, ok := c.Get(keyCallWrapper); ok {
		return v.(Wrapper)
	}
	return nil
}

// SubscriptionWrapper returns the handler interception hook, if any.
func (c *Context) SubscriptionWrapper() Wrapper {
	if v, ok := c.Get(keySubWrapper); ok {
		return v.(Wrapper)
	}
	return nil
}

// PublicationWrapper returns the publication interception hook, if any.
func (c *Context) PublicationWrapper() Wrapper {
	if v, ok := c.Get(keyPubWrapper); ok {
		return v.(Wrapper)
	}
	return nil
}

// CallRegistrationOptions returns transport options for procedure
// registrations.
func (c *Context) CallRegistrationOptions() Options {
	if v, ok := c.Get(keyCallRegOpts); ok {
		return v.(Options)
	}
	return nil
}

// SubscriptionRegistrationOptions returns transport options for topic
// subscriptions.
func (c *Context) SubscriptionRegistrationOptions() Options {
	if v, ok := c.Get(keySubRegOpts); ok {
		return v.(Options)
	}
	return nil
}
