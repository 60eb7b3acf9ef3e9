// Package local is an in-process implementation of the transport
// collaborator: a Router keeps a uri table of procedures and topic
// subscriptions, and Sessions attached to it perform register,
// subscribe, call, and publish against that table. It exists for tests
// and demos; a real deployment supplies a wire transport instead.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/croftja/treebus/node"
)

// ErrTransport is the family error; the specific sentinels wrap it.
var (
	ErrTransport      = errors.New("local: transport error")
	ErrNoProcedure    = fmt.Errorf("%w: no procedure for uri", ErrTransport)
	ErrProcedureTaken = fmt.Errorf("%w: procedure already registered", ErrTransport)
	ErrDetached       = fmt.Errorf("%w: session detached", ErrTransport)
)

// Router is the shared in-process uri table.
type Router struct {
	mu    sync.RWMutex
	procs map[string]*procedure
	subs  map[string][]*subscription
	log   zerolog.Logger
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		procs: make(map[string]*procedure),
		subs:  make(map[string][]*subscription),
		log:   log.With().Str("component", "local-router").Logger(),
	}
}

// Session attaches a named session to the router.
func (r *Router) Session(name string) *Session {
	return &Session{router: r, name: name, attached: true}
}

type procedure struct {
	router  *Router
	session *Session
	uri     string
	fn      node.DispatchFunc
}

func (p *procedure) Unregister() error {
	r := p.router
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.procs[p.uri] == p {
		delete(r.procs, p.uri)
	}
	return nil
}

type subscription struct {
	router  *Router
	session *Session
	uri     string
	fn      node.DispatchFunc
}

func (s *subscription) Unsubscribe() error {
	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[s.uri]
	for i, sub := range list {
		if sub == s {
			r.subs[s.uri] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.subs[s.uri]) == 0 {
		delete(r.subs, s.uri)
	}
	return nil
}

// Session is one attachment to the router, implementing the transport
// collaborator interface consumed by node trees.
type Session struct {
	router *Router
	name   string

	mu       sync.Mutex
	attached bool
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Attached reports whether the session may use the router.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Detach cuts the session off the router; later operations fail.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
}

// Register installs a procedure under uri. A uri ending in the path
// separator registers a prefix handler matching one extra fragment.
func (s *Session) Register(fn node.DispatchFunc, uri string, _ node.Options) (node.Registration, error) {
	if !s.Attached() {
		return nil, ErrDetached
	}
	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.procs[uri]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProcedureTaken, uri)
	}
	p := &procedure{router: r, session: s, uri: uri, fn: fn}
	r.procs[uri] = p
	return p, nil
}

// Subscribe adds a topic subscription under uri.
func (s *Session) Subscribe(fn node.DispatchFunc, uri string, _ node.Options) (node.Subscription, error) {
	if !s.Attached() {
		return nil, ErrDetached
	}
	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := &subscription{router: r, session: s, uri: uri, fn: fn}
	r.subs[uri] = append(r.subs[uri], sub)
	return sub, nil
}

// Call invokes the procedure at uri: an exact match first, then a
// prefix registration covering exactly one extra fragment.
func (s *Session) Call(ctx context.Context, uri string, args ...any) (any, error) {
	if !s.Attached() {
		return nil, ErrDetached
	}
	r := s.router
	r.mu.RLock()
	p, ok := r.procs[uri]
	if !ok {
		for prefix, candidate := range r.procs {
			if !strings.HasSuffix(prefix, ".") || !strings.HasPrefix(uri, prefix) {
				continue
			}
			if strings.Contains(uri[len(prefix):], ".") {
				continue
			}
			p = candidate
			ok = true
			break
		}
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProcedure, uri)
	}
	return p.fn(ctx, uri, args)
}

// Publish delivers the event to every subscription at uri except those
// held by the publishing session. Delivery is synchronous per
// subscriber; handler failures are logged and do not stop delivery.
func (s *Session) Publish(ctx context.Context, uri string, args ...any) error {
	if !s.Attached() {
		return ErrDetached
	}
	r := s.router
	r.mu.RLock()
	list := make([]*subscription, 0, len(r.subs[uri]))
	for _, sub := range r.subs[uri] {
		if sub.session == s {
			continue
		}
		list = append(list, sub)
	}
	r.mu.RUnlock()
	for _, sub := range list {
		if _, err := sub.fn(ctx, uri, args); err != nil {
			r.log.Debug().Err(err).Str("uri", uri).
				Str("session", sub.session.name).Msg("event delivery failed")
		}
	}
	return nil
}
