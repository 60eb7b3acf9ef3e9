package node

import (
	"context"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/registry"
)

// Proxy is a path handle standing in for a node reference that crossed
// a session boundary: attribute access walks to child paths and
// call/connect/disconnect/notify forward through the owning node's
// dispatch machinery. It never holds a raw pointer to the remote
// object.
type Proxy struct {
	node *Node
	path *address.Path
}

// NewProxy returns a proxy anchored at the owning node for a target
// path, resolving relative addresses against the node.
func NewProxy(n *Node, target any) (*Proxy, error) {
	if p, ok := target.(*address.Path); ok {
		return &Proxy{node: n, path: p}, nil
	}
	at := n.Path()
	if at == nil {
		return nil, ErrNotBound
	}
	path, err := at.Resolve(target, n.Context().PathResolvers())
	if err != nil {
		return nil, err
	}
	return &Proxy{node: n, path: path}, nil
}

// SerialID marks proxies for envelope serialization; a proxy serializes
// under the node definition since it is only a stand-in.
func (p *Proxy) SerialID() string { return NodeSerialID }

// Path returns the address the proxy stands for.
func (p *Proxy) Path() *address.Path { return p.path }

func (p *Proxy) String() string { return p.path.String() }

// Child returns a proxy for a descendant fragment.
func (p *Proxy) Child(name string) (*Proxy, error) {
	path, err := p.path.Join(name)
	if err != nil {
		return nil, err
	}
	return &Proxy{node: p.node, path: path}, nil
}

// Call invokes the call endpoint behind the proxy and waits for its
// result.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	m, err := p.node.manager()
	if err != nil {
		return nil, err
	}
	pending, err := m.Call(ctx, p.node, p.path, args...)
	if err != nil {
		return nil, err
	}
	return pending.One(ctx)
}

// Notify publishes an event at the proxy's path on behalf of the
// owning node.
func (p *Proxy) Notify(ctx context.Context, args ...any) error {
	m, err := p.node.manager()
	if err != nil {
		return err
	}
	src := m.reg.Point(registry.OwnerKey{Owner: registry.Owner(p.node)}, nil, registry.AsSource())
	pending, err := m.NotifyFrom(ctx, src, p.path, args...)
	if err != nil {
		return err
	}
	_, err = pending.Wait(ctx)
	return err
}

// Connect attaches a handler owned by the proxy's node at the proxy's
// path.
func (p *Proxy) Connect(name string, fn registry.Invoker) error {
	m, err := p.node.manager()
	if err != nil {
		return err
	}
	return m.Connect(p.node, p.path, name, fn)
}

// Disconnect removes a handler previously attached with Connect.
func (p *Proxy) Disconnect(name string) error {
	m, err := p.node.manager()
	if err != nil {
		return err
	}
	return m.Disconnect(p.node, p.path, name)
}
