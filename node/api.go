package node

import (
	"context"
	"fmt"

	"github.com/croftja/treebus/dispatch"
	"github.com/croftja/treebus/registry"
)

func (n *Node) manager() (*Manager, error) {
	nctx := n.Context()
	if nctx == nil {
		return nil, ErrNotBound
	}
	m := nctx.Manager()
	if m == nil {
		return nil, fmt.Errorf("%w: no manager", ErrNoContext)
	}
	return m, nil
}

// Call invokes the call endpoint at target, which may be absolute or
// relative ("@sibling.op") to this node.
func (n *Node) Call(ctx context.Context, target any, args ...any) (*dispatch.Pending, error) {
	m, err := n.manager()
	if err != nil {
		return nil, err
	}
	return m.Call(ctx, n, target, args...)
}

// Notify emits one of the node's declared signals, fanning the event
// out to every connected handler except the signal itself.
func (n *Node) Notify(ctx context.Context, signal string, args ...any) (*dispatch.Pending, error) {
	m, err := n.manager()
	if err != nil {
		return nil, err
	}
	dst, err := n.endpointPath(signal)
	if err != nil {
		return nil, err
	}
	src := m.reg.Point(registry.SignalKey{Owner: registry.Owner(n), Signal: signal},
		nil, registry.AsSource())
	return m.NotifyFrom(ctx, src, dst, args...)
}

// Connect attaches a handler owned by this node at target.
func (n *Node) Connect(target any, name string, fn registry.Invoker) error {
	m, err := n.manager()
	if err != nil {
		return err
	}
	return m.Connect(n, target, name, fn)
}

// Disconnect removes a handler previously attached with Connect.
func (n *Node) Disconnect(target any, name string) error {
	m, err := n.manager()
	if err != nil {
		return err
	}
	return m.Disconnect(n, target, name)
}

// Remote returns a proxy handle for target, resolved relative to this
// node.
func (n *Node) Remote(target any) (*Proxy, error) {
	return NewProxy(n, target)
}
