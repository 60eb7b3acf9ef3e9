package node

import (
	"fmt"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/serial"
)

// Serialization ids for the core reference types.
const (
	PathSerialID = "treebus.path"
	NodeSerialID = "treebus.node"

	// ProxySerialAlias decodes legacy envelopes produced for proxies.
	ProxySerialAlias = "treebus.node.proxy"
)

// RegisterTypes installs the node and path definitions on a
// serialization registry. Node references serialize to their absolute
// path string; deserialization yields the local node when the path is
// bound in-process and a Proxy otherwise.
func RegisterTypes(r *serial.Registry) error {
	if err := r.Define(PathSerialID, (*address.Path)(nil), pathCodec{}); err != nil {
		return err
	}
	return r.Define(NodeSerialID, (*Node)(nil), nodeCodec{},
		serial.AllowSubtypes(), serial.WithAliases(ProxySerialAlias))
}

type pathCodec struct{}

func (pathCodec) Encode(v any) (any, error) {
	p, ok := v.(*address.Path)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: not a path: %T", serial.ErrSerialization, v)
	}
	return p.Key(), nil
}

func (pathCodec) Decode(value, _ any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: path payload %T", serial.ErrBadEnvelope, value)
	}
	return address.New(s)
}

type nodeCodec struct{}

func (nodeCodec) Encode(v any) (any, error) {
	switch t := v.(type) {
	case *Node:
		path := t.Path()
		if path == nil {
			return nil, fmt.Errorf("%w: unbound node", serial.ErrSerialization)
		}
		return path.Key(), nil
	case *Proxy:
		return t.path.Key(), nil
	default:
		return nil, fmt.Errorf("%w: not a node reference: %T", serial.ErrSerialization, v)
	}
}

// Decode rehydrates a node reference at the receiving side. The hint
// must be the endpoint node the envelope arrived at; its manager
// decides whether the path is local.
func (nodeCodec) Decode(value, hint any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: node payload %T", serial.ErrBadEnvelope, value)
	}
	endpoint, ok := hint.(*Node)
	if !ok || endpoint == nil {
		return nil, fmt.Errorf("%w: node decoding needs an endpoint node", serial.ErrSerialization)
	}
	path, err := address.New(s)
	if err != nil {
		return nil, err
	}
	m, err := endpoint.manager()
	if err != nil {
		return nil, err
	}
	if local := m.LocalNode(path); local != nil {
		return local, nil
	}
	return &Proxy{node: endpoint, path: path}, nil
}
