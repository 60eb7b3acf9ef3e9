// Package registry maintains the index of live RPC endpoints. Every
// participation of an owner in dispatch is a Point identified by a
// value-typed Key; Points attach to per-path Records, and the Registry
// keeps the Path->Record and owner->Records indexes consistent.
// Registration Sessions batch endpoint changes per owner and journal
// the type-level deltas so the transport bridge can mirror them.
package registry

// RPCType distinguishes the two dispatch disciplines: a call is routed
// to exactly one endpoint, an event fans out to every subscribed one.
type RPCType int

const (
	// CallType marks request/response endpoints.
	CallType RPCType = iota + 1
	// EventType marks publish/subscribe endpoints.
	EventType
)

func (t RPCType) String() string {
	switch t {
	case CallType:
		return "call"
	case EventType:
		return "event"
	default:
		return "unknown"
	}
}

// Owner identifies the party an endpoint belongs to. Owners must be
// comparable values; the registry uses them only as map keys for the
// reverse index and never inspects them.
type Owner any

// Key identifies one Point. Keys are small comparable values: equal
// keys always address the same Point.
type Key interface {
	KeyOwner() Owner
	// RPC returns the dispatch discipline of the endpoint, or zero for
	// owner-only keys that carry no role.
	RPC() RPCType
}

// OwnerKey identifies an owner's role-less presence, used as the source
// of dispatches that do not originate from a concrete endpoint.
type OwnerKey struct {
	Owner Owner
}

func (k OwnerKey) KeyOwner() Owner { return k.Owner }
func (k OwnerKey) RPC() RPCType    { return 0 }

// TypedKey identifies an owner's generic participation in one rpc type,
// used by transport bridges as the source of inbound dispatches.
type TypedKey struct {
	Owner Owner
	Type  RPCType
}

func (k TypedKey) KeyOwner() Owner { return k.Owner }
func (k TypedKey) RPC() RPCType    { return k.Type }

// SignalKey identifies the emitting side of a named event.
type SignalKey struct {
	Owner  Owner
	Signal string
}

func (k SignalKey) KeyOwner() Owner { return k.Owner }
func (k SignalKey) RPC() RPCType    { return EventType }

// HandlerKey identifies a named event handler.
type HandlerKey struct {
	Owner   Owner
	Handler string
}

func (k HandlerKey) KeyOwner() Owner { return k.Owner }
func (k HandlerKey) RPC() RPCType    { return EventType }

// CallKey identifies a named call endpoint.
type CallKey struct {
	Owner Owner
	Call  string
}

func (k CallKey) KeyOwner() Owner { return k.Owner }
func (k CallKey) RPC() RPCType    { return CallType }
