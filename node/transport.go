package node

import "context"

// Options carries transport-specific registration parameters, opaque to
// the core.
type Options map[string]any

// DispatchFunc handles one inbound transport delivery for a uri.
type DispatchFunc func(ctx context.Context, uri string, args []any) (any, error)

// Registration is the handle for one registered procedure.
type Registration interface {
	Unregister() error
}

// Subscription is the handle for one topic subscription.
type Subscription interface {
	Unsubscribe() error
}

// Transport is the external call/publish-subscribe collaborator. The
// core never sees wire formats; it registers dispatch functions under
// uris and performs calls and publications against them.
type Transport interface {
	Register(fn DispatchFunc, uri string, opts Options) (Registration, error)
	Subscribe(fn DispatchFunc, uri string, opts Options) (Subscription, error)
	Call(ctx context.Context, uri string, args ...any) (any, error)
	Publish(ctx context.Context, uri string, args ...any) error
	Attached() bool
}
