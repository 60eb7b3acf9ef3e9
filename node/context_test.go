package node

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/croftja/treebus/address"
	"github.com/croftja/treebus/internal/testutil/testlog"
	"github.com/croftja/treebus/registry"
)

type stubHandle struct{}

func (stubHandle) Unregister() error  { return nil }
func (stubHandle) Unsubscribe() error { return nil }

// stubTransport records publications and accepts every registration.
type stubTransport struct {
	mu        sync.Mutex
	published [][]any
}

func (s *stubTransport) Register(fn DispatchFunc, uri string, opts Options) (Registration, error) {
	return stubHandle{}, nil
}

func (s *stubTransport) Subscribe(fn DispatchFunc, uri string, opts Options) (Subscription, error) {
	return stubHandle{}, nil
}

func (s *stubTransport) Call(ctx context.Context, uri string, args ...any) (any, error) {
	return nil, nil
}

func (s *stubTransport) Publish(ctx context.Context, uri string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, args)
	return nil
}

func (s *stubTransport) Attached() bool { return true }

func TestContextChaining(t *testing.T) {
	testlog.Start(t)
	root := NewContext(WithPathBase(address.MustNew("root")))
	child := root.New()
	if child.PathBase() == nil || child.PathBase().Key() != "root" {
		t.Fatalf("child must inherit the base path")
	}
	grand := child.New(WithPathBase(address.MustNew("elsewhere")))
	if grand.PathBase().Key() != "elsewhere" {
		t.Fatalf("override must shadow the inherited value")
	}
	if root.PathBase().Key() != "root" {
		t.Fatalf("overrides must never leak upward")
	}
	if _, ok := root.Get("nonsense"); ok {
		t.Fatalf("unknown keys must miss")
	}
}

func TestContextManagerFallbacks(t *testing.T) {
	testlog.Start(t)
	m := NewManager(ManagerConfig{})
	nctx := m.NewContext()
	if nctx.Registry() != m.Registry() {
		t.Fatalf("registry must fall back to the manager's")
	}
	if nctx.Dispatcher() != m.Dispatcher() {
		t.Fatalf("dispatcher must fall back to the manager's")
	}
	own := registry.New()
	override := nctx.New(WithRegistry(own))
	if override.Registry() != own {
		t.Fatalf("explicit registry must win over the manager's")
	}
}

func TestPublicationWrapperIntercepts(t *testing.T) {
	testlog.Start(t)
	tr := &stubTransport{}
	m := NewManager(ManagerConfig{Transport: tr})
	var wrapped atomic.Int32
	nctx := m.NewContext(
		WithPathBase(address.MustNew("root")),
		WithPublicationWrapper(func(next registry.Invoker) registry.Invoker {
			return func(ctx context.Context, args []any) (any, error) {
				wrapped.Add(1)
				return next(ctx, args)
			}
		}),
	)
	emitter := New(Endpoints{Signals: []SignalSpec{{Name: "changed"}}})
	if err := emitter.Bind(context.Background(), "emitter", nctx, nil); err != nil {
		t.Fatalf("bind: %v", err)
	}
	pending, err := emitter.Notify(context.Background(), "changed", "payload")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, err := pending.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if wrapped.Load() != 1 {
		t.Fatalf("wrapper ran %d times", wrapped.Load())
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.published) != 1 || len(tr.published[0]) != 1 || tr.published[0][0] != "payload" {
		t.Fatalf("publications: got %v", tr.published)
	}
}

func TestCallWrapperIntercepts(t *testing.T) {
	testlog.Start(t)
	m := NewManager(ManagerConfig{})
	var wrapped atomic.Int32
	nctx := m.NewContext(
		WithPathBase(address.MustNew("root")),
		WithCallWrapper(func(next registry.Invoker) registry.Invoker {
			return func(ctx context.Context, args []any) (any, error) {
				wrapped.Add(1)
				return next(ctx, args)
			}
		}),
	)
	callee := New(sumEndpoints())
	if err := callee.Bind(context.Background(), "test", nctx, nil); err != nil {
		t.Fatalf("bind: %v", err)
	}
	caller := New(Endpoints{})
	if err := caller.Bind(context.Background(), "caller", nctx.New(), nil); err != nil {
		t.Fatalf("bind caller: %v", err)
	}
	pending, err := caller.Call(context.Background(), "@test.foo", 1, 2)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	got, err := pending.One(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got != 3 {
		t.Fatalf("result: got %v", got)
	}
	if wrapped.Load() != 1 {
		t.Fatalf("wrapper ran %d times", wrapped.Load())
	}
}
