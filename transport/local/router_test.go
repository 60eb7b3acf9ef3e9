package local

import (
	"context"
	"errors"
	"testing"

	"github.com/croftja/treebus/internal/testutil/testlog"
	"github.com/croftja/treebus/node"
)

func echo(ctx context.Context, uri string, args []any) (any, error) {
	return args, nil
}

func TestCallExactMatch(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s1 := r.Session("session1")
	s2 := r.Session("session2")
	if _, err := s1.Register(func(ctx context.Context, uri string, args []any) (any, error) {
		return len(args), nil
	}, "root.svc.op", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := s2.Call(context.Background(), "root.svc.op", "a", "b")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != 2 {
		t.Fatalf("result: got %v", got)
	}
}

func TestCallNoProcedure(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s := r.Session("session1")
	if _, err := s.Call(context.Background(), "root.nowhere"); !errors.Is(err, ErrNoProcedure) {
		t.Fatalf("expected ErrNoProcedure, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s1 := r.Session("session1")
	s2 := r.Session("session2")
	if _, err := s1.Register(echo, "root.svc.op", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s2.Register(echo, "root.svc.op", nil); !errors.Is(err, ErrProcedureTaken) {
		t.Fatalf("expected ErrProcedureTaken, got %v", err)
	}
}

func TestPrefixMatchesOneExtraFragment(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s1 := r.Session("session1")
	s2 := r.Session("session2")
	var gotURI string
	if _, err := s1.Register(func(ctx context.Context, uri string, args []any) (any, error) {
		gotURI = uri
		return nil, nil
	}, "root.svc.", nil); err != nil {
		t.Fatalf("register prefix: %v", err)
	}
	if _, err := s2.Call(context.Background(), "root.svc.op"); err != nil {
		t.Fatalf("prefix call: %v", err)
	}
	if gotURI != "root.svc.op" {
		t.Fatalf("handler uri: got %q", gotURI)
	}
	if _, err := s2.Call(context.Background(), "root.svc.op.deep"); !errors.Is(err, ErrNoProcedure) {
		t.Fatalf("two extra fragments must not match, got %v", err)
	}
}

func TestUnregisterFreesURI(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s := r.Session("session1")
	reg, err := s.Register(echo, "root.svc.op", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Unregister(); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, err := s.Call(context.Background(), "root.svc.op"); !errors.Is(err, ErrNoProcedure) {
		t.Fatalf("expected ErrNoProcedure, got %v", err)
	}
	if _, err := s.Register(echo, "root.svc.op", nil); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}

func TestPublishExcludesPublisher(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s1 := r.Session("session1")
	s2 := r.Session("session2")
	var fromOwn, fromOther int
	if _, err := s1.Subscribe(func(ctx context.Context, uri string, args []any) (any, error) {
		fromOwn++
		return nil, nil
	}, "root.topic", nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub, err := s2.Subscribe(func(ctx context.Context, uri string, args []any) (any, error) {
		fromOther++
		return nil, nil
	}, "root.topic", nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s1.Publish(context.Background(), "root.topic", "x"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fromOwn != 0 {
		t.Fatalf("publisher observed its own event")
	}
	if fromOther != 1 {
		t.Fatalf("other session deliveries: got %d", fromOther)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := s1.Publish(context.Background(), "root.topic", "x"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fromOther != 1 {
		t.Fatalf("unsubscribed handler fired")
	}
}

func TestDetachedSessionFails(t *testing.T) {
	testlog.Start(t)
	r := NewRouter()
	s := r.Session("session1")
	if !s.Attached() {
		t.Fatalf("fresh session must be attached")
	}
	s.Detach()
	if s.Attached() {
		t.Fatalf("detached session must report so")
	}
	if _, err := s.Register(echo, "root.op", nil); !errors.Is(err, ErrDetached) {
		t.Fatalf("register: got %v", err)
	}
	if _, err := s.Subscribe(echo, "root.topic", nil); !errors.Is(err, ErrDetached) {
		t.Fatalf("subscribe: got %v", err)
	}
	if _, err := s.Call(context.Background(), "root.op"); !errors.Is(err, ErrDetached) {
		t.Fatalf("call: got %v", err)
	}
	if err := s.Publish(context.Background(), "root.topic"); !errors.Is(err, ErrDetached) {
		t.Fatalf("publish: got %v", err)
	}
}

var _ node.Transport = (*Session)(nil)
