package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/croftja/treebus/internal/testutil/testlog"
)

func echoInvoker(ctx context.Context, args []any) (any, error) {
	return args, nil
}

func TestPointDeduplication(t *testing.T) {
	testlog.Start(t)
	reg := New()
	key := CallKey{Owner: "owner", Call: "sum"}
	a := reg.Point(key, echoInvoker)
	b := reg.Point(key, nil, AsSource())
	if a != b {
		t.Fatalf("equal keys must resolve to the same point")
	}
	if b.IsSource() {
		t.Fatalf("options must not rewrite an existing point")
	}
}

func TestAddPointCreatesRecord(t *testing.T) {
	testlog.Start(t)
	reg := New()
	p := reg.Point(CallKey{Owner: "owner", Call: "sum"}, echoInvoker)
	if err := reg.AddPoint(p, "root.calc"); err != nil {
		t.Fatalf("add: %v", err)
	}
	rec, err := reg.Record("root.calc")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Len() != 1 {
		t.Fatalf("points: got %d", rec.Len())
	}
	if !rec.IsLocal() {
		t.Fatalf("record with a local point must be local")
	}
	if !reg.HasOwner("owner") {
		t.Fatalf("owner index must cover the record")
	}
}

func TestDuplicateAttach(t *testing.T) {
	testlog.Start(t)
	reg := New()
	p := reg.Point(HandlerKey{Owner: "owner", Handler: "changed"}, echoInvoker)
	if err := reg.AddPoint(p, "root.topic"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.AddPoint(p, "root.topic"); !errors.Is(err, ErrDuplicatePoint) {
		t.Fatalf("expected ErrDuplicatePoint, got %v", err)
	}
}

func TestSecondCallPointRejected(t *testing.T) {
	testlog.Start(t)
	reg := New()
	a := reg.Point(CallKey{Owner: "alpha", Call: "op"}, echoInvoker)
	b := reg.Point(CallKey{Owner: "beta", Call: "op"}, echoInvoker)
	if err := reg.AddPoint(a, "root.op"); err != nil {
		t.Fatalf("first call point: %v", err)
	}
	if err := reg.AddPoint(b, "root.op"); !errors.Is(err, ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}
	if !errors.Is(ErrDuplicateCall, ErrRPC) {
		t.Fatalf("sentinel must wrap the family error")
	}
}

func TestManyEventPointsCoexist(t *testing.T) {
	testlog.Start(t)
	reg := New()
	a := reg.Point(HandlerKey{Owner: "alpha", Handler: "on"}, echoInvoker)
	b := reg.Point(HandlerKey{Owner: "beta", Handler: "on"}, echoInvoker)
	c := reg.Point(SignalKey{Owner: "alpha", Signal: "on"}, nil, AsSource())
	for _, p := range []*Point{a, b, c} {
		if err := reg.AddPoint(p, "root.topic"); err != nil {
			t.Fatalf("add %v: %v", p.Key(), err)
		}
	}
	rec := reg.Get("root.topic")
	if got := len(rec.PointsOf(EventType)); got != 3 {
		t.Fatalf("event points: got %d", got)
	}
	if got := len(rec.Owners()); got != 2 {
		t.Fatalf("owners: got %d", got)
	}
}

func TestRemoveLastPointExpungesRecord(t *testing.T) {
	testlog.Start(t)
	reg := New()
	p := reg.Point(CallKey{Owner: "owner", Call: "op"}, echoInvoker)
	if err := reg.AddPoint(p, "root.op"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.RemovePoint(p, "root.op"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reg.Contains("root.op") {
		t.Fatalf("empty record must be expunged")
	}
	if reg.HasOwner("owner") {
		t.Fatalf("owner index must be pruned")
	}
	if _, err := reg.Record("root.op"); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}
}

func TestRemovePointEverywhere(t *testing.T) {
	testlog.Start(t)
	reg := New()
	p := reg.Point(HandlerKey{Owner: "owner", Handler: "on"}, echoInvoker)
	for _, path := range []string{"root.a", "root.b", "root.c"} {
		if err := reg.AddPoint(p, path); err != nil {
			t.Fatalf("add %s: %v", path, err)
		}
	}
	if got := len(p.Paths()); got != 3 {
		t.Fatalf("paths: got %d", got)
	}
	if err := reg.RemovePoint(p); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	for _, path := range []string{"root.a", "root.b", "root.c"} {
		if reg.Contains(path) {
			t.Fatalf("record %s survived", path)
		}
	}
	if reg.HasOwner("owner") {
		t.Fatalf("owner index must be empty")
	}
}

func TestRemoveNotAttached(t *testing.T) {
	testlog.Start(t)
	reg := New()
	a := reg.Point(HandlerKey{Owner: "alpha", Handler: "on"}, echoInvoker)
	b := reg.Point(HandlerKey{Owner: "beta", Handler: "on"}, echoInvoker)
	if err := reg.AddPoint(a, "root.topic"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.RemovePoint(b, "root.topic"); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("expected ErrNotAttached, got %v", err)
	}
}

func TestPointsForOwner(t *testing.T) {
	testlog.Start(t)
	reg := New()
	mine := reg.Point(CallKey{Owner: "alpha", Call: "op"}, echoInvoker)
	handler := reg.Point(HandlerKey{Owner: "alpha", Handler: "on"}, echoInvoker)
	other := reg.Point(HandlerKey{Owner: "beta", Handler: "on"}, echoInvoker)
	if err := reg.AddPoint(mine, "root.op"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.AddPoint(handler, "root.topic"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.AddPoint(other, "root.topic"); err != nil {
		t.Fatalf("add: %v", err)
	}
	points := reg.PointsForOwner("alpha")
	if len(points) != 2 {
		t.Fatalf("points for alpha: got %d", len(points))
	}
	for _, p := range points {
		if p.Key().KeyOwner() != "alpha" {
			t.Fatalf("foreign point leaked: %v", p.Key())
		}
	}
}

func TestSourcePointHasNoInvoker(t *testing.T) {
	testlog.Start(t)
	reg := New()
	p := reg.Point(SignalKey{Owner: "owner", Signal: "tick"}, nil, AsSource())
	if _, err := p.Invoke(context.Background(), nil); !errors.Is(err, ErrRPC) {
		t.Fatalf("expected ErrRPC, got %v", err)
	}
}

func TestSessionJournalTypeLevel(t *testing.T) {
	testlog.Start(t)
	reg := New()
	sess := reg.NewSessionFor("owner").Begin()
	first := reg.Point(HandlerKey{Owner: "owner", Handler: "a"}, echoInvoker)
	second := reg.Point(HandlerKey{Owner: "owner", Handler: "b"}, echoInvoker)
	if err := sess.AddPoint(first, "root.topic"); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := sess.AddPoint(second, "root.topic"); err != nil {
		t.Fatalf("add second: %v", err)
	}
	// only the first event point at the path broadens the owner's types
	journal := sess.Journal()
	if len(journal) != 1 {
		t.Fatalf("journal: got %d entries: %v", len(journal), journal)
	}
	if journal[0].Type != EventType || journal[0].Removed {
		t.Fatalf("journal entry: %+v", journal[0])
	}

	if err := sess.RemovePoint(first, "root.topic"); err != nil {
		t.Fatalf("remove first: %v", err)
	}
	if got := len(sess.Journal()); got != 1 {
		t.Fatalf("removing one of two handlers must not journal, got %d", got)
	}
	if err := sess.RemovePoint(second, "root.topic"); err != nil {
		t.Fatalf("remove second: %v", err)
	}
	journal = sess.Journal()
	if len(journal) != 2 || !journal[1].Removed {
		t.Fatalf("journal after drain: %v", journal)
	}
	sess.End()
}

func TestSessionClosed(t *testing.T) {
	testlog.Start(t)
	reg := New()
	sess := reg.NewSessionFor("owner").Begin()
	sess.End()
	sess.End() // idempotent
	p := reg.Point(CallKey{Owner: "owner", Call: "op"}, echoInvoker)
	if err := sess.AddPoint(p, "root.op"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := sess.RemovePoint(p); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionsSerializePerOwner(t *testing.T) {
	testlog.Start(t)
	reg := New()
	ctx := reg.NewSessionFor("owner")
	first := ctx.Begin()

	entered := make(chan struct{})
	go func() {
		second := ctx.Begin()
		close(entered)
		second.End()
	}()

	select {
	case <-entered:
		t.Fatalf("second session began while the first was open")
	case <-time.After(20 * time.Millisecond):
	}
	first.End()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("second session never began")
	}
}

func TestSessionsForDistinctOwnersProceed(t *testing.T) {
	testlog.Start(t)
	reg := New()
	a := reg.NewSessionFor("alpha").Begin()
	defer a.End()

	done := make(chan struct{})
	go func() {
		b := reg.NewSessionFor("beta").Begin()
		b.End()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("session for a different owner blocked")
	}
}

func TestOnSessionEnd(t *testing.T) {
	testlog.Start(t)
	reg := New()
	var gotOwner Owner
	var gotJournal []JournalEntry
	reg.OnSessionEnd(func(owner Owner, journal []JournalEntry) {
		gotOwner = owner
		gotJournal = journal
	})
	sess := reg.NewSessionFor("owner").Begin()
	p := reg.Point(CallKey{Owner: "owner", Call: "op"}, echoInvoker)
	if err := sess.AddPoint(p, "root.op"); err != nil {
		t.Fatalf("add: %v", err)
	}
	sess.End()
	if gotOwner != Owner("owner") {
		t.Fatalf("observer owner: %v", gotOwner)
	}
	if len(gotJournal) != 1 || gotJournal[0].Type != CallType {
		t.Fatalf("observer journal: %v", gotJournal)
	}
}

func TestLookupPointDoesNotCreate(t *testing.T) {
	testlog.Start(t)
	reg := New()
	key := HandlerKey{Owner: "owner", Handler: "on"}
	if _, ok := reg.LookupPoint(key); ok {
		t.Fatalf("lookup must miss before the point exists")
	}
	p := reg.Point(key, echoInvoker)
	got, ok := reg.LookupPoint(key)
	if !ok || got != p {
		t.Fatalf("lookup must return the live point")
	}
}

func TestStaleContextStillSerializes(t *testing.T) {
	testlog.Start(t)
	reg := New()
	stale := reg.NewSessionFor("owner")
	// an empty session leaves the owner with no records, pruning the
	// context while the caller still holds its pointer
	stale.Begin().End()
	live := reg.NewSessionFor("owner")
	if live == stale {
		t.Fatalf("pruned context must be replaced")
	}

	open := live.Begin()
	entered := make(chan struct{})
	go func() {
		s := stale.Begin()
		close(entered)
		s.End()
	}()
	select {
	case <-entered:
		t.Fatalf("a stale context opened a session concurrently")
	case <-time.After(20 * time.Millisecond):
	}
	open.End()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("stale session never opened")
	}
}

func TestContextPrunedWhenOwnerDrained(t *testing.T) {
	testlog.Start(t)
	reg := New()
	ctx := reg.NewSessionFor("owner")
	sess := ctx.Begin()
	p := reg.Point(CallKey{Owner: "owner", Call: "op"}, echoInvoker)
	if err := sess.AddPoint(p, "root.op"); err != nil {
		t.Fatalf("add: %v", err)
	}
	sess.End()
	if reg.NewSessionFor("owner") != ctx {
		t.Fatalf("context must survive while the owner holds records")
	}
	drain := ctx.Begin()
	if err := drain.RemovePoint(p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	drain.End()
	if reg.NewSessionFor("owner") == ctx {
		t.Fatalf("context must be pruned once the owner is drained")
	}
}
