package session

import (
	"context"
	"testing"
)

func TestScopeLifecycle(t *testing.T) {
	ctx, release := NewContext(context.Background())
	if _, ok := FromContext(ctx); ok {
		t.Fatalf("new scope must be empty")
	}

	p := Principal{ID: 7, NickName: "n"}
	if !Attach(ctx, p) {
		t.Fatalf("Attach on an open scope failed")
	}
	got, ok := FromContext(ctx)
	if !ok || got != p {
		t.Fatalf("FromContext: ok=%v got=%+v", ok, got)
	}

	// a context derived before release observes the clear as well
	child, cancel := context.WithCancel(ctx)
	defer cancel()
	release()
	if _, ok := FromContext(child); ok {
		t.Fatalf("principal leaked after release")
	}
	if Attach(ctx, p) {
		t.Fatalf("Attach after release must fail")
	}
}

func TestNoScope(t *testing.T) {
	if Attach(context.Background(), Principal{ID: 1}) {
		t.Fatalf("Attach without a scope must fail")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context has no principal")
	}
}

func TestScopesAreIndependent(t *testing.T) {
	a, releaseA := NewContext(context.Background())
	b, releaseB := NewContext(context.Background())
	defer releaseB()

	Attach(a, Principal{ID: 1})
	releaseA()
	if _, ok := FromContext(b); ok {
		t.Fatalf("scope b must not see scope a's principal")
	}
}
