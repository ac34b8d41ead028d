package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/matgreaves/urishort/internal/resolver"
)

func TestStatic_ResolveRegistered(t *testing.T) {
	r := resolver.NewStatic()
	r.Register("dataservice", resolver.Endpoint{Host: "10.0.0.1", Port: 8080})

	ep, err := r.Resolve(context.Background(), "dataservice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ep.Host != "10.0.0.1" || ep.Port != 8080 {
		t.Fatalf("Resolve = %+v, want {10.0.0.1 8080}", ep)
	}
	if !r.HasService(context.Background(), "dataservice") {
		t.Fatal("HasService: want true")
	}
}

func TestStatic_ResolveUnknown(t *testing.T) {
	r := resolver.NewStatic()
	_, err := r.Resolve(context.Background(), "missing")
	var notFound *resolver.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Resolve unknown: want *ErrNotFound, got %v", err)
	}
}

func TestStatic_Unregister(t *testing.T) {
	r := resolver.NewStatic()
	r.Register("svc", resolver.Endpoint{Host: "h", Port: 1})
	r.Unregister("svc")
	if r.HasService(context.Background(), "svc") {
		t.Fatal("HasService after Unregister: want false")
	}
}
