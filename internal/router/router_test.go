package router_test

import (
	"testing"

	"github.com/matgreaves/urishort/internal/router"
)

func TestRouter_LiteralBeforeWildcard(t *testing.T) {
	r := router.New()
	r.Get("/links/health", "health-handler")
	r.Get("/links/:code", "code-handler")

	res, ok := r.Match("GET", "/links/health")
	if !ok {
		t.Fatal("Match /links/health: want ok")
	}
	if res.Handler != "health-handler" {
		t.Fatalf("Handler = %v, want health-handler (literal must win over wildcard)", res.Handler)
	}

	res, ok = r.Match("GET", "/links/abc123")
	if !ok {
		t.Fatal("Match /links/abc123: want ok")
	}
	if res.Handler != "code-handler" {
		t.Fatalf("Handler = %v, want code-handler", res.Handler)
	}
	if res.Params["code"] != "abc123" {
		t.Fatalf("Params[code] = %q, want abc123", res.Params["code"])
	}
}

func TestRouter_MethodIsolation(t *testing.T) {
	r := router.New()
	r.Get("/x", "get")
	r.Post("/x", "post")
	r.Delete("/x", "delete")

	for method, want := range map[string]string{"GET": "get", "POST": "post", "DELETE": "delete"} {
		res, ok := r.Match(method, "/x")
		if !ok || res.Handler != want {
			t.Fatalf("Match(%s, /x) = (%v, %v), want (%v, true)", method, res.Handler, ok, want)
		}
	}

	if _, ok := r.Match("HEAD", "/x"); ok {
		t.Fatal("Match(HEAD, /x): want no match")
	}
}

func TestRouter_NoMatch(t *testing.T) {
	r := router.New()
	r.Get("/links/:code", "handler")

	if _, ok := r.Match("GET", "/links"); ok {
		t.Fatal("Match /links: want no match (missing segment)")
	}
	if _, ok := r.Match("GET", "/links/abc/extra"); ok {
		t.Fatal("Match /links/abc/extra: want no match (extra segment)")
	}
}

func TestRouter_RootPath(t *testing.T) {
	r := router.New()
	r.Get("/", "root")
	res, ok := r.Match("GET", "/")
	if !ok || res.Handler != "root" {
		t.Fatalf("Match(GET, /) = (%v, %v), want (root, true)", res.Handler, ok)
	}
}
