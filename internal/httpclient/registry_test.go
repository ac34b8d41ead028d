package httpclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/matgreaves/urishort/internal/httpclient"
)

func TestRegistry_GetOrCreateReusesLiveSession(t *testing.T) {
	r := httpclient.NewRegistry(httpclient.Config{AllowHTTP: true})

	s1 := r.GetOrCreate("127.0.0.1", 9999)
	s2 := r.GetOrCreate("127.0.0.1", 9999)
	if s1 != s2 {
		t.Fatal("GetOrCreate: want same session for same host:port while alive")
	}
}

func TestRegistry_EvictsDeadSession(t *testing.T) {
	r := httpclient.NewRegistry(httpclient.Config{
		AllowHTTP:      true,
		ConnectTimeout: 20 * time.Millisecond,
	})

	s1 := r.GetOrCreate("127.0.0.1", 1)
	done := make(chan struct{})
	s1.Submit(context.Background(), "GET", "/", nil, nil, func(httpclient.Response, error) { close(done) })
	<-done

	if !s1.IsDead() {
		t.Fatal("session should be dead after connect failure")
	}

	s2 := r.GetOrCreate("127.0.0.1", 1)
	if s1 == s2 {
		t.Fatal("GetOrCreate: want a fresh session after eviction of a dead one")
	}
}
