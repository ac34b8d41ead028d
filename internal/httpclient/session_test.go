package httpclient_test

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matgreaves/urishort/internal/httpclient"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func startH2CServer(t *testing.T, handler http.Handler) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	h2s := &http2.Server{}
	srv := &http.Server{Handler: h2c.NewHandler(handler, h2s)}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	addr := ln.Addr().String()
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("atoi: %v", err)
	}
	return h, portNum
}

func TestSession_SubmitAfterConnect(t *testing.T) {
	host, port := startH2CServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello " + r.URL.Path))
	}))

	s := httpclient.NewSession(host, port, httpclient.Config{AllowHTTP: true})

	var wg sync.WaitGroup
	wg.Add(1)
	var resp httpclient.Response
	var callErr error
	s.Submit(context.Background(), http.MethodGet, "/links/abc", nil, nil, func(r httpclient.Response, err error) {
		resp, callErr = r, err
		wg.Done()
	})
	wg.Wait()

	if callErr != nil {
		t.Fatalf("Submit: %v", callErr)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "/links/abc") {
		t.Fatalf("Body = %q, want to contain /links/abc", resp.Body)
	}
}

func TestSession_QueuesRequestsBeforeConnected(t *testing.T) {
	host, port := startH2CServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	s := httpclient.NewSession(host, port, httpclient.Config{AllowHTTP: true})

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		s.Submit(context.Background(), http.MethodGet, "/", nil, nil, func(r httpclient.Response, err error) {
			if err != nil {
				t.Errorf("Submit: %v", err)
			}
			wg.Done()
		})
	}
	wg.Wait()
}

func TestSession_ConnectFailureFailsPending(t *testing.T) {
	// Port 1 is reserved and should refuse/fail quickly in a sandboxed
	// test environment; if not, the connect timeout below still bounds it.
	s := httpclient.NewSession("127.0.0.1", 1, httpclient.Config{
		AllowHTTP:      true,
		ConnectTimeout: 50 * time.Millisecond,
	})

	done := make(chan error, 1)
	s.Submit(context.Background(), http.MethodGet, "/", nil, nil, func(r httpclient.Response, err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Submit to unreachable peer: want error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit to unreachable peer: timed out waiting for callback")
	}

	if !s.IsDead() {
		t.Fatal("IsDead: want true after connect failure")
	}
}
