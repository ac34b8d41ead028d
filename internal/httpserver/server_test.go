package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/matgreaves/urishort/internal/dataservice"
	"github.com/matgreaves/urishort/internal/httpclient"
	"github.com/matgreaves/urishort/internal/httpserver"
	"github.com/matgreaves/urishort/internal/observability"
	"github.com/matgreaves/urishort/internal/pipeline"
	"github.com/matgreaves/urishort/internal/resolver"
	"github.com/matgreaves/urishort/internal/shedder"
	"github.com/matgreaves/urishort/internal/shortener"
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

func newTestServer(t *testing.T, maxConcurrent int64) *httpserver.Server {
	t.Helper()

	store := shortener.NewStore()
	dsHost, dsPort := startH2CServer(t, shortener.Handler(store, "/api/v1/links"))

	provider, err := observability.NewProvider(context.Background(), observability.Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	res := resolver.NewStatic()
	res.Register("links", resolver.Endpoint{Host: dsHost, Port: dsPort})

	reg := httpclient.NewRegistry(httpclient.Config{AllowHTTP: true})
	t.Cleanup(func() { _ = reg.Close() })

	adapter := dataservice.New(dataservice.Config{ServiceName: "links"}, res, reg)
	sh := shedder.New(maxConcurrent)

	exec, pl := pipeline.NewExecutor(4, sh, adapter, provider)

	srv := httpserver.New(httpserver.Config{Addr: "127.0.0.1:0"}, pl, provider)
	exec.Start()
	t.Cleanup(func() { _ = exec.Stop() })
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	return srv
}

func TestServer_ShortenHappyPath(t *testing.T) {
	srv := newTestServer(t, 1000)

	url := fmt.Sprintf("http://%s/shorten", srv.Addr().String())
	body, _ := json.Marshal(map[string]string{"url": "https://example.com"})
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /shorten: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestServer_UnknownCodeIs404(t *testing.T) {
	srv := newTestServer(t, 1000)

	url := fmt.Sprintf("http://%s/doesnotexist", srv.Addr().String())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_BadRequestMissingURL(t *testing.T) {
	srv := newTestServer(t, 1000)

	url := fmt.Sprintf("http://%s/shorten", srv.Addr().String())
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_HealthBypassesPipeline(t *testing.T) {
	srv := newTestServer(t, 0)

	url := fmt.Sprintf("http://%s/health", srv.Addr().String())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_OverloadReturns503WithRetryAfter(t *testing.T) {
	srv := newTestServer(t, 0)

	url := fmt.Sprintf("http://%s/shorten", srv.Addr().String())
	body, _ := json.Marshal(map[string]string{"url": "https://example.com"})
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q, want 1", resp.Header.Get("Retry-After"))
	}
}
