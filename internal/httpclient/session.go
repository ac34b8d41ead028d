// Package httpclient implements the HTTP/2 client subsystem: a per-peer
// session with a small connect/request state machine, a registry that
// get-or-creates sessions and evicts dead ones, and an optional
// round-robin pool for spreading load across multiple sessions to the
// same peer.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"

	"github.com/matgreaves/urishort/internal/observability"
)

// State mirrors the original NgHttp2Client's ConnectionState enum.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Errors returned by Session.Submit's callback, mirroring the
// original's Http2ClientError taxonomy.
var (
	ErrConnectionFailed = errors.New("httpclient: connection failed")
	ErrRequestTimeout   = errors.New("httpclient: request timeout")
	ErrStreamClosed     = errors.New("httpclient: stream closed")
	ErrSubmitFailed     = errors.New("httpclient: submit failed")
)

// Response is delivered to a pending request's callback on success.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Callback receives the outcome of a submitted request.
type Callback func(Response, error)

type pendingRequest struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
	cb      Callback
}

// Config configures connect/request timeouts and transport options for a Session.
type Config struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	AllowHTTP      bool // cleartext h2c, for talking to in-cluster peers without TLS
	// Provider, when set, opens a span and records latency/outcome
	// metrics around every Submit's underlying request. Optional.
	Provider *observability.Provider
}

// sessionInstruments are the Decorate handles for the session-submit
// hop; nil when cfg.Provider is unset.
type sessionInstruments struct {
	latency observability.Histogram
	calls   observability.Counter
	errs    observability.Counter
}

func newSessionInstruments(cfg Config) *sessionInstruments {
	if cfg.Provider == nil {
		return nil
	}
	reg := cfg.Provider.Registry()
	in := &sessionInstruments{}
	in.latency, _ = reg.RegisterHistogram("httpclient_submit_duration_ms", observability.UnitMilliseconds)
	in.calls, _ = reg.RegisterCounter("httpclient_submit_total", observability.UnitDimensionless)
	in.errs, _ = reg.RegisterCounter("httpclient_submit_errors_total", observability.UnitDimensionless)
	return in
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 200 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Session is a single HTTP/2 connection to one peer (host:port). It is
// safe for concurrent use: Submit may be called from any goroutine, and
// requests issued before the connection completes are queued and
// flushed in order once it does.
type Session struct {
	host        string
	port        int
	cfg         Config
	instruments *sessionInstruments

	mu        sync.Mutex
	state     State
	pending   []pendingRequest
	client    *http.Client
	transport *http2.Transport
	dead      bool
	connOnce  sync.Once
}

// NewSession creates a Session for host:port. The connection is lazy:
// nothing is dialed until the first Submit.
func NewSession(host string, port int, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{host: host, port: port, cfg: cfg, instruments: newSessionInstruments(cfg), state: Disconnected}
}

// State returns the session's current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session has an established connection.
func (s *Session) IsConnected() bool { return s.State() == Connected }

// IsDead reports whether the session has permanently failed and should
// be evicted from a Registry.
func (s *Session) IsDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

func (s *Session) addr() string { return fmt.Sprintf("%s:%d", s.host, s.port) }

// Submit issues a request. If the session is Connected, it's sent
// immediately; if Connecting or Disconnected, it's queued and flushed
// once the connection resolves; if Failed, cb is invoked immediately
// with ErrConnectionFailed.
func (s *Session) Submit(ctx context.Context, method, path string, body []byte, headers map[string]string, cb Callback) {
	s.mu.Lock()
	switch s.state {
	case Failed:
		s.mu.Unlock()
		cb(Response{}, ErrConnectionFailed)
		return
	case Connected:
		s.mu.Unlock()
		s.doSubmit(ctx, method, path, body, headers, cb)
		return
	default:
		s.pending = append(s.pending, pendingRequest{method: method, path: path, body: body, headers: headers, cb: cb})
		s.mu.Unlock()
		s.ensureConnected(ctx)
	}
}

// ensureConnected kicks off the connection exactly once; later callers
// just wait for pending requests to be flushed by the first caller.
func (s *Session) ensureConnected(ctx context.Context) {
	s.connOnce.Do(func() { s.connect(ctx) })
}

func (s *Session) connect(ctx context.Context) {
	s.mu.Lock()
	if s.state == Connecting || s.state == Connected || s.state == Failed {
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	s.mu.Unlock()

	var completed sync.Once
	done := make(chan struct{})

	timer := time.AfterFunc(s.cfg.ConnectTimeout, func() {
		completed.Do(func() {
			s.onConnectResult(nil, nil, fmt.Errorf("%w: connect timeout to %s", ErrConnectionFailed, s.addr()))
			close(done)
		})
	})

	go func() {
		conn, err := net.DialTimeout("tcp", s.addr(), s.cfg.ConnectTimeout)
		if err != nil {
			completed.Do(func() {
				timer.Stop()
				s.onConnectResult(nil, nil, fmt.Errorf("%w: connect to %s: %v", ErrConnectionFailed, s.addr(), err))
				close(done)
			})
			return
		}
		_ = conn.Close()
		client, transport := s.dial()
		completed.Do(func() {
			timer.Stop()
			s.onConnectResult(client, transport, nil)
			close(done)
		})
	}()
}

func (s *Session) dial() (*http.Client, *http2.Transport) {
	transport := &http2.Transport{
		AllowHTTP: s.cfg.AllowHTTP,
	}
	if s.cfg.AllowHTTP {
		transport.DialTLSContext = func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}
	}
	// otelhttp instruments every outgoing request with a client span and
	// propagates the traceparent header, so the data-service call
	// correlates with the request that triggered it.
	instrumented := otelhttp.NewTransport(transport)
	return &http.Client{Transport: instrumented}, transport
}

// onConnectResult applies the first-writer-wins outcome of a connect
// attempt: either transitions to Connected and flushes pending
// requests, or transitions to Failed and fails them all.
func (s *Session) onConnectResult(client *http.Client, transport *http2.Transport, err error) {
	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.dead = true
		pending := s.pending
		s.pending = nil
		s.mu.Unlock()
		for _, p := range pending {
			p.cb(Response{}, err)
		}
		return
	}
	s.client = client
	s.transport = transport
	s.state = Connected
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range pending {
		s.doSubmit(context.Background(), p.method, p.path, p.body, p.headers, p.cb)
	}
}

func (s *Session) doSubmit(ctx context.Context, method, path string, body []byte, headers map[string]string, cb Callback) {
	var span *observability.Span
	var start time.Time
	if s.instruments != nil {
		ctx, span = s.cfg.Provider.StartSpan(ctx, "httpclient.submit", observability.SpanKindClient)
		start = time.Now()
	}
	finish := func(resp Response, err error) {
		if s.instruments != nil {
			reg := s.cfg.Provider.Registry()
			reg.Add(ctx, s.instruments.calls, 1)
			if err != nil {
				reg.Add(ctx, s.instruments.errs, 1)
				span.SetStatus(observability.StatusError, err.Error())
			} else {
				span.SetStatus(observability.StatusOk, "")
			}
			reg.Record(ctx, s.instruments.latency, float64(time.Since(start).Microseconds())/1000.0)
			span.End()
		}
		cb(resp, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+s.addr()+path, bodyReader)
	if err != nil {
		cancel()
		finish(Response{}, fmt.Errorf("%w: %v", ErrSubmitFailed, err))
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	go func() {
		defer cancel()
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				finish(Response{}, ErrRequestTimeout)
				return
			}
			s.markDead()
			finish(Response{}, fmt.Errorf("%w: %v", ErrStreamClosed, err))
			return
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			finish(Response{}, fmt.Errorf("%w: %v", ErrStreamClosed, err))
			return
		}
		finish(Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil)
	}()
}

func (s *Session) markDead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Failed
	s.dead = true
}

// Close releases the session's underlying transport idle connections.
func (s *Session) Close() error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport != nil {
		transport.CloseIdleConnections()
	}
	return nil
}
