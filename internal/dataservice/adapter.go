// Package dataservice adapts protocol-agnostic SAVE/FIND/DELETE/EXISTS
// operations onto HTTP/2 requests against a resolved peer, translating
// transport failures and HTTP status codes into a small closed error
// taxonomy. Grounded on
// original_source/apps/uri_shortener/service/include/HttpDataServiceAdapter.{h,cpp}
// and DataServiceMessages.h.
package dataservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matgreaves/urishort/internal/httpclient"
	"github.com/matgreaves/urishort/internal/observability"
	"github.com/matgreaves/urishort/internal/resolver"
)

// Operation mirrors DataServiceOperation.
type Operation int

const (
	Save Operation = iota
	Find
	Delete
	Exists
)

// DomainError mirrors the original's domain_error_code mapping (HTTP
// status -> small integer).
type DomainError int

const (
	DomainNone               DomainError = 0
	DomainNotFound           DomainError = 1
	DomainAlreadyExists      DomainError = 2
	DomainInvalidRequest     DomainError = 3
	DomainInternalError      DomainError = 4
	DomainServiceUnavailable DomainError = 5
	DomainUnknown            DomainError = 99
)

// InfraError mirrors the original's InfraError enum: a transport-level
// failure distinct from a domain-level HTTP status.
var (
	ErrConnectionFailed = errors.New("dataservice: connection failed")
	ErrTimeout          = errors.New("dataservice: timeout")
	ErrProtocolError    = errors.New("dataservice: protocol error")
)

// Request is a protocol-agnostic data-service call.
type Request struct {
	Op       Operation
	EntityID string
	Payload  []byte
}

// Response is the outcome of Execute.
type Response struct {
	Success      bool
	DomainError  DomainError
	HTTPStatus   int
	Payload      []byte
	ErrorMessage string
}

// Config configures the adapter.
type Config struct {
	ServiceName string
	BasePath    string // default "/api/v1/links"
	// Provider, when set, opens a span and records latency/outcome
	// metrics around every Execute call. Optional.
	Provider *observability.Provider
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = "/api/v1/links"
	}
	return c
}

// adapterInstruments are the Decorate handles for the adapter-execute
// hop; nil when cfg.Provider is unset.
type adapterInstruments struct {
	latency observability.Histogram
	calls   observability.Counter
	errs    observability.Counter
}

// Adapter implements IDataServiceAdapter against an HTTP/2 peer.
type Adapter struct {
	cfg         Config
	resolver    resolver.ServiceResolver
	registry    *httpclient.Registry
	instruments *adapterInstruments
}

// New creates an Adapter resolving its peer via res and issuing
// requests through reg.
func New(cfg Config, res resolver.ServiceResolver, reg *httpclient.Registry) *Adapter {
	cfg = cfg.withDefaults()
	a := &Adapter{cfg: cfg, resolver: res, registry: reg}
	if cfg.Provider != nil {
		r := cfg.Provider.Registry()
		in := &adapterInstruments{}
		in.latency, _ = r.RegisterHistogram("dataservice_execute_duration_ms", observability.UnitMilliseconds)
		in.calls, _ = r.RegisterCounter("dataservice_execute_total", observability.UnitDimensionless)
		in.errs, _ = r.RegisterCounter("dataservice_execute_errors_total", observability.UnitDimensionless)
		a.instruments = in
	}
	return a
}

func operationToMethod(op Operation) string {
	switch op {
	case Save:
		return "POST"
	case Find:
		return "GET"
	case Delete:
		return "DELETE"
	case Exists:
		return "HEAD"
	default:
		return "GET"
	}
}

func (a *Adapter) buildPath(op Operation, entityID string) string {
	if op == Save {
		return a.cfg.BasePath
	}
	return a.cfg.BasePath + "/" + entityID
}

func mapHTTPStatusToError(status int) DomainError {
	switch status {
	case 404:
		return DomainNotFound
	case 409:
		return DomainAlreadyExists
	case 400:
		return DomainInvalidRequest
	case 500:
		return DomainInternalError
	case 503:
		return DomainServiceUnavailable
	default:
		return DomainUnknown
	}
}

// Execute resolves the peer, issues the request, and delivers the
// translated Response through cb.
func (a *Adapter) Execute(ctx context.Context, req Request, cb func(Response, error)) {
	var span *observability.Span
	var start time.Time
	if a.instruments != nil {
		ctx, span = a.cfg.Provider.StartSpan(ctx, "dataservice.execute", observability.SpanKindClient)
		start = time.Now()
	}
	finish := func(resp Response, err error) {
		if a.instruments != nil {
			reg := a.cfg.Provider.Registry()
			reg.Add(ctx, a.instruments.calls, 1)
			if err != nil {
				reg.Add(ctx, a.instruments.errs, 1)
				span.SetStatus(observability.StatusError, err.Error())
			} else {
				span.SetStatus(observability.StatusOk, "")
			}
			reg.Record(ctx, a.instruments.latency, float64(time.Since(start).Microseconds())/1000.0)
			span.End()
		}
		cb(resp, err)
	}

	ep, err := a.resolver.Resolve(ctx, a.cfg.ServiceName)
	if err != nil {
		finish(Response{}, fmt.Errorf("%w: %v", ErrConnectionFailed, err))
		return
	}

	session := a.registry.GetOrCreate(ep.Host, ep.Port)
	method := operationToMethod(req.Op)
	path := a.buildPath(req.Op, req.EntityID)

	headers := map[string]string{"Content-Type": "application/json"}
	if req.Op == Save {
		headers["Idempotency-Key"] = uuid.NewString()
	}

	session.Submit(ctx, method, path, req.Payload, headers, func(resp httpclient.Response, err error) {
		if err != nil {
			finish(Response{}, translateTransportError(err))
			return
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			finish(Response{Success: true, HTTPStatus: resp.StatusCode, Payload: resp.Body}, nil)
			return
		}
		domainErr := mapHTTPStatusToError(resp.StatusCode)
		finish(Response{
			Success:      false,
			DomainError:  domainErr,
			HTTPStatus:   resp.StatusCode,
			Payload:      resp.Body,
			ErrorMessage: fmt.Sprintf("data service returned HTTP %d", resp.StatusCode),
		}, nil)
	})
}

func translateTransportError(err error) error {
	switch {
	case errors.Is(err, httpclient.ErrConnectionFailed):
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	case errors.Is(err, httpclient.ErrRequestTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, httpclient.ErrStreamClosed), errors.Is(err, httpclient.ErrSubmitFailed):
		return fmt.Errorf("%w: %v", ErrProtocolError, err)
	default:
		return fmt.Errorf("%w: %v", ErrProtocolError, err)
	}
}
