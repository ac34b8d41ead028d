// Package pipeline wires the admission (shedder), dispatch (executor),
// downstream call (dataservice adapter) and reply (respwriter) stages
// together per request, matching spec.md §4.8's two-phase worker
// contract: a lane first turns an HTTP request into a data-service
// call, then — when the adapter's callback re-submits a response
// message carrying the same affinity key — the same lane turns that
// response into the HTTP reply.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/matgreaves/urishort/internal/dataservice"
	"github.com/matgreaves/urishort/internal/execution"
	"github.com/matgreaves/urishort/internal/observability"
	"github.com/matgreaves/urishort/internal/respwriter"
	"github.com/matgreaves/urishort/internal/shedder"
)

// errShed marks admission rejected by the load-shedder, as distinct
// from execution.ErrQueueFull (admitted, but the lane queue is full).
var errShed = errors.New("pipeline: shed")

// instruments are the Pipeline's Decorate handles, registered once
// against the process registry so Accept's hot path never does a
// name-keyed lookup. end-to-end request latency/outcome is recorded
// manually (not via Decorate) because a request's lifetime spans the
// async adapter callback; shedder-acquire and executor-submit are
// synchronous and go through Decorate directly.
type instruments struct {
	requestLatency observability.Histogram
	requestCalls   observability.Counter
	requestErrs    observability.Counter

	shedLatency observability.Histogram
	shedCalls   observability.Counter
	shedErrs    observability.Counter
	shedTotal   observability.Counter

	submitLatency  observability.Histogram
	submitCalls    observability.Counter
	submitErrs     observability.Counter
	queueFullTotal observability.Counter
}

func newInstruments(reg *observability.Registry) instruments {
	var in instruments
	in.requestLatency, _ = reg.RegisterHistogram("pipeline_request_duration_ms", observability.UnitMilliseconds)
	in.requestCalls, _ = reg.RegisterCounter("pipeline_requests_total", observability.UnitDimensionless)
	in.requestErrs, _ = reg.RegisterCounter("pipeline_request_errors_total", observability.UnitDimensionless)

	in.shedLatency, _ = reg.RegisterHistogram("pipeline_shedder_acquire_duration_ms", observability.UnitMilliseconds)
	in.shedCalls, _ = reg.RegisterCounter("pipeline_shedder_acquire_total", observability.UnitDimensionless)
	in.shedErrs, _ = reg.RegisterCounter("pipeline_shedder_acquire_errors_total", observability.UnitDimensionless)
	in.shedTotal, _ = reg.RegisterCounter("pipeline_requests_shed_total", observability.UnitDimensionless)

	in.submitLatency, _ = reg.RegisterHistogram("pipeline_executor_submit_duration_ms", observability.UnitMilliseconds)
	in.submitCalls, _ = reg.RegisterCounter("pipeline_executor_submit_total", observability.UnitDimensionless)
	in.submitErrs, _ = reg.RegisterCounter("pipeline_executor_submit_errors_total", observability.UnitDimensionless)
	in.queueFullTotal, _ = reg.RegisterCounter("pipeline_queue_full_total", observability.UnitDimensionless)
	return in
}

// Route identifies which external operation a request performs.
type Route int

const (
	RouteShorten Route = iota
	RouteResolve
	RouteDelete
)

type requestPayload struct {
	route  Route
	code   string
	body   []byte
	writer *respwriter.Writer
	span   *observability.Span
	ctx    context.Context
	start  time.Time
}

type responsePayload struct {
	writer *respwriter.Writer
	resp   dataservice.Response
	err    error
	span   *observability.Span
	ctx    context.Context
	start  time.Time
}

// Pipeline owns the shared shedder, executor and data-service adapter
// and implements execution.Handler, dispatching on payload type.
type Pipeline struct {
	shedder     *shedder.Shedder
	executor    *execution.AffinityExecutor
	adapter     *dataservice.Adapter
	provider    *observability.Provider
	instruments instruments
}

// New builds a Pipeline bound to exec. Since Pipeline is itself exec's
// Handler, exec must be constructed with this Pipeline first — see
// NewExecutor, which wires that cycle for the common case.
func New(sh *shedder.Shedder, exec *execution.AffinityExecutor, adapter *dataservice.Adapter, provider *observability.Provider) *Pipeline {
	return &Pipeline{shedder: sh, executor: exec, adapter: adapter, provider: provider, instruments: newInstruments(provider.Registry())}
}

// NewExecutor builds an AffinityExecutor and the Pipeline that handles
// its messages in one step, resolving the mutual dependency between
// the two (the executor needs a Handler at construction; the Pipeline
// needs the executor to submit follow-up messages).
func NewExecutor(numLanes int, sh *shedder.Shedder, adapter *dataservice.Adapter, provider *observability.Provider) (*execution.AffinityExecutor, *Pipeline) {
	p := &Pipeline{shedder: sh, adapter: adapter, provider: provider, instruments: newInstruments(provider.Registry())}
	exec := execution.New(numLanes, p, provider.Logger())
	p.executor = exec
	return exec, p
}

// Handle implements execution.Handler.
func (p *Pipeline) Handle(msg execution.Message) {
	switch payload := msg.Payload.(type) {
	case requestPayload:
		p.handleRequest(msg.AffinityKey, payload)
	case responsePayload:
		p.handleResponse(payload)
	default:
		p.provider.Logger().Error("pipeline: unknown payload type", "type", fmt.Sprintf("%T", payload))
	}
}

// Accept is the ingress entry point: admission control, then affinity
// dispatch. Returns immediately after either shedding or submitting;
// the actual HTTP reply happens asynchronously via w. Opens the
// top-level "pipeline.request" span, which handleResponse closes once
// the reply is known (or Accept itself closes it if the request never
// makes it past admission).
func (p *Pipeline) Accept(route Route, code string, body []byte, w *respwriter.Writer, tc observability.TraceContext) {
	start := time.Now()
	ctx := observability.ContextWithTraceContext(context.Background(), tc)
	ctx, span := p.provider.StartSpan(ctx, "pipeline.request", observability.SpanKindServer)

	var token *shedder.Token
	acquire := p.provider.Decorate(p.provider.Registry(), "shedder.acquire", p.instruments.shedLatency, p.instruments.shedCalls, p.instruments.shedErrs, func(context.Context) error {
		tok, ok := p.shedder.TryAcquire()
		if !ok {
			return errShed
		}
		token = tok
		return nil
	})

	if err := acquire(ctx); err != nil {
		p.provider.Registry().Add(ctx, p.instruments.shedTotal, 1)
		p.finishRejected(ctx, span, start, http.StatusServiceUnavailable, "Service overloaded")
		w.Send(http.StatusServiceUnavailable,
			map[string]string{"Content-Type": "application/json", "Retry-After": "1"},
			mustJSON(map[string]string{"error": "Service overloaded"}))
		w.Close()
		return
	}
	w.AddScopedResource(respwriter.CloserFunc(func() error {
		token.Release()
		return nil
	}))

	key := affinityKey(code)
	msg := execution.Message{
		AffinityKey: key,
		Payload:     requestPayload{route: route, code: code, body: body, writer: w, span: span, ctx: ctx, start: start},
	}
	submit := p.provider.Decorate(p.provider.Registry(), "executor.submit", p.instruments.submitLatency, p.instruments.submitCalls, p.instruments.submitErrs, func(context.Context) error {
		return p.executor.Submit(msg)
	})

	if err := submit(ctx); err != nil {
		token.Release()
		p.provider.Registry().Add(ctx, p.instruments.queueFullTotal, 1)
		p.finishRejected(ctx, span, start, http.StatusServiceUnavailable, "Service overloaded")
		w.Send(http.StatusServiceUnavailable,
			map[string]string{"Content-Type": "application/json", "Retry-After": "1"},
			mustJSON(map[string]string{"error": "Service overloaded"}))
		w.Close()
	}
}

// finishRejected records the end-to-end request outcome for a request
// that never reaches handleResponse (shed or queue-full).
func (p *Pipeline) finishRejected(ctx context.Context, span *observability.Span, start time.Time, status int, reason string) {
	span.SetStatus(observability.StatusError, reason)
	span.End()
	p.provider.Registry().Add(ctx, p.instruments.requestCalls, 1)
	p.provider.Registry().Add(ctx, p.instruments.requestErrs, 1)
	p.provider.Registry().Record(ctx, p.instruments.requestLatency, float64(time.Since(start).Microseconds())/1000.0)
}

func (p *Pipeline) handleRequest(affinityKey uint64, req requestPayload) {
	dsReq := dataservice.Request{EntityID: req.code}
	switch req.route {
	case RouteShorten:
		var body struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(req.body, &body); err != nil || body.URL == "" {
			req.span.SetStatus(observability.StatusError, "missing url field")
			req.span.End()
			reg := p.provider.Registry()
			reg.Add(req.ctx, p.instruments.requestCalls, 1)
			reg.Add(req.ctx, p.instruments.requestErrs, 1)
			reg.Record(req.ctx, p.instruments.requestLatency, float64(time.Since(req.start).Microseconds())/1000.0)
			req.writer.Send(http.StatusBadRequest,
				jsonHeaders(),
				mustJSON(map[string]string{"error": "Missing 'url' field"}))
			req.writer.Close()
			return
		}
		dsReq.Op = dataservice.Save
		dsReq.Payload = req.body
	case RouteResolve:
		dsReq.Op = dataservice.Find
	case RouteDelete:
		dsReq.Op = dataservice.Delete
	}

	p.adapter.Execute(req.ctx, dsReq, func(resp dataservice.Response, err error) {
		payload := responsePayload{writer: req.writer, resp: resp, err: err, span: req.span, ctx: req.ctx, start: req.start}
		msg := execution.Message{AffinityKey: affinityKey, Payload: payload}
		submit := p.provider.Decorate(p.provider.Registry(), "executor.submit", p.instruments.submitLatency, p.instruments.submitCalls, p.instruments.submitErrs, func(context.Context) error {
			return p.executor.Submit(msg)
		})
		if submitErr := submit(req.ctx); submitErr != nil {
			// Lane congested enough to reject the resubmit; affinity
			// ordering for this reply can't be preserved anyway, so
			// deliver it inline rather than drop it.
			p.provider.Registry().Add(req.ctx, p.instruments.queueFullTotal, 1)
			p.provider.Logger().Error("pipeline: lane queue full, delivering response inline", "err", submitErr)
			p.handleResponse(payload)
		}
	})
}

func (p *Pipeline) handleResponse(resp responsePayload) {
	defer resp.writer.Close()

	status := http.StatusInternalServerError
	var body []byte
	var outcomeErr error

	switch {
	case resp.err != nil:
		status = infraErrorStatus(resp.err)
		body = mustJSON(map[string]string{"error": resp.err.Error()})
		outcomeErr = resp.err
	case resp.resp.Success:
		status = resp.resp.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		body = resp.resp.Payload
	default:
		status = domainErrorStatus(resp.resp.DomainError)
		body = resp.resp.Payload
		if len(body) == 0 {
			body = mustJSON(map[string]string{"error": resp.resp.ErrorMessage})
		}
		outcomeErr = fmt.Errorf("dataservice: %s", resp.resp.ErrorMessage)
	}

	resp.writer.Send(status, jsonHeaders(), body)

	if outcomeErr != nil {
		resp.span.SetStatus(observability.StatusError, outcomeErr.Error())
	} else {
		resp.span.SetStatus(observability.StatusOk, "")
	}
	resp.span.End()

	reg := p.provider.Registry()
	reg.Add(resp.ctx, p.instruments.requestCalls, 1)
	if outcomeErr != nil {
		reg.Add(resp.ctx, p.instruments.requestErrs, 1)
	}
	reg.Record(resp.ctx, p.instruments.requestLatency, float64(time.Since(resp.start).Microseconds())/1000.0)
}

func infraErrorStatus(err error) int {
	switch {
	case errors.Is(err, dataservice.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, dataservice.ErrConnectionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

func domainErrorStatus(code dataservice.DomainError) int {
	switch code {
	case dataservice.DomainNotFound:
		return http.StatusNotFound
	case dataservice.DomainAlreadyExists:
		return http.StatusConflict
	case dataservice.DomainInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return data
}

// affinityKey derives a stable lane key from the short code path
// parameter, per spec.md §4.8 ("a stable hash of the short-code path
// parameter, or a session cookie").
func affinityKey(code string) uint64 {
	if code == "" {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(code))
	return h.Sum64()
}
