package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mitchins/SmolRouter/pkg/logsink"
	"github.com/mitchins/SmolRouter/pkg/providers"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/routing"
	"github.com/mitchins/SmolRouter/pkg/telemetry/tracing"
)

// Dispatch routes req and returns the answer in the caller's shape.
//
// An upstream 4xx that is not a quota or credential problem comes back as
// a Response carrying the upstream status and body. Every other failure
// is returned as an error; Describe maps it to a client status.
func (e *Engine) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracing.Start(ctx, "dispatch", tracing.RequestAttributes(req.RequestID, req.SourceHost)...)
	resp, err := e.dispatch(ctx, req)
	tracing.End(span, err)
	return resp, err
}

func (e *Engine) dispatch(ctx context.Context, req *Request) (*Response, error) {
	snap := e.snap.Load()
	rc := &RequestContext{
		RequestID:  req.RequestID,
		SourceHost: req.SourceHost,
		Shape:      req.Shape,
		Start:      time.Now(),
	}

	creq, err := providers.Normalize(req.Shape, req.Body)
	if err != nil {
		e.record(rc, req, nil, err)
		return nil, err
	}
	rc.OriginalModel = creq.Model
	rc.Stream = creq.Stream
	tracing.Annotate(ctx,
		attribute.String(tracing.AttrModel, creq.Model),
		attribute.Bool(tracing.AttrStream, creq.Stream),
	)

	plan, err := snap.Plan(req.SourceHost, creq.Model)
	if err != nil {
		e.record(rc, req, nil, err)
		return nil, err
	}
	rc.Route = plan.Label
	tracing.Annotate(ctx, attribute.String(tracing.AttrPlan, plan.Label))

	var out *Response
	res, err := e.executor.Execute(ctx, plan.Label, plan.Instances, func(ctx context.Context, inst routing.Instance) error {
		resp, err := e.attempt(ctx, snap, req, creq, rc, inst)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if res != nil {
		rc.Attempts = len(res.Attempts)
	}

	if err != nil {
		// A single upstream reports its own failure rather than an
		// aggregate of one.
		var all *routing.AllInstancesFailedError
		if !plan.Alias && errors.As(err, &all) && all.LastError != nil {
			err = all.LastError
		}

		// Client errors always pass through. Without an alias there is
		// nothing to fail over to, so any other upstream answer except a
		// quota rejection passes through as well.
		var status *providers.StatusError
		if errors.As(err, &status) && (status.Outcome == providers.OutcomeClientError ||
			(!plan.Alias && status.Outcome != providers.OutcomeQuota)) {
			resp := rejection(status, rc)
			e.record(rc, req, resp, nil)
			return resp, nil
		}

		e.record(rc, req, nil, err)
		return nil, err
	}

	out.Context = rc
	if !out.IsStream() {
		e.record(rc, req, out, nil)
	}
	return out, nil
}

// attempt tries one instance inside its own span.
func (e *Engine) attempt(ctx context.Context, snap *Snapshot, req *Request, creq *providers.ChatRequest, rc *RequestContext, inst routing.Instance) (*Response, error) {
	ctx, span := tracing.Start(ctx, "dispatch.attempt", tracing.InstanceAttributes(inst.Server, inst.Model)...)
	resp, err := e.tryInstance(ctx, snap, req, creq, rc, inst)
	tracing.End(span, err)
	return resp, err
}

// tryInstance walks the provider's key pool on quota and credential
// rejections.
func (e *Engine) tryInstance(ctx context.Context, snap *Snapshot, req *Request, creq *providers.ChatRequest, rc *RequestContext, inst routing.Instance) (*Response, error) {
	p, ok := snap.Provider(inst.Server)
	if !ok {
		return nil, &providers.UnreachableError{Provider: inst.Server, Cause: ErrUnknownServer}
	}
	if !p.Enabled() {
		e.observe(p.Name, OutcomeDisabled)
		return nil, &providers.UnreachableError{Provider: p.Name, Cause: ErrProviderDisabled}
	}

	model := snap.UpstreamModel(inst.Model)
	rc.Provider = p.Name
	rc.ResolvedModel = inst.Model
	rc.UpstreamModel = model
	rc.KeyFingerprint = ""

	pooled := p.HasKeys() && e.ledger.HasKeys(p.Name)
	tries := 1
	if pooled {
		tries = len(p.Keys) + 1
	}

	var lastRetry time.Duration
	for try := 0; try < tries; try++ {
		key := ""
		if pooled {
			k, err := e.ledger.Select(p.Name, model)
			if err != nil {
				var exhausted *quota.QuotaExhaustedError
				if errors.As(err, &exhausted) && exhausted.RetryAfter == 0 {
					exhausted.RetryAfter = lastRetry
				}
				return nil, err
			}
			key = k
			rc.KeyFingerprint = quota.Fingerprint(key)
		}
		tracing.Annotate(ctx, tracing.KeyAttributes(p.Name, rc.KeyFingerprint)...)

		resp, err := e.call(ctx, snap, p, req, creq, rc, model, key)
		if err == nil {
			return resp, nil
		}

		var status *providers.StatusError
		if !errors.As(err, &status) {
			return nil, err
		}

		switch status.Outcome {
		case providers.OutcomeQuota:
			e.observe(p.Name, OutcomeQuota)
			if key == "" {
				return nil, status
			}
			e.ledger.RecordQuotaRejection(p.Name, key, model, status.RetryAfter)
			lastRetry = status.RetryAfter

		case providers.OutcomeInvalidKey:
			e.observe(p.Name, OutcomeInvalidKey)
			if key == "" {
				// Without a pool the credential is the client's own.
				status.Outcome = providers.OutcomeClientError
				return nil, status
			}
			e.ledger.RecordInvalid(p.Name, key)

		case providers.OutcomeServerError:
			e.observe(p.Name, OutcomeServerError)
			if key != "" {
				e.ledger.RecordFailure(p.Name, key, model, status.Error())
			}
			p.RecordResult(false, status)
			return nil, status

		default:
			e.observe(p.Name, OutcomeClientError)
			return nil, status
		}
	}

	return nil, &quota.QuotaExhaustedError{Provider: p.Name, Model: model, RetryAfter: lastRetry}
}

// call performs one upstream exchange with one key.
func (e *Engine) call(ctx context.Context, snap *Snapshot, p *providers.Provider, req *Request, creq *providers.ChatRequest, rc *RequestContext, model, key string) (*Response, error) {
	ur, err := providers.BuildUpstream(p, creq, model, key, req.Headers)
	if err != nil {
		return nil, err
	}

	release := func() {}
	if p.Type == providers.TypeGoogleGenAI {
		release, err = e.funnel.Load().Acquire(ctx)
		if err != nil {
			return nil, err
		}
	}

	if creq.Stream {
		httpResp, err := e.client.Open(ctx, p, ur)
		if err != nil {
			release()
			return nil, e.transportFailure(p, model, key, err)
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			body := providers.ReadErrorBody(httpResp)
			release()
			return nil, statusError(p, httpResp.StatusCode, httpResp.Header, body)
		}
		return e.streamResponse(snap, p, req, rc, model, key, httpResp, release), nil
	}

	upResp, err := e.client.Do(ctx, p, ur)
	release()
	if err != nil {
		return nil, e.transportFailure(p, model, key, err)
	}
	if upResp.StatusCode < 200 || upResp.StatusCode > 299 {
		return nil, statusError(p, upResp.StatusCode, upResp.Header, upResp.Body)
	}

	body, err := render(snap, p, req.Shape, rc.OriginalModel, upResp.Body)
	if err != nil {
		e.observe(p.Name, OutcomeBadResponse)
		p.RecordResult(false, err)
		return nil, err
	}

	e.succeeded(p, model, key)
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{providers.ContentType(req.Shape, false)}},
		Body:       body,
	}, nil
}

func (e *Engine) succeeded(p *providers.Provider, model, key string) {
	e.observe(p.Name, OutcomeSuccess)
	p.RecordResult(true, nil)
	if key != "" {
		e.ledger.RecordSuccess(p.Name, key, model)
	}
}

// transportFailure books a failed exchange. Cancellation by the caller is
// not the provider's fault and is passed through untouched.
func (e *Engine) transportFailure(p *providers.Provider, model, key string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	outcome := OutcomeUnreachable
	if errors.Is(err, providers.ErrTimeout) {
		outcome = OutcomeTimeout
	}
	e.observe(p.Name, outcome)
	p.RecordResult(false, err)
	if key != "" {
		e.ledger.RecordFailure(p.Name, key, model, err.Error())
	}
	return err
}

func statusError(p *providers.Provider, code int, header http.Header, body []byte) *providers.StatusError {
	return &providers.StatusError{
		Provider:    p.Name,
		StatusCode:  code,
		Outcome:     providers.Classify(code, body),
		Body:        body,
		ContentType: header.Get("Content-Type"),
		RetryAfter:  providers.ParseRetryDelay(header, body),
	}
}

// rejection passes an upstream error answer through unchanged.
func rejection(status *providers.StatusError, rc *RequestContext) *Response {
	contentType := status.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return &Response{
		StatusCode: status.StatusCode,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       status.Body,
		Context:    rc,
	}
}

// record writes the request log entry and, for non-streaming requests,
// the request and response bodies.
func (e *Engine) record(rc *RequestContext, req *Request, resp *Response, err error) {
	entry := newEntry(rc, req)
	switch {
	case err != nil:
		entry.Status = Describe(err).Status
		entry.Error = err.Error()
	case resp != nil:
		entry.Status = resp.StatusCode
		entry.ResponseBytes = int64(len(resp.Body))
	}
	e.sink.Record(entry)

	if !rc.Stream && rc.RequestID != "" {
		e.blobs.Put(rc.RequestID, logsink.KindRequest, req.Body)
		if resp != nil {
			e.blobs.Put(rc.RequestID, logsink.KindResponse, resp.Body)
		}
	}
	e.logDispatched(rc, entry)
}

// recordStream logs a stream once it has ended. Headers were already
// sent, so the status is always 200.
func (e *Engine) recordStream(rc *RequestContext, req *Request, written int64, err error) {
	entry := newEntry(rc, req)
	entry.Status = http.StatusOK
	entry.ResponseBytes = written
	if err != nil {
		entry.Error = err.Error()
		e.logger.Warn("stream ended with error",
			"request_id", rc.RequestID,
			"provider", rc.Provider,
			"bytes_written", written,
			"error", err,
		)
	}
	e.sink.Record(entry)
	e.logDispatched(rc, entry)
}

func newEntry(rc *RequestContext, req *Request) logsink.Entry {
	return logsink.Entry{
		Timestamp:      rc.Start,
		RequestID:      rc.RequestID,
		SourceHost:     rc.SourceHost,
		Endpoint:       rc.Shape.String(),
		OriginalModel:  rc.OriginalModel,
		ResolvedModel:  rc.ResolvedModel,
		UpstreamModel:  rc.UpstreamModel,
		Route:          rc.Route,
		Provider:       rc.Provider,
		KeyFingerprint: rc.KeyFingerprint,
		Attempts:       rc.Attempts,
		Duration:       time.Since(rc.Start),
		RequestBytes:   int64(len(req.Body)),
		Streaming:      rc.Stream,
	}
}

func (e *Engine) logDispatched(rc *RequestContext, entry logsink.Entry) {
	e.logger.Debug("request dispatched",
		"request_id", rc.RequestID,
		"route", rc.Route,
		"provider", rc.Provider,
		"model", rc.OriginalModel,
		"upstream_model", rc.UpstreamModel,
		"attempts", rc.Attempts,
		"status", entry.Status,
		"duration", entry.Duration,
	)
}
