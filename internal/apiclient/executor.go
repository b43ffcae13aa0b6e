package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MaxResponseBytes caps how much of a backend response body is read.
const MaxResponseBytes = 1 << 20

var errResponseTooLarge = errors.New("response body exceeds 1 MiB")

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Executor sends a single Request to the backend. It attaches the access
// token it is given and nothing else: it never looks at the status code and
// never retries.
type Executor struct {
	baseURL string
	doer    HTTPDoer
	tracer  trace.Tracer
}

// NewExecutor creates an Executor for the backend rooted at baseURL
// (for example http://localhost:5000/api).
func NewExecutor(baseURL string, doer HTTPDoer) *Executor {
	return &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		tracer:  otel.Tracer("github.com/kulsmauinformatics/sumatin/apiclient"),
	}
}

// Execute sends req with accessToken as bearer credential when non-empty.
// Transport failures come back as *NetworkError; any HTTP status, including
// 401 and 5xx, comes back as a RawResponse with a nil error.
func (e *Executor) Execute(ctx context.Context, req *Request, accessToken string) (*RawResponse, error) {
	op := req.Method + " " + req.Path

	ctx, span := e.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.Bool("sumatin.authenticated", accessToken != ""),
		),
	)
	defer span.End()

	httpReq, err := e.newHTTPRequest(ctx, req, accessToken)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &NetworkError{Op: op, Err: err}
	}

	resp, err := e.doer.Do(ctx, httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > MaxResponseBytes {
		span.SetStatus(codes.Error, errResponseTooLarge.Error())
		return nil, &NetworkError{Op: op, Err: errResponseTooLarge}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	return &RawResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}

func (e *Executor) newHTTPRequest(ctx context.Context, req *Request, accessToken string) (*http.Request, error) {
	target := e.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	return httpReq, nil
}
