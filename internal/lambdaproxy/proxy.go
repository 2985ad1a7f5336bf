// Package lambdaproxy serves API Gateway proxy events through the gin router,
// so the same handlers run behind a Lambda function URL or a REST API.
package lambdaproxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Flusher drains background work queued during an invocation. Lambda freezes
// the process once the handler returns, so pending deliveries and audit writes
// must finish first.
type Flusher interface {
	Flush(ctx context.Context) error
}

type Adapter struct {
	handler http.Handler
	flusher Flusher
	logger  *slog.Logger
}

func New(handler http.Handler, flusher Flusher, logger *slog.Logger) (*Adapter, error) {
	if handler == nil {
		return nil, fmt.Errorf("lambdaproxy: handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{handler: handler, flusher: flusher, logger: logger}, nil
}

func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := newRequest(ctx, event)
	if err != nil {
		a.logger.Warn("Rejected malformed proxy event", "error", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if a.flusher != nil {
		if err := a.flusher.Flush(ctx); err != nil {
			a.logger.Warn("Deliveries still pending at end of invocation", "error", err)
		}
	}
	return newResponse(rec), nil
}

func newRequest(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		body = decoded
	}

	u := url.URL{Path: event.Path}
	if u.Path == "" {
		u.Path = "/"
	}
	q := url.Values{}
	for k, vs := range event.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	method := event.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, u.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	req.Host = req.Header.Get("Host")
	req.ContentLength = int64(len(body))
	if ip := event.RequestContext.Identity.SourceIP; ip != "" {
		req.RemoteAddr = net.JoinHostPort(ip, "0")
	}
	return req, nil
}

func newResponse(rec *httptest.ResponseRecorder) events.APIGatewayProxyResponse {
	res := events.APIGatewayProxyResponse{
		StatusCode:        rec.Code,
		MultiValueHeaders: map[string][]string(rec.Header().Clone()),
	}
	if isText(rec.Header().Get("Content-Type")) {
		res.Body = rec.Body.String()
	} else {
		res.Body = base64.StdEncoding.EncodeToString(rec.Body.Bytes())
		res.IsBase64Encoded = true
	}
	return res
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "text/") ||
		mt == "application/json" ||
		mt == "image/svg+xml" ||
		strings.HasSuffix(mt, "+json")
}
