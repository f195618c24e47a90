package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// ResponseCapturer buffers a complete response (status, headers and body)
// in memory so it can be converted into an API Gateway response.
type ResponseCapturer struct {
	statusCode int
	body       bytes.Buffer
	headers    http.Header
	written    bool
}

// NewResponseCapturer returns an empty capturer with status 200.
func NewResponseCapturer() *ResponseCapturer {
	return &ResponseCapturer{
		statusCode: http.StatusOK,
		headers:    make(http.Header),
	}
}

func (rc *ResponseCapturer) Header() http.Header {
	return rc.headers
}

func (rc *ResponseCapturer) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
}

func (rc *ResponseCapturer) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.body.Write(b)
}

// Flush is a no-op; the response is only sent once the handler returns.
func (rc *ResponseCapturer) Flush() {}

// StatusCode returns the captured HTTP status code.
func (rc *ResponseCapturer) StatusCode() int {
	return rc.statusCode
}

// Body returns the captured response body.
func (rc *ResponseCapturer) Body() []byte {
	return rc.body.Bytes()
}

// LambdaAdapter serves API Gateway HTTP API (payload format 2.0) events
// through an http.Handler, so the same router runs behind Lambda and behind
// a plain net/http server.
type LambdaAdapter struct {
	handler http.Handler
}

// NewLambdaAdapter wraps h.
func NewLambdaAdapter(h http.Handler) *LambdaAdapter {
	return &LambdaAdapter{handler: h}
}

// Handle is the lambda.Start entry point.
func (a *LambdaAdapter) Handle(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req, err := newRequestFromEvent(ctx, ev)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}

	rc := NewResponseCapturer()
	a.handler.ServeHTTP(rc, req)

	return toEventResponse(rc), nil
}

func newRequestFromEvent(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	var body io.Reader = strings.NewReader(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 event body: %w", err)
		}
		body = bytes.NewReader(decoded)
	}

	path := ev.RawPath
	if path == "" {
		path = ev.RequestContext.HTTP.Path
	}
	if path == "" {
		path = "/"
	}
	target := path
	if ev.RawQueryString != "" {
		target += "?" + ev.RawQueryString
	}

	method := ev.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request from event: %w", err)
	}
	req.RequestURI = target

	for k, v := range ev.Headers {
		req.Header.Set(k, v)
	}
	if len(ev.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(ev.Cookies, "; "))
	}
	if req.Header.Get(requestIDHeader) == "" && ev.RequestContext.RequestID != "" {
		req.Header.Set(requestIDHeader, ev.RequestContext.RequestID)
	}

	req.Host = req.Header.Get("Host")
	if req.Host == "" {
		req.Host = ev.RequestContext.DomainName
	}
	req.RemoteAddr = ev.RequestContext.HTTP.SourceIP

	return req, nil
}

// toEventResponse converts a captured response. Encoded or non-UTF-8 bodies
// are base64-encoded as API Gateway requires.
func toEventResponse(rc *ResponseCapturer) events.APIGatewayV2HTTPResponse {
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: rc.StatusCode(),
		Headers:    make(map[string]string, len(rc.Header())),
	}

	for k, values := range rc.Header() {
		if k == "Set-Cookie" {
			resp.Cookies = append(resp.Cookies, values...)
			continue
		}
		resp.Headers[k] = strings.Join(values, ", ")
	}

	body := rc.Body()
	if rc.Header().Get("Content-Encoding") != "" || !utf8.Valid(body) {
		resp.Body = base64.StdEncoding.EncodeToString(body)
		resp.IsBase64Encoded = true
	} else {
		resp.Body = string(body)
	}

	return resp
}
