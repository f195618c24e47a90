// Package fetch performs a single outbound GET with manual, re-validated
// redirect following and a bounded body read.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fetchgate/internal/security"
	"fetchgate/internal/types"
)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.9"
	acceptEncodingHeader = "gzip, deflate, zstd"

	// drainLimit bounds how much of a redirect body is discarded to allow
	// connection reuse.
	drainLimit = 4 << 10
)

// Outcome messages shared with the handler.
const (
	MsgTimedOut          = "request timed out"
	MsgTooManyRedirects  = "too many redirects"
	MsgMissingLocation   = "redirect missing Location header"
	MsgInvalidLocation   = "redirect has invalid Location header"
	MsgRequestCanceled   = "request canceled"
	msgUnsupportedEncode = "unsupported content encoding"
)

// Options bounds a single fetch. Zero fields select the defaults.
type Options struct {
	// Timeout is one wall-clock budget for the whole call: every redirect
	// hop plus the body read.
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	UserAgent    string
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		Timeout:      types.DefaultFetchTimeoutSeconds * time.Second,
		MaxRedirects: types.DefaultMaxRedirects,
		MaxBodyBytes: types.DefaultMaxBodyBytes,
		UserAgent:    types.DefaultUserAgent,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = d.MaxRedirects
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = d.MaxBodyBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	return o
}

// Fetcher follows redirects manually so that every hop is re-validated.
// A Fetcher holds no per-call state and is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	validator types.TargetValidator
	opts      Options
	logger    *slog.Logger
}

// New creates a Fetcher. A nil client selects security.NewSafeHTTPClient.
// The client is copied; automatic redirects and the client-level timeout
// are disabled on the copy.
func New(client *http.Client, validator types.TargetValidator, opts Options, logger *slog.Logger) (*Fetcher, error) {
	if validator == nil {
		return nil, errors.New("fetch: validator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if client == nil {
		safe, err := security.NewSafeHTTPClient()
		if err != nil {
			return nil, fmt.Errorf("fetch: building client: %w", err)
		}
		client = safe
	}

	c := *client
	c.Timeout = 0
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Fetcher{
		client:    &c,
		validator: validator,
		opts:      opts.withDefaults(),
		logger:    logger,
	}, nil
}

// Options returns the effective limits.
func (f *Fetcher) Options() Options {
	return f.opts
}

// Fetch retrieves target, following at most MaxRedirects redirects. It
// always returns within Timeout of being called. target must already have
// passed validation.
func (f *Fetcher) Fetch(ctx context.Context, target *url.URL) types.FetchOutcome {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	current := target
	redirects := 0
	for {
		resp, err := f.get(ctx, current)
		if err != nil {
			return networkError(ctx, err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			drainAndClose(resp.Body)

			if location == "" {
				return types.NetworkError{Message: MsgMissingLocation}
			}
			next, err := current.Parse(location)
			if err != nil {
				return types.NetworkError{Message: MsgInvalidLocation}
			}
			if redirects >= f.opts.MaxRedirects {
				return types.NetworkError{Message: MsgTooManyRedirects}
			}

			res := f.validator.Validate(next.String())
			if !res.Valid {
				f.logger.WarnContext(ctx, "redirect target rejected",
					"from", current.String(),
					"to", next.String(),
					"reason", res.Error,
				)
				return types.ValidationRejected{Reason: res.Error, URL: next.String()}
			}

			redirects++
			f.logger.DebugContext(ctx, "following redirect",
				"status", resp.StatusCode,
				"from", current.String(),
				"to", res.ParsedURL.String(),
				"hop", redirects,
			)
			current = res.ParsedURL
			continue
		}

		return f.finish(ctx, resp, current)
	}
}

func (f *Fetcher) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)
	req.Header.Set("Accept-Encoding", acceptEncodingHeader)
	return f.client.Do(req)
}

// finish classifies a terminal response and reads its body.
func (f *Fetcher) finish(ctx context.Context, resp *http.Response, current *url.URL) types.FetchOutcome {
	defer resp.Body.Close()
	finalURL := current.String()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.UpstreamFailure{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
			FinalURL:   finalURL,
		}
	}

	// Declared size is checked before any body byte is read.
	if resp.ContentLength > f.opts.MaxBodyBytes {
		return types.TooLarge{FinalURL: finalURL, SizeBytes: resp.ContentLength}
	}

	body, err := readBody(resp, f.opts.MaxBodyBytes)
	switch {
	case errors.Is(err, errBodyTooLarge):
		return types.TooLarge{FinalURL: finalURL, SizeBytes: f.opts.MaxBodyBytes + 1}
	case errors.Is(err, errUnsupportedEncoding):
		return types.NetworkError{Message: err.Error()}
	case err != nil:
		return networkError(ctx, err)
	}

	contentType := resp.Header.Get("Content-Type")
	html := decodeCharset(body, contentType)
	// Single-byte charsets can grow up to threefold in UTF-8.
	if int64(len(html)) > f.opts.MaxBodyBytes {
		return types.TooLarge{FinalURL: finalURL, SizeBytes: int64(len(html))}
	}
	return types.FetchSuccess{
		HTML:        html,
		FinalURL:    finalURL,
		ContentType: contentType,
	}
}

// networkError converts a transport or read error into an outcome,
// classifying deadline expiry as a timeout.
func networkError(ctx context.Context, err error) types.NetworkError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return types.NetworkError{Message: MsgTimedOut, IsTimeout: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NetworkError{Message: MsgTimedOut, IsTimeout: true}
	}
	if errors.Is(err, context.Canceled) {
		return types.NetworkError{Message: MsgRequestCanceled}
	}
	return types.NetworkError{Message: err.Error()}
}

// statusText returns the reason phrase sent by the server, falling back to
// the standard text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainLimit))
	_ = body.Close()
}
