// Package handlers contains the HTTP handlers of the fetchgate API.
//
// The fetch handler is the service boundary: it extracts the target URL,
// validates it, runs the redirect-safe fetch and maps every outcome to the
// FetchEnvelope. Request-shape errors use 4xx statuses; everything that
// happens after validation answers 200 with success=false.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fetchgate/internal/core"
	"fetchgate/internal/types"
)

// Mount points for the fetch endpoint. The first is the legacy path kept
// for existing clients.
const (
	FetchPath   = "/api/fetch-html"
	FetchPathV1 = "/v1/fetch"
)

const (
	msgMissingURL      = "missing url parameter"
	msgInvalidJSONBody = "invalid JSON body"
	msgTooLarge        = "response too large"
)

// OutcomeFetcher performs the outbound fetch. Implemented by *fetch.Fetcher.
type OutcomeFetcher interface {
	Fetch(ctx context.Context, target *url.URL) types.FetchOutcome
}

// OutcomeRecorder receives per-request fetch telemetry.
type OutcomeRecorder interface {
	RecordOutcome(kind string, duration time.Duration, bytes int)
	RecordRejection(stage types.RejectionStage)
}

// RejectionPublisher ships audit events for refused targets.
type RejectionPublisher interface {
	Publish(ctx context.Context, ev types.RejectionEvent) error
}

// FetchEnvelope is the response body of the fetch endpoint. Success and
// failure share one struct; omitempty drops the fields a case does not set.
type FetchEnvelope struct {
	Success     bool   `json:"success"`
	HTML        string `json:"html,omitempty"`
	URL         string `json:"url,omitempty"`
	FinalURL    string `json:"finalUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Error       string `json:"error,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
}

type fetchRequest struct {
	URL string `json:"url" validate:"required"`
}

// FetchHandler serves the fetch endpoint.
type FetchHandler struct {
	policy    types.TargetValidator
	fetcher   OutcomeFetcher
	validator *core.Validator
	metrics   OutcomeRecorder
	audit     RejectionPublisher
	clock     types.Clock
	logger    *slog.Logger
}

// NewFetchHandler creates a FetchHandler. Metrics and audit are optional and
// attached with WithMetrics and WithAudit.
func NewFetchHandler(
	policy types.TargetValidator,
	fetcher OutcomeFetcher,
	val *core.Validator,
	logger *slog.Logger,
) *FetchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &FetchHandler{
		policy:    policy,
		fetcher:   fetcher,
		validator: val,
		clock:     types.RealClock{},
		logger:    logger,
	}
}

// WithMetrics attaches an outcome recorder.
func (h *FetchHandler) WithMetrics(m OutcomeRecorder) *FetchHandler {
	h.metrics = m
	return h
}

// WithAudit attaches a rejection publisher.
func (h *FetchHandler) WithAudit(p RejectionPublisher) *FetchHandler {
	h.audit = p
	return h
}

// RegisterRoutes mounts the endpoint on both paths. CORS preflight is
// answered by the chassis CORS middleware before routing; other methods
// fall through to the router's 405 handler.
func (h *FetchHandler) RegisterRoutes(r chi.Router) {
	for _, p := range []string{FetchPath, FetchPathV1} {
		r.Get(p, h.HandleFetch)
		r.Post(p, h.HandleFetch)
	}
}

// HandleFetch handles GET ?url= and POST {"url": ...}.
//  1. Extract the target; absence is a 400.
//  2. Validate; rejection is a 400 carrying the reason.
//  3. Fetch and map the outcome to a 200 envelope.
func (h *FetchHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := types.LoggerFromContext(ctx, h.logger)

	raw, err := h.targetFromRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	res := h.policy.Validate(raw)
	if !res.Valid {
		logger.WarnContext(ctx, "target rejected", "url", raw, "reason", res.Error)
		h.recordRejection(ctx, raw, res.Error, types.StageInitial)
		core.JSON(w, r, http.StatusBadRequest, FetchEnvelope{Error: res.Error, URL: raw})
		return
	}

	start := time.Now()
	outcome := h.fetcher.Fetch(ctx, res.ParsedURL)
	elapsed := time.Since(start)

	env := h.envelope(ctx, logger, raw, outcome)
	if h.metrics != nil {
		h.metrics.RecordOutcome(outcome.Kind(), elapsed, len(env.HTML))
	}
	core.JSON(w, r, http.StatusOK, env)
}

// targetFromRequest reads the raw target URL. Every error is a
// *types.AppError.
func (h *FetchHandler) targetFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Method != http.MethodPost {
		raw := strings.TrimSpace(r.URL.Query().Get("url"))
		if raw == "" {
			return "", types.NewAppError(types.ErrCodeValidationMissingURL, msgMissingURL, nil)
		}
		return raw, nil
	}

	var req fetchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeValidationBodyTooLarge {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeValidationInvalidJSON, msgInvalidJSONBody, err)
	}

	req.URL = strings.TrimSpace(req.URL)
	if err := h.validator.ValidateStruct(req); err != nil {
		return "", types.NewAppError(types.ErrCodeValidationMissingURL, msgMissingURL, err)
	}
	return req.URL, nil
}

// envelope maps a fetch outcome to the response body and logs it.
func (h *FetchHandler) envelope(ctx context.Context, logger *slog.Logger, raw string, outcome types.FetchOutcome) FetchEnvelope {
	switch o := outcome.(type) {
	case types.FetchSuccess:
		if !isHTML(o.ContentType) {
			logger.WarnContext(ctx, "non-HTML content returned",
				"url", raw, "final_url", o.FinalURL, "content_type", o.ContentType)
		}
		logger.InfoContext(ctx, "fetch succeeded",
			"url", raw, "final_url", o.FinalURL, "bytes", len(o.HTML))
		return FetchEnvelope{
			Success:     true,
			HTML:        o.HTML,
			URL:         raw,
			FinalURL:    o.FinalURL,
			ContentType: o.ContentType,
		}

	case types.UpstreamFailure:
		logger.WarnContext(ctx, "upstream returned error status",
			"url", raw, "final_url", o.FinalURL, "status", o.StatusCode)
		return FetchEnvelope{
			Error:      strings.TrimSpace(fmt.Sprintf("upstream returned %d %s", o.StatusCode, o.StatusText)),
			URL:        raw,
			FinalURL:   o.FinalURL,
			StatusCode: o.StatusCode,
		}

	case types.TooLarge:
		logger.WarnContext(ctx, "upstream response too large", "url", raw, "final_url", o.FinalURL, "size_bytes", o.SizeBytes)
		return FetchEnvelope{Error: msgTooLarge, URL: raw, FinalURL: o.FinalURL}

	case types.ValidationRejected:
		h.recordRejection(ctx, o.URL, o.Reason, types.StageRedirect)
		return FetchEnvelope{Error: "redirect target rejected: " + o.Reason, URL: raw}

	case types.NetworkError:
		logger.WarnContext(ctx, "fetch failed", "url", raw, "error", o.Message, "timeout", o.IsTimeout)
		return FetchEnvelope{Error: o.Message, URL: raw}

	default:
		logger.ErrorContext(ctx, "unknown fetch outcome", "type", fmt.Sprintf("%T", outcome))
		return FetchEnvelope{Error: "internal server error", URL: raw}
	}
}

// recordRejection emits the rejection metric and audit event. Sink errors
// are logged and never reach the caller.
func (h *FetchHandler) recordRejection(ctx context.Context, target, reason string, stage types.RejectionStage) {
	if h.metrics != nil {
		h.metrics.RecordRejection(stage)
	}
	if h.audit == nil {
		return
	}
	ev := types.RejectionEvent{
		EventID:   uuid.NewString(),
		RequestID: types.GetRequestID(ctx),
		URL:       target,
		Reason:    reason,
		Stage:     stage,
		At:        h.clock.Now(),
	}
	if err := h.audit.Publish(ctx, ev); err != nil {
		types.LoggerFromContext(ctx, h.logger).WarnContext(ctx, "audit publish failed", "error", err)
	}
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
