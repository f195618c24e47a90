package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"fetchgate/internal/types"
)

// ErrorEnvelope is the body of every error response produced by the chassis.
// It is a subset of the fetch envelope so clients parse one shape.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// JSON writes data as a JSON response with the given status. If marshalling
// fails a 500 envelope is written instead.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Fetched HTML goes out verbatim, without \u003c escapes.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		types.LoggerFromContext(r.Context(), slog.Default()).Error("failed to marshal response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(recoveredBody))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// Error writes err as an error envelope. A *types.AppError selects the status
// from its code and exposes its message; any other error becomes a 500 with a
// generic message. Wrapped causes are never exposed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == types.ErrCodeMethodNotAllowed && w.Header().Get("Allow") == "" {
			w.Header().Set("Allow", "GET, POST, OPTIONS")
		}
		JSON(w, r, appErr.HTTPStatus(), ErrorEnvelope{Error: appErr.Message})
		return
	}

	types.LoggerFromContext(r.Context(), slog.Default()).Error("unhandled error", "error", err)
	JSON(w, r, http.StatusInternalServerError, ErrorEnvelope{Error: "internal server error"})
}

// DecodeJSON reads the request body into dst. It enforces a 1 MB limit, a
// single JSON value and no unknown fields. Every failure is a
// *types.AppError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, types.MaxRequestBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	if dec.More() {
		return types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"request body must contain a single JSON object",
			nil,
		)
	}

	return nil
}

// mapDecodeError translates a json.Decoder error into an AppError.
func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(
			types.ErrCodeValidationBodyTooLarge,
			fmt.Sprintf("request body must not exceed %d bytes", maxBytesErr.Limit),
			err,
		)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed JSON in request body", err)
	}

	var unmarshalTypeErr *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeErr) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidJSON,
			"invalid value for field",
			err,
			map[string]any{
				"field":    unmarshalTypeErr.Field,
				"expected": unmarshalTypeErr.Type.String(),
			},
		)
	}

	if strings.HasPrefix(err.Error(), "json: unknown field") {
		return types.NewAppError(
			types.ErrCodeValidationUnknownField,
			"unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "),
			err,
		)
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "request body must not be empty", err)
	}

	return types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid JSON in request body", err)
}
