package core

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"fetchgate/internal/types"
)

func newTestServerForRoutes(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestMountRoutes_HealthEndpoint(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestMountRoutes_NotFoundEnvelope(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body)
	if env.Success || env.Error != "not found" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestMountRoutes_MethodNotAllowedEnvelope(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/health", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body)
	if env.Error != "method not allowed" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if rec.Header().Get("Allow") == "" {
		t.Error("Allow header should be set")
	}
}

func TestMountRoutes_RegistrarsMounted(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]bool{"success": true})
		})
	})
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestMountRoutes_SecurityHeadersOnErrors(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be set on 404 responses")
	}
}

func TestMountRoutes_PreflightOnAnyPath(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/api/fetch-html", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestMountRoutes_RequestIDRoundTrip(t *testing.T) {
	srv := newTestServerForRoutes(t)
	var seen string
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Get("/api/id", func(w http.ResponseWriter, r *http.Request) {
			seen = types.GetRequestID(r.Context())
		})
	})
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/id", nil)
	req.Header.Set(requestIDHeader, "client-id-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if seen != "client-id-1" {
		t.Errorf("handler saw request ID %q", seen)
	}
	if rec.Header().Get(requestIDHeader) != "client-id-1" {
		t.Errorf("response header = %q", rec.Header().Get(requestIDHeader))
	}
}

func TestMountRoutes_RequestDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RequestTimeout = 3 * time.Second
	srv, err := NewServer(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	var remaining time.Duration
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Get("/api/deadline", func(w http.ResponseWriter, r *http.Request) {
			deadline, ok := r.Context().Deadline()
			if ok {
				remaining = time.Until(deadline)
			}
		})
	})
	srv.MountRoutes()

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/deadline", nil))

	if remaining <= 0 || remaining > 3*time.Second {
		t.Errorf("expected deadline within 3s, got %v", remaining)
	}
}

func TestMountRoutes_PanicRecovered(t *testing.T) {
	srv := newTestServerForRoutes(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/panic", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if rec.Body.String() != recoveredBody {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestContextTimeoutMiddleware_Cancellation(t *testing.T) {
	mw := ContextTimeoutMiddleware(10 * time.Millisecond)

	var ctxErr error
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", ctxErr)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"propagated", "abc-123", true},
		{"generated when absent", "", false},
		{"regenerated when too long", strings.Repeat("x", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &strings.Builder{}
			logger := slog.New(slog.NewJSONHandler(buf, nil))

			var gotID string
			handler := RequestIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID = types.GetRequestID(r.Context())
				types.LoggerFromContext(r.Context(), slog.Default()).Info("inside")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if tt.wantSame && gotID != tt.incoming {
				t.Errorf("request ID = %q, want %q", gotID, tt.incoming)
			}
			if !tt.wantSame && (len(gotID) != 36 || gotID == tt.incoming) {
				t.Errorf("expected generated UUID, got %q", gotID)
			}
			if rec.Header().Get(requestIDHeader) != gotID {
				t.Errorf("response header = %q, want %q", rec.Header().Get(requestIDHeader), gotID)
			}
			if !strings.Contains(buf.String(), `"request_id":"`+gotID+`"`) {
				t.Errorf("request-scoped logger should carry request_id, got: %s", buf.String())
			}
		})
	}
}
