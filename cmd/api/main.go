// Package main is the entry point for the fetchgate API.
//
// It loads configuration, builds the URL policy, the SSRF-safe HTTP client and
// the redirect-safe fetcher, wires the optional CloudWatch and SQS sinks, and
// mounts the fetch handler on the core chassis.
//
// Inside AWS Lambda it serves API Gateway HTTP API events through
// core.LambdaAdapter. Elsewhere it runs a plain HTTP server with graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"fetchgate/internal/api/handlers"
	"fetchgate/internal/config"
	"fetchgate/internal/core"
	"fetchgate/internal/fetch"
	"fetchgate/internal/queue"
	"fetchgate/internal/security"
	"fetchgate/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider(os.Getenv("APP_ENV")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("fetchgate starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"fetch_timeout", cfg.Fetch.Timeout,
		"max_redirects", cfg.Fetch.MaxRedirects,
	)

	ctx := context.Background()
	a, err := buildApp(cfg, logger, awsClients(ctx, cfg))
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		return runLambda(a, logger)
	}
	return runHTTPServer(a, cfg, logger)
}

// secretProvider resolves _SSM_PARAM pointers from other environment
// variables locally and from SSM everywhere else.
func secretProvider(appEnv string) config.SecretProvider {
	if appEnv == "local" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
}

// app holds the assembled server and the background workers it owns.
type app struct {
	srv       *core.Server
	collector *telemetry.CloudWatchCollector
}

// sinkClients builds AWS clients lazily; tests substitute fakes.
type sinkClients struct {
	cloudWatch func() (telemetry.CloudWatchClient, error)
	sqs        func() (queue.SQSSender, error)
}

// buildApp wires every component. It performs no network I/O.
func buildApp(cfg *config.Config, logger *slog.Logger, clients sinkClients) (*app, error) {
	policy, err := security.NewPolicy(cfg.Fetch.AllowedSchemes, cfg.Security.BlockedHostnames)
	if err != nil {
		return nil, fmt.Errorf("building URL policy: %w", err)
	}

	httpClient, err := security.NewSafeHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("building HTTP client: %w", err)
	}

	fetcher, err := fetch.New(httpClient, policy, fetch.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building fetcher: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, security.NewPolicyProbe(policy))

	fetchHandler := handlers.NewFetchHandler(policy, fetcher, srv.Validator, logger)
	a := &app{srv: srv}

	if cfg.Observability.MetricsEnabled {
		cw, err := clients.cloudWatch()
		if err != nil {
			return nil, fmt.Errorf("creating CloudWatch client: %w", err)
		}
		a.collector = telemetry.NewCloudWatchCollector(cw, cfg.Observability.MetricNamespace, logger)
		srv.Metrics = a.collector
		srv.HealthProbes = append(srv.HealthProbes, a.collector)
		srv.ShutdownHooks = append(srv.ShutdownHooks, a.collector.Flush)
		fetchHandler.WithMetrics(a.collector)
	}

	if cfg.AWS.AuditQueueURL != "" {
		sq, err := clients.sqs()
		if err != nil {
			return nil, fmt.Errorf("creating SQS client: %w", err)
		}
		publisher := queue.NewAuditPublisher(sq, cfg.AWS.AuditQueueURL, logger)
		srv.HealthProbes = append(srv.HealthProbes, publisher)
		fetchHandler.WithAudit(publisher)
	} else {
		fetchHandler.WithAudit(queue.NewLogPublisher(logger))
	}

	srv.RouteRegistrars = append(srv.RouteRegistrars, fetchHandler.RegisterRoutes)
	srv.MountRoutes()

	logger.Info("components wired",
		"blocked_hostnames", len(policy.BlockedHostnames()),
		"allowed_schemes", policy.AllowedSchemes(),
		"metrics", a.collector != nil,
		"audit_queue", cfg.AWS.AuditQueueURL != "",
	)
	return a, nil
}

// awsClients returns constructors for the production AWS clients. The SDK
// config is loaded only when a sink is enabled.
func awsClients(ctx context.Context, cfg *config.Config) sinkClients {
	load := func() (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	}
	endpoint := cfg.AWS.EndpointURL

	return sinkClients{
		cloudWatch: func() (telemetry.CloudWatchClient, error) {
			awsCfg, err := load()
			if err != nil {
				return nil, err
			}
			return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			}), nil
		},
		sqs: func() (queue.SQSSender, error) {
			awsCfg, err := load()
			if err != nil {
				return nil, err
			}
			return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			}), nil
		},
	}
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda serves API Gateway events. Metrics are flushed after every
// invocation because the sandbox may freeze between them.
func runLambda(a *app, logger *slog.Logger) error {
	adapter := core.NewLambdaAdapter(a.srv.Handler())
	logger.Info("serving Lambda events")

	lambda.Start(func(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter.Handle(ctx, ev)
		if a.collector != nil {
			if ferr := a.collector.Flush(ctx); ferr != nil {
				logger.WarnContext(ctx, "metric flush failed", "error", ferr)
			}
		}
		return resp, err
	})
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(a *app, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.collector != nil {
		g.Go(func() error { return a.collector.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger returns a colorized tint logger for local development and a JSON
// logger everywhere else.
func newLogger(cfg *config.Config) *slog.Logger {
	lvl := parseLevel(cfg.LogLevel)
	if cfg.IsLocal() {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})).
		With("service", cfg.Service, "env", cfg.Environment)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
