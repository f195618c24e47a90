// Package telemetry buffers API and fetch metrics in memory and ships them to
// CloudWatch in batches. Recording never blocks on the network.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sony/gobreaker/v2"

	"fetchgate/internal/breaker"
	"fetchgate/internal/types"
)

const (
	// maxDatumsPerCall is the PutMetricData request limit.
	maxDatumsPerCall = 1000
	// maxPending caps the buffer; datums recorded past it are dropped.
	maxPending = 10000

	defaultFlushInterval = 10 * time.Second
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector implements core.MetricsCollector and the fetch
// handler's OutcomeRecorder.
//
// Metrics emitted:
//   - APIRequest: Dims {Endpoint, Method, Status}
//   - APILatency: Dims {Endpoint, Method}, milliseconds
//   - FetchOutcome: Dims {Outcome}
//   - FetchLatency: Dims {Outcome}, milliseconds
//   - FetchBytes: Dims {Outcome}, bytes, successes only
//   - TargetRejected: Dims {Stage}
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	breaker   *gobreaker.CircuitBreaker[*cloudwatch.PutMetricDataOutput]
	clock     types.Clock
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatchCollector creates a collector publishing to namespace. An
// empty namespace selects types.MetricNamespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		breaker:   breaker.New[*cloudwatch.PutMetricDataOutput]("cloudwatch-metrics"),
		clock:     types.RealClock{},
		interval:  defaultFlushInterval,
		logger:    logger,
	}
}

// RecordRequest records one served API request.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	now := c.clock.Now()
	c.add(
		datum(now, types.MetricAPIRequest, 1, cwtypes.StandardUnitCount,
			dim(types.DimEndpoint, endpoint), dim(types.DimMethod, method), dim(types.DimStatus, status)),
		datum(now, types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds,
			dim(types.DimEndpoint, endpoint), dim(types.DimMethod, method)),
	)
}

// RecordOutcome records one completed fetch.
func (c *CloudWatchCollector) RecordOutcome(kind string, duration time.Duration, bytes int) {
	now := c.clock.Now()
	d := []cwtypes.MetricDatum{
		datum(now, types.MetricFetchOutcome, 1, cwtypes.StandardUnitCount, dim(types.DimOutcome, kind)),
		datum(now, types.MetricFetchLatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dim(types.DimOutcome, kind)),
	}
	if bytes > 0 {
		d = append(d, datum(now, types.MetricFetchBytes, float64(bytes), cwtypes.StandardUnitBytes, dim(types.DimOutcome, kind)))
	}
	c.add(d...)
}

// RecordRejection records a refused target.
func (c *CloudWatchCollector) RecordRejection(stage types.RejectionStage) {
	c.add(datum(c.clock.Now(), types.MetricTargetRejected, 1, cwtypes.StandardUnitCount, dim(types.DimStage, string(stage))))
}

func (c *CloudWatchCollector) add(d ...cwtypes.MetricDatum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := maxPending - len(c.pending)
	if room < len(d) {
		c.dropped += len(d) - room
		d = d[:room]
	}
	c.pending = append(c.pending, d...)
}

// Pending returns the number of buffered datums.
func (c *CloudWatchCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush sends every buffered datum. Failed batches are logged and
// discarded; metrics are never retried.
func (c *CloudWatchCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	dropped := c.dropped
	c.pending = nil
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("metric buffer full, datums dropped", "count", dropped)
	}

	var errs []error
	for start := 0; start < len(batch); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(batch))
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch[start:end],
		}
		_, err := c.breaker.Execute(func() (*cloudwatch.PutMetricDataOutput, error) {
			return c.client.PutMetricData(ctx, input)
		})
		if err != nil {
			c.logger.Error("failed to publish metrics",
				"error", err.Error(),
				"datums", end-start,
				"breaker_state", c.breaker.State().String(),
			)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publishing metrics: %w", errors.Join(errs...))
	}
	return nil
}

// Run flushes on a fixed interval until ctx is done, then flushes once more
// with a short grace period.
func (c *CloudWatchCollector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = c.Flush(flushCtx)
			return nil
		}
	}
}

// Name implements core.HealthProbe.
func (c *CloudWatchCollector) Name() string { return "metrics" }

// Check reports unhealthy while the sink breaker is open.
func (c *CloudWatchCollector) Check(_ context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return errors.New("cloudwatch circuit open")
	}
	return nil
}

func datum(at time.Time, name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Timestamp:  aws.Time(at),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
