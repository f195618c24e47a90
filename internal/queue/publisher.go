// Package queue publishes audit events for refused fetch targets to SQS.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker/v2"

	"fetchgate/internal/breaker"
	"fetchgate/internal/types"
)

// sendTimeout bounds a single SendMessage call; the caller's request is
// waiting on it.
const sendTimeout = time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AuditPublisher sends RejectionEvents to an SQS queue behind a circuit
// breaker, so a queue outage costs one failed call per breaker window rather
// than one per request.
type AuditPublisher struct {
	client   SQSSender
	queueURL string
	breaker  *gobreaker.CircuitBreaker[*sqs.SendMessageOutput]
	logger   *slog.Logger
}

// NewAuditPublisher creates a publisher for queueURL.
func NewAuditPublisher(client SQSSender, queueURL string, logger *slog.Logger) *AuditPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPublisher{
		client:   client,
		queueURL: queueURL,
		breaker:  breaker.New[*sqs.SendMessageOutput]("sqs-audit"),
		logger:   logger,
	}
}

// Publish serializes ev and sends it. The event type and stage are also set
// as message attributes.
func (p *AuditPublisher) Publish(ctx context.Context, ev types.RejectionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal RejectionEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			types.AttrEventType: {
				DataType:    aws.String("String"),
				StringValue: aws.String(types.EventTypeTargetRejected),
			},
			types.AttrStage: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Stage)),
			},
		},
	}

	// The audit record outlives the request; only the timeout applies.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	_, err = p.breaker.Execute(func() (*sqs.SendMessageOutput, error) {
		return p.client.SendMessage(sendCtx, input)
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send RejectionEvent to %s: %w", p.queueURL, err)
	}

	p.logger.DebugContext(ctx, "rejection event sent",
		"event_id", ev.EventID,
		"stage", string(ev.Stage),
	)
	return nil
}

// Name implements core.HealthProbe.
func (p *AuditPublisher) Name() string { return "audit" }

// Check reports unhealthy while the breaker is open.
func (p *AuditPublisher) Check(_ context.Context) error {
	if p.breaker.State() == gobreaker.StateOpen {
		return errors.New("sqs circuit open")
	}
	return nil
}

// LogPublisher records rejection events in the log only. It is used when no
// audit queue is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev types.RejectionEvent) error {
	p.logger.InfoContext(ctx, "target rejected (audit)",
		"event_id", ev.EventID,
		"request_id", ev.RequestID,
		"url", ev.URL,
		"reason", ev.Reason,
		"stage", string(ev.Stage),
		"at", ev.At,
	)
	return nil
}
