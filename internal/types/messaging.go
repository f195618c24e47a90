package types

import "time"

// RejectionStage says where in a request a target URL was refused.
type RejectionStage string

const (
	// StageInitial is the URL supplied by the caller.
	StageInitial RejectionStage = "initial"
	// StageRedirect is a Location target returned by an upstream.
	StageRedirect RejectionStage = "redirect"
)

// RejectionEvent is the SQS payload published for every refused target.
// JSON tags are snake_case; downstream consumers key on them.
type RejectionEvent struct {
	EventID   string         `json:"event_id"`
	RequestID string         `json:"request_id,omitempty"`
	URL       string         `json:"url"`
	Reason    string         `json:"reason"`
	Stage     RejectionStage `json:"stage"`
	At        time.Time      `json:"at"`
}

// Message attribute names set on audit messages so consumers can filter
// without decoding the body.
const (
	AttrEventType = "EventType"
	AttrStage     = "Stage"

	EventTypeTargetRejected = "target_rejected"
)
