package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency     = "APILatency"
	MetricAPIRequest     = "APIRequest"
	MetricFetchOutcome   = "FetchOutcome"
	MetricFetchLatency   = "FetchLatency"
	MetricFetchBytes     = "FetchBytes"
	MetricTargetRejected = "TargetRejected"
	MetricSinkFailure    = "SinkFailure"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimOutcome  = "Outcome"
	DimStage    = "Stage"

	// Metric Namespace
	MetricNamespace = "FetchGate"
)
