package types

// FetchOutcome is the result of a single fetch call.
// The set of variants is closed; consumers switch on the concrete type.
type FetchOutcome interface {
	fetchOutcome()
	// Kind is a stable label used in logs and metric dimensions.
	Kind() string
}

// Outcome kinds, also used as the Outcome metric dimension.
const (
	OutcomeSuccess         = "success"
	OutcomeUpstreamFailure = "upstream_failure"
	OutcomeTooLarge        = "too_large"
	OutcomeRejected        = "rejected"
	OutcomeNetworkError    = "network_error"
	OutcomeTimeout         = "timeout"
)

// FetchSuccess carries a 2xx body decoded to UTF-8.
type FetchSuccess struct {
	HTML        string
	FinalURL    string
	ContentType string
}

// UpstreamFailure is a non-2xx, non-redirect terminal response.
type UpstreamFailure struct {
	StatusCode int
	StatusText string
	FinalURL   string
}

// TooLarge means the body exceeded the size ceiling, either by declared
// Content-Length, by bytes actually read or by its length once decoded to
// UTF-8. SizeBytes is the declared length or the bytes seen when the
// ceiling tripped; zero when unknown.
type TooLarge struct {
	FinalURL  string
	SizeBytes int64
}

// ValidationRejected means a redirect target failed URL validation.
type ValidationRejected struct {
	Reason string
	URL    string
}

// NetworkError covers transport failures, timeouts and redirect protocol
// errors (missing Location, too many redirects).
type NetworkError struct {
	Message   string
	IsTimeout bool
}

func (FetchSuccess) fetchOutcome()       {}
func (UpstreamFailure) fetchOutcome()    {}
func (TooLarge) fetchOutcome()           {}
func (ValidationRejected) fetchOutcome() {}
func (NetworkError) fetchOutcome()       {}

func (FetchSuccess) Kind() string       { return OutcomeSuccess }
func (UpstreamFailure) Kind() string    { return OutcomeUpstreamFailure }
func (TooLarge) Kind() string           { return OutcomeTooLarge }
func (ValidationRejected) Kind() string { return OutcomeRejected }

func (e NetworkError) Kind() string {
	if e.IsTimeout {
		return OutcomeTimeout
	}
	return OutcomeNetworkError
}
