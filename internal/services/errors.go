package services

// ValidationError reports the first request field that failed its presence or
// type check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// UpstreamError wraps a failure talking to the model.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Message }

func (e *UpstreamError) Unwrap() error { return e.Err }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// UnavailableError is returned by features whose backing service is not
// configured.
type UnavailableError struct{ Message string }

func (e *UnavailableError) Error() string { return e.Message }
