package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")
	ErrNotFound       = fmt.Errorf("not found")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrConfiguration      = fmt.Errorf("configuration error")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Run coordination errors
	ErrAlreadyRunning  = fmt.Errorf("already running")
	ErrInvalidSchedule = fmt.Errorf("invalid schedule")
	ErrSessionAborted  = fmt.Errorf("session aborted")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrItemDownload       = fmt.Errorf("item download failed")
	ErrMediaProbe         = fmt.Errorf("media probe failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
