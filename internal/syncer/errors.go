package syncer

import "errors"

// Resolution failures. Their messages are recorded verbatim as lastError.
var (
	ErrEmptyConfigArray = errors.New("Config array is empty")
	ErrNoConfigInWindow = errors.New("No config within time window")
	ErrOutsideWindow    = errors.New("Config is outside time window")
	ErrNoProvider       = errors.New("config provider is required")
)

// OptionsError reports invalid animation options. It is a configuration bug
// on the caller's side, not a transient failure.
type OptionsError struct {
	Field  string
	Reason string
}

func (e *OptionsError) Error() string {
	return "Invalid " + e.Field + ": " + e.Reason
}
