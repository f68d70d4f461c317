package offline

import (
	"errors"
	"fmt"

	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
)

// ErrOffline is returned for calls skipped because the API is known to be down.
var ErrOffline = errors.New("stampbook api is offline")

// TransportError marks a call that never got an answer from the API: dial
// failures, timeouts, dropped connections and gateway errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transport failure. Only these are
// queued for later replay.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) {
		return true
	}
	var transport *TransportError
	return errors.As(err, &transport)
}

// IsRetryable reports whether a replay that failed with err may succeed later.
// Business rejections never do.
func IsRetryable(err error) bool {
	if IsNetworkError(err) {
		return true
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	if typed.Code() == pkgerrors.CodeRateLimit {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
