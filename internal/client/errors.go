package client

import (
	"errors"
	"fmt"
)

// The failure taxonomy of the workbench core:
//   - NetworkError: the request never completed, or the server answered with
//     a non-2xx status.
//   - RejectionError: a 200 body carrying success:false. The server
//     processed the request and said no; its message is shown verbatim.
//   - ErrValidation: user input rejected before any network call.
// Every path that hits one of these returns control to a retryable state.

// NetworkError wraps transport failures and non-2xx responses.
type NetworkError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: server responded with status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: server responded with status %d", e.Op, e.StatusCode)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectionError carries the server's own failure message from a success:false body.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

// ErrValidation marks user input that fails pre-flight checks; wrap it with
// the user-facing detail.
var ErrValidation = errors.New("invalid input")

// IsRejection reports whether err is a server-side rejection (as opposed to
// a transport failure).
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}
