package airflow

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteExecutionError is returned for every failed call to the remote
// engine: a non-2xx response or a transport failure (StatusCode 0).
type RemoteExecutionError struct {
	Operation  string
	Method     string
	URL        string
	StatusCode int
	Detail     string
	Err        error
}

func (e *RemoteExecutionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("airflow %s: %s %s: %v", e.Operation, e.Method, e.URL, e.Err)
	}

	if e.Detail != "" {
		return fmt.Sprintf("airflow %s: %s %s: status %d: %s", e.Operation, e.Method, e.URL, e.StatusCode, e.Detail)
	}

	return fmt.Sprintf("airflow %s: %s %s: status %d", e.Operation, e.Method, e.URL, e.StatusCode)
}

func (e *RemoteExecutionError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err comes from the remote engine.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteExecutionError

	return errors.As(err, &remoteErr)
}

// IsNotFound reports whether the remote engine answered 404.
func IsNotFound(err error) bool {
	var remoteErr *RemoteExecutionError

	return errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound
}
