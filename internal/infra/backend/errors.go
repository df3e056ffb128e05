// internal/infra/backend/errors.go
package backend

import "fmt"

// AuthError means no usable token: the provider failed, or the backend
// still answered 401 after the one refresh-and-retry.
type AuthError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: authentication failed with HTTP %d: %s", e.Op, e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError means the request failed before a complete response arrived.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError is a non-2xx response other than 401.
type BackendError struct {
	Op     string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: backend returned HTTP %d: %s", e.Op, e.Status, e.Body)
}
