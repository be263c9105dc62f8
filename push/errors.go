package push

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrClosed         = errors.New("push client is closed")
	ErrMissingAppKey  = errors.New("app key is not set")
	ErrMissingToken   = errors.New("device token is empty")
	ErrMissingID      = errors.New(`registration response has no string "id"`)
	ErrEmptyInterest  = errors.New("interest name is empty")
	ErrQueueExhausted = errors.New("maximum request attempts reached")
)

// InterestRequestError is returned when an interest change request fails.
// StatusCode and Body are set when the service answered.
type InterestRequestError struct {
	Op         Operation
	Interests  []string
	StatusCode int
	Body       string
	Err        error
}

func (e *InterestRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %v: status %d: %v", e.Op, e.Interests, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %v: %v", e.Op, e.Interests, e.Err)
}

func (e *InterestRequestError) Unwrap() error {
	return e.Err
}

// RegistrationError is returned when the device cannot be registered.
type RegistrationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RegistrationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("register device: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("register device: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
