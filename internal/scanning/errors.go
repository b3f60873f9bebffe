package scanning

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when a scan is attempted without a
// provider API key configured. No network call is made in this case.
var ErrMissingCredential = errors.New("vision api credential is not configured")

// ProviderError is a failure talking to the vision provider. Code and Body
// carry the provider's status and response when the transport exposed them.
type ProviderError struct {
	Code int
	Body string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("vision provider error (status %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("vision provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UnparsableError means the model replied but its text contained no JSON
// the extractor could parse. Text is kept verbatim for operator debugging.
type UnparsableError struct {
	Text string
}

func (e *UnparsableError) Error() string {
	return "no valid JSON object found in model response"
}
