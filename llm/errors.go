package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies dispatch failures.
type ErrorKind int

const (
	ErrValidation ErrorKind = iota // required credential or provider missing before dispatch
	ErrAuth                        // provider rejected the credential
	ErrQuota                       // provider reports exhausted quota or billing
	ErrNetwork                     // transport failure
	ErrProvider                    // unexpected response shape or unrecognized error code
)

var errorKindNames = [...]string{
	ErrValidation: "validation_error",
	ErrAuth:       "auth_error",
	ErrQuota:      "quota_error",
	ErrNetwork:    "network_error",
	ErrProvider:   "provider_error",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(s string) (ErrorKind, error) {
	for k, name := range errorKindNames {
		if name == s {
			return ErrorKind(k), nil
		}
	}
	return ErrProvider, fmt.Errorf("unknown error kind %q", s)
}

// Error is the library's error type.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error  // underlying error
	Raw      []byte // raw response body if available
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm [%s] %s: %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("llm [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf reports the ErrorKind carried by err. Errors that are not *Error
// are treated as ErrProvider.
func KindOf(err error) ErrorKind {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return ErrProvider
}
