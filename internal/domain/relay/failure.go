package relay

import (
	"fmt"
	"net/http"
)

// FailureKind classifies relay failures.
type FailureKind string

const (
	KindMethodNotAllowed FailureKind = "method_not_allowed"
	KindUnauthorized     FailureKind = "unauthorized"
	KindBadRequest       FailureKind = "bad_request"
	KindDownstream       FailureKind = "downstream"
	KindInternal         FailureKind = "internal"
)

const (
	MessageInvalidKey       = "Invalid or missing API key"
	MessageMissingImage     = "Missing image data"
	MessageDownstream       = "Anthropic API error"
	MessageServerError      = "Server error"
	MessageMethodNotAllowed = "Method Not Allowed"
)

// Failure is a relay error carrying the HTTP status it maps to.
type Failure struct {
	Kind    FailureKind
	Status  int
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("relay %s (%d): %s: %v", f.Kind, f.Status, f.Message, f.Cause)
	}
	return fmt.Sprintf("relay %s (%d): %s", f.Kind, f.Status, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Reply renders the failure the way the browser expects it.
func (f *Failure) Reply() *Reply {
	if f.Kind == KindMethodNotAllowed {
		return methodNotAllowedReply()
	}
	return errorReply(f.Status, f.Message)
}

func unauthorized() *Failure {
	return &Failure{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: MessageInvalidKey}
}

func missingImage() *Failure {
	return &Failure{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: MessageMissingImage}
}

func downstream(status int, message string) *Failure {
	if message == "" {
		message = MessageDownstream
	}
	return &Failure{Kind: KindDownstream, Status: status, Message: message}
}

// internal wraps err as a 500 whose message is the error text.
func internal(err error) *Failure {
	message := MessageServerError
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return &Failure{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Cause: err}
}
