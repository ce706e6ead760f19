package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies where a chat completion call failed
type ErrorKind int

const (
	// KindConfigNotFound means the configuration file could not be opened
	KindConfigNotFound ErrorKind = iota + 1
	// KindConfigMalformed means the configuration could not be parsed or lacks a field
	KindConfigMalformed
	// KindConfiguration means the configuration is unusable, e.g. a key that is
	// not a valid header value
	KindConfiguration
	// KindNetwork means the request never produced a response
	KindNetwork
	// KindServiceRejected means the service answered with a non-200 status
	KindServiceRejected
	// KindMalformedResponse means a 200 response could not be turned into an answer
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfigNotFound:
		return "config not found"
	case KindConfigMalformed:
		return "config malformed"
	case KindConfiguration:
		return "configuration error"
	case KindNetwork:
		return "network error"
	case KindServiceRejected:
		return "service rejected request"
	case KindMalformedResponse:
		return "malformed response"
	default:
		return "unknown error"
	}
}

// Label returns the kind as a metrics label value
func (k ErrorKind) Label() string {
	switch k {
	case KindConfigNotFound:
		return "config_not_found"
	case KindConfigMalformed:
		return "config_malformed"
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindServiceRejected:
		return "service_rejected"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// ChatError is returned by every failing Ask call
type ChatError struct {
	Kind ErrorKind
	// StatusCode and Body are set for KindServiceRejected
	StatusCode int
	Body       string
	// ProviderMessage is the error.message field of a rejected response, if any
	ProviderMessage string
	Err             error
}

func (e *ChatError) Error() string {
	switch {
	case e.Kind == KindServiceRejected:
		if e.ProviderMessage != "" {
			return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.ProviderMessage)
		}
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Body)
	case e.Err != nil && (e.Kind == KindConfigNotFound || e.Kind == KindConfigMalformed):
		// The loader error already leads with the kind
		return e.Err.Error()
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether the call failed before anything was sent
// because of the configuration
func (e *ChatError) IsConfiguration() bool {
	return e.Kind == KindConfigNotFound || e.Kind == KindConfigMalformed || e.Kind == KindConfiguration
}

// Timeout reports whether a network failure was caused by an expired deadline
func (e *ChatError) Timeout() bool {
	if e.Kind != KindNetwork {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// KindOf returns the kind of a ChatError anywhere in err's chain, or 0
func KindOf(err error) ErrorKind {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return 0
}

func newError(kind ErrorKind, err error) *ChatError {
	return &ChatError{Kind: kind, Err: err}
}
