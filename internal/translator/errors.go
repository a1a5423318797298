package translator

import (
	"errors"
	"fmt"
)

// Kind classifies a translation failure. Quota is special everywhere: it
// pauses the whole engine and never consumes a segment's retry budget.
type Kind string

const (
	KindQuota             Kind = "quota"
	KindSafetyBlocked     Kind = "safety_blocked"
	KindTimeout           Kind = "timeout"
	KindEmptyResponse     Kind = "empty_response"
	KindIntegrityMismatch Kind = "integrity_mismatch"
	KindTransport         Kind = "transport"
)

// Error is a classified translation failure, optionally carrying the model
// that produced it and the underlying cause.
type Error struct {
	Kind  Kind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("translate: %s (model %s)", e.Kind, e.Model)
	}
	return fmt.Sprintf("translate: %s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind, defaulting to Transport for errors that
// did not originate in this package.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransport
}

// IsQuota reports whether err represents a rate or resource quota failure.
func IsQuota(err error) bool {
	return KindOf(err) == KindQuota
}
