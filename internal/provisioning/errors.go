package provisioning

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed creation attempt.
type FailureKind int

const (
	// KindOther is any failure without special handling.
	KindOther FailureKind = iota
	// KindQuotaExceeded means the project is not allowed more of the resource.
	KindQuotaExceeded
	// KindResourcePoolExhausted means the zone has no capacity right now.
	KindResourcePoolExhausted
)

func (k FailureKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindResourcePoolExhausted:
		return "resource_pool_exhausted"
	default:
		return "other"
	}
}

var (
	// ErrQuotaExceeded is returned by Search when a zone reports a quota error.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoCapacity is returned by Search when no zone accepted the VM.
	ErrNoCapacity = errors.New("no zone could create the instance")
)

// CreateError is a classified instance creation failure.
type CreateError struct {
	Kind FailureKind
	Zone string
	Err  error
}

// NewCreateError wraps err with its classification.
func NewCreateError(kind FailureKind, zone string, err error) *CreateError {
	return &CreateError{Kind: kind, Zone: zone, Err: err}
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("create in zone %s failed (%s): %v", e.Zone, e.Kind, e.Err)
}

func (e *CreateError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, KindOther when err is not a *CreateError.
func KindOf(err error) FailureKind {
	var ce *CreateError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}
