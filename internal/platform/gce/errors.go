package gce

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/ebookcast/internal/provisioning"

	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
)

var quotaCodes = map[string]bool{
	"QUOTA_EXCEEDED": true,
	"quotaExceeded":  true,
}

var exhaustedCodes = map[string]bool{
	"ZONE_RESOURCE_POOL_EXHAUSTED":              true,
	"ZONE_RESOURCE_POOL_EXHAUSTED_WITH_DETAILS": true,
}

// OperationError is a zone operation that finished with errors.
type OperationError struct {
	Operation string
	Errors    []*compute.OperationErrorErrors
}

func (e *OperationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", item.Code, item.Message))
	}
	return fmt.Sprintf("operation %s failed: %s", e.Operation, strings.Join(parts, "; "))
}

// Codes returns the error codes of the operation.
func (e *OperationError) Codes() []string {
	codes := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		codes = append(codes, item.Code)
	}
	return codes
}

// classify maps an insert or operation error onto a provisioning failure kind.
func classify(err error) provisioning.FailureKind {
	var codes []string

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			codes = append(codes, item.Reason)
		}
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		codes = append(codes, opErr.Codes()...)
	}

	for _, code := range codes {
		if quotaCodes[code] {
			return provisioning.KindQuotaExceeded
		}
	}
	for _, code := range codes {
		if exhaustedCodes[code] {
			return provisioning.KindResourcePoolExhausted
		}
	}
	return provisioning.KindOther
}
