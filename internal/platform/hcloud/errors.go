package hcloud

import (
	"errors"

	"github.com/imamik/ebookcast/internal/provisioning"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

const (
	codeResourceLimitExceeded hcloud.ErrorCode = "resource_limit_exceeded"
	codePlacementError        hcloud.ErrorCode = "placement_error"
)

// classify maps an API or action error onto a provisioning failure kind.
func classify(err error) provisioning.FailureKind {
	switch {
	case hasErrorCode(err, codeResourceLimitExceeded):
		return provisioning.KindQuotaExceeded
	case hasErrorCode(err, hcloud.ErrorCodeResourceUnavailable, codePlacementError):
		return provisioning.KindResourcePoolExhausted
	default:
		return provisioning.KindOther
	}
}

// isResourceLocked reports errors worth retrying on the same location.
func isResourceLocked(err error) bool {
	return hasErrorCode(err,
		hcloud.ErrorCodeLocked,
		hcloud.ErrorCodeConflict,
	)
}

// hasErrorCode checks both API errors and failed action errors for one of codes.
func hasErrorCode(err error, codes ...hcloud.ErrorCode) bool {
	if err == nil {
		return false
	}

	var got string
	var apiErr hcloud.Error
	var actionErr hcloud.ActionError
	switch {
	case errors.As(err, &apiErr):
		got = string(apiErr.Code)
	case errors.As(err, &actionErr):
		got = actionErr.Code
	default:
		return false
	}

	for _, code := range codes {
		if got == string(code) {
			return true
		}
	}
	return false
}
