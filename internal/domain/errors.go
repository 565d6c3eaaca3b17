package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors are returned before any pipeline work starts and are safe
// to surface verbatim to callers.
var (
	ErrInvalidCoordinates = errors.New("coordinates out of range: latitude must be within [-90,90] and longitude within [-180,180]")
	ErrMissingPropertyID  = errors.New("property id is required")
	ErrMissingClaimID     = errors.New("claim id is required")
	ErrNegativeAmount     = errors.New("claim amount must not be negative")
	ErrUnknownAssessment  = errors.New("unknown assessment type")
	ErrUnknownRiskType    = errors.New("unknown risk type")
	ErrInvalidBounds      = errors.New("invalid bounds: north must exceed south and east must exceed west")
	ErrInvalidGridSize    = errors.New("grid size must be positive")
	ErrGridTooLarge       = errors.New("grid too large for requested bounds")
)

var (
	// ErrSourceUnavailable is returned by collaborators that have no live
	// backend. Callers route it through the fallback policy like any other
	// upstream failure.
	ErrSourceUnavailable = errors.New("upstream source unavailable")

	// ErrMalformedSnapshot marks an upstream payload that decoded but failed
	// range validation.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	ErrInvalidTransition = errors.New("invalid claim status transition")
	ErrAlreadyAutomated  = errors.New("claim already automated; set forceProcess to re-run")
)

// IsValidationError reports whether err belongs to the input-validation class.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidCoordinates, ErrMissingPropertyID, ErrMissingClaimID, ErrNegativeAmount,
		ErrUnknownAssessment, ErrUnknownRiskType, ErrInvalidBounds, ErrInvalidGridSize,
		ErrGridTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PolicyViolationError is returned when a caller forces automation on a claim
// that does not meet the eligibility gate.
type PolicyViolationError struct {
	ClaimID string
	Unmet   []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("claim %s is not eligible for automation: %s", e.ClaimID, strings.Join(e.Unmet, "; "))
}
