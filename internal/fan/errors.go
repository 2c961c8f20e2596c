package fan

import "codeberg.org/mutker/deckfanctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidZone   = errors.ErrorCode("fan_invalid_zone")
	ErrInvalidCurve  = errors.ErrorCode("fan_invalid_curve")
	ErrInvalidPolicy = errors.ErrorCode("fan_invalid_policy")
	ErrDuplicateZone = errors.ErrorCode("fan_duplicate_zone")

	// Lookup Errors
	ErrUnknownZone = errors.ErrorCode("fan_unknown_zone")

	// Update Errors
	ErrDuplicateMatch   = errors.ErrorCode("fan_duplicate_match")
	ErrIdentityMismatch = errors.ErrorCode("fan_identity_mismatch")
)
