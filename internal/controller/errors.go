package controller

import "codeberg.org/mutker/deckfanctl/internal/errors"

const (
	// Setup Errors
	ErrInvalidParams = errors.ErrInvalidArgument
	ErrUnknownSource = errors.ErrorCode("controller_unknown_source")

	// Runtime Errors
	ErrPassFailed    = errors.ErrorCode("controller_pass_failed")
	ErrSetModeFailed = errors.ErrorCode("controller_set_mode_failed")
	ErrRestoreFailed = errors.ErrEnableAutoFan
)
