package core

import "errors"

// Sentinel errors following ADR-021 error handling pattern.
var (
	// Link socket errors
	ErrSocket     = errors.New("arpfuzzer: socket error")
	ErrPeerClosed = errors.New("arpfuzzer: peer closed")

	// Frame codec errors
	ErrFrameTooShort = errors.New("arpfuzzer: frame too short")
	ErrUnknownField  = errors.New("arpfuzzer: unknown field")
	ErrInvalidValue  = errors.New("arpfuzzer: invalid field value")

	// Filter errors
	ErrFilterRegistration = errors.New("arpfuzzer: filter registration failed")

	// Capture errors
	ErrQueueEmpty        = errors.New("arpfuzzer: queue empty")
	ErrPipelineLifecycle = errors.New("arpfuzzer: invalid pipeline lifecycle transition")
	ErrNotify            = errors.New("arpfuzzer: notification failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("arpfuzzer: invalid configuration")
)
