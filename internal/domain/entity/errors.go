package entity

import "errors"

var (
	// Message errors
	ErrInvalidSlot           = errors.New("invalid slot")
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrNoCounterpart         = errors.New("no derivable counterpart")
	ErrInvalidDirection      = errors.New("invalid direction")

	// Tag errors
	ErrEmptyCounterpart = errors.New("empty counterpart")

	// Session errors
	ErrUnknownSlot = errors.New("unknown slot")
)
