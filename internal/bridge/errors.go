package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrValidation is the parent of every command payload rejection.
	ErrValidation = errors.New("bridge: invalid command")

	// ErrInvalidPayload is returned when a payload cannot be parsed as the
	// control's type.
	ErrInvalidPayload = errors.New("bridge: invalid payload")

	// ErrOutOfRange is returned when a mode lies outside the configured bound.
	ErrOutOfRange = errors.New("bridge: value out of range")

	// ErrUnknownControl is returned for commands to controls that are not writable.
	ErrUnknownControl = errors.New("bridge: unknown control")

	// ErrQueueFull is returned when the command queue cannot take another message.
	ErrQueueFull = errors.New("bridge: command queue full")
)
