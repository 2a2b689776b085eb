package fireplace

import "errors"

// Domain errors for the fireplace client.
var (
	// ErrUnreachable is returned for transport failures: connection refused,
	// DNS failure, timeout.
	ErrUnreachable = errors.New("fireplace: device unreachable")

	// ErrUnexpectedStatus is returned when the device answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("fireplace: unexpected HTTP status")

	// ErrMalformedBody is returned when a 2xx status body is not a JSON object.
	ErrMalformedBody = errors.New("fireplace: malformed status body")

	// ErrFieldMissing marks a status attribute absent from the payload.
	ErrFieldMissing = errors.New("fireplace: field missing")

	// ErrFieldMalformed marks a status attribute with the wrong type or value.
	ErrFieldMalformed = errors.New("fireplace: field malformed")
)

// IsTransport reports whether err means the device could not be talked to
// (as opposed to a protocol error in its answer).
func IsTransport(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrUnexpectedStatus)
}
