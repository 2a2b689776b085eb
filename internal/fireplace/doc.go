// Package fireplace is the HTTP client for the fireplace controller.
//
// The controller exposes a small proprietary API:
//
//	GET  /jsonSetings               status JSON (POWER, select_rez, AUDIO_rej, zapravka)
//	GET  /analog?POWER={0,1}        power off/on
//	GET  /SAVE?select_rez={mode}    fire mode
//	GET  /SAVE?AUDIO_rej={mode}     audio mode
//
// Every request carries a fixed timeout and is never retried here; the
// bridge decides when to try again. Failures are classified with sentinel
// errors so callers can tell an unreachable device (ErrUnreachable,
// ErrUnexpectedStatus) from one that answered with garbage (ErrMalformedBody).
//
// Status decoding is strict per field: each attribute reports whether it was
// present and well-typed, and the caller publishes only the good ones.
package fireplace
