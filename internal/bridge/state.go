package bridge

import (
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/fireplace"
)

// DeviceState is the last-known device state. Only the reconciler writes
// it; everyone else gets copies via Reconciler.State.
type DeviceState struct {
	Power     fireplace.PowerState `json:"power"`
	FireMode  int                  `json:"fire_mode"`
	AudioMode int                  `json:"audio_mode"`
	FillLevel bool                 `json:"fill_level"`
	Online    bool                 `json:"online"`

	// Errors is true per device-backed control while it is in error.
	Errors ErrorState `json:"errors"`

	// UpdatedAt is the time of the last successful poll (zero before one).
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorState tracks which controls have their error topic set.
type ErrorState map[string]bool

// Any reports whether any control is in error.
func (e ErrorState) Any() bool {
	for _, v := range e {
		if v {
			return true
		}
	}
	return false
}

func (e ErrorState) clone() ErrorState {
	out := make(ErrorState, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// CommandRequest is one inbound command, handed from the MQTT delivery
// goroutine to the router lane.
type CommandRequest struct {
	Control    string
	Topic      string
	RawPayload string
	ReceivedAt time.Time
}
