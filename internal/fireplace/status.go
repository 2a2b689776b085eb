package fireplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status payload keys as sent by the controller firmware.
const (
	KeyPower     = "POWER"
	KeyFireMode  = "select_rez"
	KeyAudioMode = "AUDIO_rej"
	KeyFill      = "zapravka"
)

// PowerState is the tri-state power reading.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOff
	PowerOn
)

// String implements fmt.Stringer.
func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}

// Payload returns the MQTT value for a known power state ("1"/"0").
// Unknown maps to "0".
func (p PowerState) Payload() string {
	if p == PowerOn {
		return "1"
	}
	return "0"
}

// MarshalJSON encodes the state as its string form.
func (p PowerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// Field is one decoded status attribute. Err is nil when the attribute was
// present and well-typed, ErrFieldMissing or ErrFieldMalformed otherwise.
type Field[T any] struct {
	Value T
	Err   error
}

// OK reports whether the field holds a usable value.
func (f Field[T]) OK() bool {
	return f.Err == nil
}

// Status is the decoded /jsonSetings payload.
type Status struct {
	Power     Field[PowerState]
	FireMode  Field[int]
	AudioMode Field[int]
	Fill      Field[bool]

	// Raw is the payload exactly as received, for the log topic.
	Raw json.RawMessage
}

// DecodeStatus parses a status body. Only a body that is not a JSON object
// fails as a whole (ErrMalformedBody); problems with individual attributes
// are reported on the matching Field.
func DecodeStatus(data []byte) (Status, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	if obj == nil {
		return Status{}, fmt.Errorf("%w: body is null", ErrMalformedBody)
	}

	return Status{
		Power:     decodePower(obj),
		FireMode:  decodeInt(obj, KeyFireMode),
		AudioMode: decodeInt(obj, KeyAudioMode),
		Fill:      decodeFlag(obj, KeyFill),
		Raw:       json.RawMessage(bytes.Clone(data)),
	}, nil
}

func decodePower(obj map[string]json.RawMessage) Field[PowerState] {
	flag := decodeFlag(obj, KeyPower)
	if !flag.OK() {
		return Field[PowerState]{Value: PowerUnknown, Err: flag.Err}
	}
	if flag.Value {
		return Field[PowerState]{Value: PowerOn}
	}
	return Field[PowerState]{Value: PowerOff}
}

// decodeFlag accepts 0/1 (number, numeric string or bool).
func decodeFlag(obj map[string]json.RawMessage, key string) Field[bool] {
	n := decodeInt(obj, key)
	if !n.OK() {
		return Field[bool]{Err: n.Err}
	}
	switch n.Value {
	case 0:
		return Field[bool]{Value: false}
	case 1:
		return Field[bool]{Value: true}
	default:
		return Field[bool]{Err: fmt.Errorf("%w: %s=%d, want 0 or 1", ErrFieldMalformed, key, n.Value)}
	}
}

// decodeInt accepts a JSON integer, an integral float, a numeric string or a bool.
func decodeInt(obj map[string]json.RawMessage, key string) Field[int] {
	raw, ok := obj[key]
	if !ok {
		return Field[int]{Err: fmt.Errorf("%w: %s", ErrFieldMissing, key)}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Field[int]{Err: fmt.Errorf("%w: %s: %w", ErrFieldMalformed, key, err)}
	}

	malformed := func() Field[int] {
		return Field[int]{Err: fmt.Errorf("%w: %s=%s", ErrFieldMalformed, key, string(raw))}
	}

	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i < math.MinInt || i > math.MaxInt {
				return malformed()
			}
			return Field[int]{Value: int(i)}
		}
		// math.MaxInt rounds up to 2^63 as a float64, hence >=.
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) || f < math.MinInt || f >= math.MaxInt {
			return malformed()
		}
		return Field[int]{Value: int(f)}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return malformed()
		}
		return Field[int]{Value: i}
	case bool:
		if t {
			return Field[int]{Value: 1}
		}
		return Field[int]{Value: 0}
	default:
		return malformed()
	}
}
