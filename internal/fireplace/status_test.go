package fireplace

import (
	"errors"
	"testing"
)

func TestDecodeStatus_AllFields(t *testing.T) {
	raw := []byte(`{"POWER":1,"select_rez":2,"AUDIO_rej":0,"zapravka":1}`)

	st, err := DecodeStatus(raw)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}

	if !st.Power.OK() || st.Power.Value != PowerOn {
		t.Errorf("Power = %+v, want on", st.Power)
	}
	if !st.FireMode.OK() || st.FireMode.Value != 2 {
		t.Errorf("FireMode = %+v, want 2", st.FireMode)
	}
	if !st.AudioMode.OK() || st.AudioMode.Value != 0 {
		t.Errorf("AudioMode = %+v, want 0", st.AudioMode)
	}
	if !st.Fill.OK() || !st.Fill.Value {
		t.Errorf("Fill = %+v, want true", st.Fill)
	}
	if string(st.Raw) != string(raw) {
		t.Errorf("Raw = %s, want input bytes", st.Raw)
	}
}

func TestDecodeStatus_FieldTypes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr error
	}{
		{"integer", `{"select_rez":3}`, 3, nil},
		{"numeric string", `{"select_rez":"3"}`, 3, nil},
		{"padded string", `{"select_rez":" 4 "}`, 4, nil},
		{"integral float", `{"select_rez":2.0}`, 2, nil},
		{"fractional float", `{"select_rez":2.5}`, 0, ErrFieldMalformed},
		{"float beyond int", `{"select_rez":1e20}`, 0, ErrFieldMalformed},
		{"negative float beyond int", `{"select_rez":-1e20}`, 0, ErrFieldMalformed},
		{"integer beyond int64", `{"select_rez":99999999999999999999}`, 0, ErrFieldMalformed},
		{"word", `{"select_rez":"high"}`, 0, ErrFieldMalformed},
		{"null", `{"select_rez":null}`, 0, ErrFieldMalformed},
		{"object", `{"select_rez":{}}`, 0, ErrFieldMalformed},
		{"missing", `{}`, 0, ErrFieldMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := DecodeStatus([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodeStatus() error = %v", err)
			}
			if tt.wantErr != nil {
				if !errors.Is(st.FireMode.Err, tt.wantErr) {
					t.Errorf("FireMode.Err = %v, want %v", st.FireMode.Err, tt.wantErr)
				}
				return
			}
			if !st.FireMode.OK() || st.FireMode.Value != tt.want {
				t.Errorf("FireMode = %+v, want %d", st.FireMode, tt.want)
			}
		})
	}
}

func TestDecodeStatus_Power(t *testing.T) {
	tests := []struct {
		body string
		want PowerState
		ok   bool
	}{
		{`{"POWER":0}`, PowerOff, true},
		{`{"POWER":1}`, PowerOn, true},
		{`{"POWER":"1"}`, PowerOn, true},
		{`{"POWER":true}`, PowerOn, true},
		{`{"POWER":2}`, PowerUnknown, false},
		{`{}`, PowerUnknown, false},
	}

	for _, tt := range tests {
		st, err := DecodeStatus([]byte(tt.body))
		if err != nil {
			t.Fatalf("DecodeStatus(%s) error = %v", tt.body, err)
		}
		if st.Power.OK() != tt.ok || st.Power.Value != tt.want {
			t.Errorf("DecodeStatus(%s).Power = %+v, want %v ok=%v", tt.body, st.Power, tt.want, tt.ok)
		}
	}
}

func TestDecodeStatus_MalformedBody(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `null`, `"POWER"`} {
		if _, err := DecodeStatus([]byte(body)); !errors.Is(err, ErrMalformedBody) {
			t.Errorf("DecodeStatus(%q) error = %v, want ErrMalformedBody", body, err)
		}
	}
}

func TestDecodeStatus_PartialPayload(t *testing.T) {
	st, err := DecodeStatus([]byte(`{"POWER":1,"AUDIO_rej":"loud"}`))
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if !st.Power.OK() {
		t.Error("Power should decode despite other bad fields")
	}
	if !errors.Is(st.AudioMode.Err, ErrFieldMalformed) {
		t.Errorf("AudioMode.Err = %v, want ErrFieldMalformed", st.AudioMode.Err)
	}
	if !errors.Is(st.FireMode.Err, ErrFieldMissing) {
		t.Errorf("FireMode.Err = %v, want ErrFieldMissing", st.FireMode.Err)
	}
	if !errors.Is(st.Fill.Err, ErrFieldMissing) {
		t.Errorf("Fill.Err = %v, want ErrFieldMissing", st.Fill.Err)
	}
}

func TestPowerState_String(t *testing.T) {
	if PowerOn.String() != "on" || PowerOff.String() != "off" || PowerUnknown.String() != "unknown" {
		t.Error("unexpected PowerState strings")
	}
	if PowerOn.Payload() != "1" || PowerOff.Payload() != "0" {
		t.Error("unexpected PowerState payloads")
	}
}
