package bridge

import (
	"encoding/json"
	"strings"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
)

// Control names, as they appear in /devices/{id}/controls/{name}.
const (
	ControlPower       = "power"
	ControlFireMode    = "fire_mode"
	ControlAudioMode   = "audio_mode"
	ControlSettings    = "settings"
	ControlStatus      = "status"
	ControlPowerStatus = "power_status"
	ControlFillStatus  = "fill_status"
	ControlLog         = "log"
)

// Well-known payloads.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	// ErrorMarker is written to an error topic while the control is in error.
	// An empty payload clears it.
	ErrorMarker = "r"
	ErrorClear  = ""

	// LogDebugDisabled fills the log topic on every poll while debug output is off.
	LogDebugDisabled = "Debugging OFF"

	// driverName identifies the bridge in the device meta topic.
	driverName = "fireplace-bridge"
)

// ControlType is the Wiren Board control type declared in meta.
type ControlType string

const (
	TypeSwitch     ControlType = "switch"
	TypeRange      ControlType = "range"
	TypePushbutton ControlType = "pushbutton"
	TypeText       ControlType = "text"
)

// Title is a bilingual display name.
type Title struct {
	EN string `json:"en"`
	RU string `json:"ru"`
}

// Control is one static control declaration.
type Control struct {
	Name     string
	Order    int
	Title    Title
	Type     ControlType

	// Range bounds TypeRange controls, inclusive.
	Range config.RangeConfig

	// Readonly is declared in meta; Writable controls get a command subscription.
	Readonly bool
	Writable bool

	// HasError marks device-backed controls with an error topic.
	HasError bool
}

// controlMeta is the JSON layout of /devices/{id}/controls/{name}/meta.
type controlMeta struct {
	Type     ControlType `json:"type"`
	Order    int         `json:"order"`
	Title    Title       `json:"title"`
	Min      *int        `json:"min,omitempty"`
	Max      *int        `json:"max,omitempty"`
	Readonly bool        `json:"readonly,omitempty"`
}

// MetaJSON renders the control's meta payload.
func (c Control) MetaJSON() []byte {
	m := controlMeta{
		Type:     c.Type,
		Order:    c.Order,
		Title:    c.Title,
		Readonly: c.Readonly,
	}
	if c.Type == TypeRange {
		lo, hi := c.Range.Min, c.Range.Max
		m.Min, m.Max = &lo, &hi
	}
	data, _ := json.Marshal(m) // plain struct, cannot fail
	return data
}

// Topics derives topic strings from the device identifier.
type Topics struct {
	DeviceID string
}

func (t Topics) prefix() string {
	return "/devices/" + t.DeviceID
}

// DeviceMeta returns /devices/{id}/meta.
func (t Topics) DeviceMeta() string {
	return t.prefix() + "/meta"
}

// State returns /devices/{id}/controls/{control}.
func (t Topics) State(control string) string {
	return t.prefix() + "/controls/" + control
}

// Command returns /devices/{id}/controls/{control}/on.
func (t Topics) Command(control string) string {
	return t.State(control) + "/on"
}

// Meta returns /devices/{id}/controls/{control}/meta.
func (t Topics) Meta(control string) string {
	return t.State(control) + "/meta"
}

// MetaType returns /devices/{id}/controls/{control}/meta/type, the
// single-value type topic some controllers read instead of the meta document.
func (t Topics) MetaType(control string) string {
	return t.Meta(control) + "/type"
}

// Error returns /devices/{id}/controls/{control}/error.
func (t Topics) Error(control string) string {
	return t.State(control) + "/error"
}

// Model is the device's static control table plus its topics.
// Immutable after NewModel; safe to share between goroutines.
type Model struct {
	Topics

	title    Title
	controls []Control
	byName   map[string]Control
}

// NewModel builds the control table from the device configuration.
// Mode ranges come from configuration; everything else is fixed.
func NewModel(cfg config.DeviceConfig) *Model {
	controls := []Control{
		{Name: ControlPower, Order: 1, Title: Title{"Power", "Питание"}, Type: TypeSwitch, Writable: true, HasError: true},
		{Name: ControlFireMode, Order: 2, Title: Title{"Fire Mode", "Режим огня"}, Type: TypeRange,
			Range: cfg.FireMode, Writable: true, HasError: true},
		{Name: ControlAudioMode, Order: 3, Title: Title{"Audio Mode", "Режим звука"}, Type: TypeRange,
			Range: cfg.AudioMode, Writable: true, HasError: true},
		{Name: ControlSettings, Order: 4, Title: Title{"Settings", "Настройки"}, Type: TypePushbutton, Writable: true},
		{Name: ControlStatus, Order: 5, Title: Title{"Status", "Состояние"}, Type: TypeText, Readonly: true},
		{Name: ControlPowerStatus, Order: 6, Title: Title{"Power Status", "Статус питания"}, Type: TypeSwitch, Readonly: true, HasError: true},
		{Name: ControlFillStatus, Order: 7, Title: Title{"Fill", "Заправка"}, Type: TypeSwitch, Readonly: true, HasError: true},
		{Name: ControlLog, Order: 8, Title: Title{"Log", "Лог"}, Type: TypeText, Readonly: true},
	}

	m := &Model{
		Topics:   Topics{DeviceID: cfg.ID},
		title:    Title{EN: cfg.TitleEN, RU: cfg.TitleRU},
		controls: controls,
		byName:   make(map[string]Control, len(controls)),
	}
	for _, c := range controls {
		m.byName[c.Name] = c
	}
	return m
}

// Controls returns every control in meta order.
func (m *Model) Controls() []Control {
	out := make([]Control, len(m.controls))
	copy(out, m.controls)
	return out
}

// Control looks up a control by name.
func (m *Model) Control(name string) (Control, bool) {
	c, ok := m.byName[name]
	return c, ok
}

// ControlByCommandTopic maps an inbound command topic back to its writable control.
func (m *Model) ControlByCommandTopic(topic string) (Control, bool) {
	rest, ok := strings.CutPrefix(topic, m.State(""))
	if !ok {
		return Control{}, false
	}
	name, ok := strings.CutSuffix(rest, "/on")
	if !ok || strings.Contains(name, "/") {
		return Control{}, false
	}
	c, ok := m.byName[name]
	if !ok || !c.Writable {
		return Control{}, false
	}
	return c, true
}

// CommandTopics lists the command topics the bridge subscribes to.
func (m *Model) CommandTopics() []string {
	var topics []string
	for _, c := range m.controls {
		if c.Writable {
			topics = append(topics, m.Command(c.Name))
		}
	}
	return topics
}

// ErrorControls lists the controls that carry an error topic.
func (m *Model) ErrorControls() []Control {
	var out []Control
	for _, c := range m.controls {
		if c.HasError {
			out = append(out, c)
		}
	}
	return out
}

// DeviceMetaJSON renders /devices/{id}/meta.
func (m *Model) DeviceMetaJSON() []byte {
	data, _ := json.Marshal(struct {
		Driver string `json:"driver"`
		Title  Title  `json:"title"`
	}{Driver: driverName, Title: m.title})
	return data
}
