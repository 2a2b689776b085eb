package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/fireplace"
)

// defaultPollInterval is used when ReconcilerOptions.Interval is not set.
const defaultPollInterval = 5 * time.Second

// ReconcilerOptions holds configuration for creating a reconciler.
type ReconcilerOptions struct {
	Device    Device
	Publisher statePublisher
	Model     *Model

	// Interval between polls. The first poll runs immediately.
	Interval time.Duration

	// Debug publishes every raw status payload to the log topic.
	Debug bool

	Logger Logger
}

// Reconciler polls the device and mirrors its state onto MQTT.
//
// It is the only writer of DeviceState and ErrorState. The status topic and
// error topics are published on transitions only; attribute values are
// republished on every successful poll.
type Reconciler struct {
	device   Device
	pub      statePublisher
	model    *Model
	interval time.Duration
	debug    bool
	logger   Logger

	// Owned by the poll loop.
	state DeviceState

	snapshot atomic.Pointer[DeviceState]
	polls    atomic.Uint64
	failures atomic.Uint64
	lastPoll atomic.Int64 // unix nanos
}

// ReconcilerStats holds poll counters.
type ReconcilerStats struct {
	Polls    uint64    `json:"polls"`
	Failures uint64    `json:"failures"`
	LastPoll time.Time `json:"last_poll"`
}

// NewReconciler creates a reconciler. The device starts offline with no
// errors set, matching the startup snapshot.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	r := &Reconciler{
		device:   opts.Device,
		pub:      opts.Publisher,
		model:    opts.Model,
		interval: interval,
		debug:    opts.Debug,
		logger:   opts.Logger,
		state:    DeviceState{Errors: ErrorState{}},
	}
	r.storeSnapshot()
	return r, nil
}

// Run polls until ctx is cancelled. A poll in flight finishes (bounded by
// the HTTP timeout) before the loop sees the cancellation.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Poll(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll runs one reconcile cycle. Only the poll loop (or a test) may call it.
// Cancelling ctx does not abort the request; the HTTP timeout bounds it.
func (r *Reconciler) Poll(ctx context.Context) {
	r.polls.Add(1)
	r.lastPoll.Store(time.Now().UnixNano())

	st, err := r.device.FetchStatus(context.WithoutCancel(ctx))
	if err != nil {
		r.failures.Add(1)
		r.handleFailure(err)
		r.storeSnapshot()
		return
	}

	r.handleSuccess(st)
	r.storeSnapshot()
}

func (r *Reconciler) handleFailure(err error) {
	if r.state.Errors.Any() {
		r.logDebug("device still unreachable", "error", err)
		return
	}

	if fireplace.IsTransport(err) {
		r.logWarn("device unreachable", "error", err)
	} else {
		r.logWarn("device returned malformed status", "error", err)
	}

	r.state.Online = false
	r.pub.PublishStatus(StatusOffline)
	for _, c := range r.model.ErrorControls() {
		r.pub.PublishError(r.model.Error(c.Name), ErrorMarker)
		r.state.Errors[c.Name] = true
	}
}

func (r *Reconciler) handleSuccess(st fireplace.Status) {
	if !r.state.Online {
		r.state.Online = true
		r.pub.PublishStatus(StatusOnline)
		r.logInfo("device online", "device_id", r.model.DeviceID)
	}
	for _, c := range r.model.ErrorControls() {
		if r.state.Errors[c.Name] {
			r.pub.PublishError(r.model.Error(c.Name), ErrorClear)
			r.state.Errors[c.Name] = false
		}
	}

	if r.checkField(fireplace.KeyPower, st.Power.Err) {
		r.state.Power = st.Power.Value
		v := st.Power.Value.Payload()
		r.publish(ControlPower, v)
		r.publish(ControlPowerStatus, v)
	}
	if r.checkField(fireplace.KeyFireMode, r.checkRange(ControlFireMode, st.FireMode)) {
		r.state.FireMode = st.FireMode.Value
		r.publish(ControlFireMode, strconv.Itoa(st.FireMode.Value))
	}
	if r.checkField(fireplace.KeyAudioMode, r.checkRange(ControlAudioMode, st.AudioMode)) {
		r.state.AudioMode = st.AudioMode.Value
		r.publish(ControlAudioMode, strconv.Itoa(st.AudioMode.Value))
	}
	if r.checkField(fireplace.KeyFill, st.Fill.Err) {
		r.state.FillLevel = st.Fill.Value
		v := "0"
		if st.Fill.Value {
			v = "1"
		}
		r.publish(ControlFillStatus, v)
	}

	if r.debug {
		r.publish(ControlLog, string(st.Raw))
	} else {
		r.publish(ControlLog, LogDebugDisabled)
	}

	r.state.UpdatedAt = time.Now()
}

// checkField logs a missing or malformed field and reports whether it is usable.
func (r *Reconciler) checkField(key string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, fireplace.ErrFieldMissing):
		r.logDebug("status field missing", "field", key)
	default:
		r.logWarn("status field malformed", "field", key, "error", err)
	}
	return false
}

// checkRange rejects a decoded mode outside the control's configured bound.
func (r *Reconciler) checkRange(control string, f fireplace.Field[int]) error {
	if f.Err != nil {
		return f.Err
	}
	c, _ := r.model.Control(control)
	if !c.Range.Contains(f.Value) {
		return fmt.Errorf("%w: %d not in [%d,%d]", fireplace.ErrFieldMalformed, f.Value, c.Range.Min, c.Range.Max)
	}
	return nil
}

func (r *Reconciler) publish(control, value string) {
	r.pub.PublishState(r.model.State(control), value, false)
}

func (r *Reconciler) storeSnapshot() {
	s := r.state
	s.Errors = r.state.Errors.clone()
	r.snapshot.Store(&s)
}

// State returns a copy of the last-known device state.
func (r *Reconciler) State() DeviceState {
	s := *r.snapshot.Load()
	s.Errors = s.Errors.clone()
	return s
}

// Stats returns poll counters.
func (r *Reconciler) Stats() ReconcilerStats {
	s := ReconcilerStats{
		Polls:    r.polls.Load(),
		Failures: r.failures.Load(),
	}
	if ns := r.lastPoll.Load(); ns != 0 {
		s.LastPoll = time.Unix(0, ns)
	}
	return s
}

func (r *Reconciler) logDebug(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, kv...)
	}
}

func (r *Reconciler) logInfo(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Info(msg, kv...)
	}
}

func (r *Reconciler) logWarn(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, kv...)
	}
}
