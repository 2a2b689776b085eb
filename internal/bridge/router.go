package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/fireplace-bridge/internal/fireplace"
)

// defaultQueueSize is used when RouterOptions.QueueSize is not set.
const defaultQueueSize = 16

// Device is the subset of the fireplace client the bridge needs.
// *fireplace.Client satisfies it.
type Device interface {
	FetchStatus(ctx context.Context) (fireplace.Status, error)
	SetPower(ctx context.Context, on bool) error
	SetFireMode(ctx context.Context, mode int) error
	SetAudioMode(ctx context.Context, mode int) error
}

// statePublisher is what the router and reconciler publish through.
type statePublisher interface {
	PublishState(topic, value string, retained bool)
	PublishError(topic, value string)
	PublishStatus(status string)
}

// RouterOptions holds configuration for creating a router.
type RouterOptions struct {
	Device    Device
	Publisher statePublisher
	Model     *Model

	// QueueSize is the capacity of the inbound command channel.
	QueueSize int

	// State, when set, supplies the last confirmed device state for log context.
	State func() DeviceState

	Logger Logger
}

// Router validates inbound commands and dispatches them to the device.
//
// Per message: Received, Validated, Dispatched, then Confirmed or Rejected.
// A rejected command publishes nothing and, when validation fails, never
// reaches the device.
type Router struct {
	device Device
	pub    statePublisher
	model  *Model
	state  func() DeviceState
	logger Logger

	queue chan CommandRequest

	accepted atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// RouterStats holds per-outcome command counters.
type RouterStats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

// command is a validated CommandRequest.
type command struct {
	control string
	on      bool
	mode    int
}

// NewRouter creates a router.
func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Router{
		device: opts.Device,
		pub:    opts.Publisher,
		model:  opts.Model,
		state:  opts.State,
		logger: opts.Logger,
		queue:  make(chan CommandRequest, size),
	}, nil
}

// Enqueue hands a command to the router lane without blocking. It is the
// gateway's OnMessage callback. A full queue drops the command.
func (r *Router) Enqueue(req CommandRequest) {
	select {
	case r.queue <- req:
	default:
		r.dropped.Add(1)
		r.logWarn("command dropped", "control", req.Control, "error", ErrQueueFull)
	}
}

// Run processes queued commands until ctx is cancelled. A command already
// dispatched to the device completes; queued ones are abandoned.
func (r *Router) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case req := <-r.queue:
			_ = r.Handle(ctx, req)
		}
	}
}

// Handle processes one command synchronously. The returned error is for
// callers that care; outcomes are already logged and counted.
//
// Cancelling ctx does not abort the device call; the HTTP timeout bounds it.
func (r *Router) Handle(ctx context.Context, req CommandRequest) error {
	ctx = context.WithoutCancel(ctx)

	if req.Control == ControlSettings {
		return r.refresh(ctx)
	}

	cmd, err := r.validate(req)
	if err != nil {
		r.rejected.Add(1)
		r.logWarn("command rejected",
			"control", req.Control,
			"payload", req.RawPayload,
			"error", err)
		return err
	}

	if err := r.dispatch(ctx, cmd); err != nil {
		r.failed.Add(1)
		kv := []any{"control", cmd.control, "error", err}
		if r.state != nil {
			kv = append(kv, "device_online", r.state().Online)
		}
		r.logError("command failed", kv...)
		return err
	}

	r.accepted.Add(1)
	r.confirm(cmd)
	return nil
}

// validate decodes a payload as the control's type and checks its bound.
func (r *Router) validate(req CommandRequest) (command, error) {
	c, ok := r.model.Control(req.Control)
	if !ok || !c.Writable {
		return command{}, fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownControl, req.Control)
	}

	payload := strings.TrimSpace(req.RawPayload)

	switch c.Type {
	case TypeSwitch:
		on, err := strconv.ParseBool(payload)
		if err != nil {
			return command{}, fmt.Errorf("%w: %w: %s=%q", ErrValidation, ErrInvalidPayload, c.Name, payload)
		}
		return command{control: c.Name, on: on}, nil

	case TypeRange:
		mode, err := strconv.Atoi(payload)
		if err != nil {
			return command{}, fmt.Errorf("%w: %w: %s=%q", ErrValidation, ErrInvalidPayload, c.Name, payload)
		}
		if !c.Range.Contains(mode) {
			return command{}, fmt.Errorf("%w: %w: %s=%d not in [%d,%d]",
				ErrValidation, ErrOutOfRange, c.Name, mode, c.Range.Min, c.Range.Max)
		}
		return command{control: c.Name, mode: mode}, nil
	}

	return command{}, fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownControl, req.Control)
}

func (r *Router) dispatch(ctx context.Context, cmd command) error {
	switch cmd.control {
	case ControlPower:
		return r.device.SetPower(ctx, cmd.on)
	case ControlFireMode:
		return r.device.SetFireMode(ctx, cmd.mode)
	case ControlAudioMode:
		return r.device.SetAudioMode(ctx, cmd.mode)
	}
	return fmt.Errorf("%w: %q", ErrUnknownControl, cmd.control)
}

// confirm publishes the value the device accepted. Power is echoed to
// power_status too.
func (r *Router) confirm(cmd command) {
	value := strconv.Itoa(cmd.mode)
	if cmd.control == ControlPower {
		value = "0"
		if cmd.on {
			value = "1"
		}
		r.pub.PublishState(r.model.State(ControlPowerStatus), value, false)
	}
	r.pub.PublishState(r.model.State(cmd.control), value, false)
	r.logInfo("command confirmed", "control", cmd.control, "value", value)
}

// refresh handles the settings pushbutton: an out-of-band status fetch whose
// raw JSON goes to the log topic.
func (r *Router) refresh(ctx context.Context) error {
	st, err := r.device.FetchStatus(ctx)
	if err != nil {
		r.failed.Add(1)
		level := r.logError
		if errors.Is(err, fireplace.ErrMalformedBody) {
			level = r.logWarn
		}
		level("settings refresh failed", "error", err)
		return err
	}

	r.accepted.Add(1)
	r.pub.PublishState(r.model.State(ControlLog), string(st.Raw), false)
	r.logInfo("settings refreshed", "bytes", len(st.Raw))
	return nil
}

// Stats returns command counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Accepted: r.accepted.Load(),
		Rejected: r.rejected.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
	}
}

func (r *Router) logInfo(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Info(msg, kv...)
	}
}

func (r *Router) logWarn(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, kv...)
	}
}

func (r *Router) logError(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Error(msg, kv...)
	}
}
