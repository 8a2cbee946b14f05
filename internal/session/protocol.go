package session

import (
	"encoding/json"
	"math"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/perf"
)

// Event types sent by render clients.
const (
	EventFrame       = "frame"
	EventPointerDown = "pointerdown"
	EventPointerUp   = "pointerup"
	EventBattery     = "battery"
	EventMemory      = "memory"
	EventDevice      = "device"
	EventSelect      = "select"
)

// Event is one telemetry message from a client. At is the client's
// monotonic clock in milliseconds. Nil readings mean the client's platform
// does not support the probe.
type Event struct {
	Type     string   `json:"type"`
	At       float64  `json:"at"`
	ID       int64    `json:"id,omitempty"`
	Level    *float64 `json:"level,omitempty"`
	Charging *bool    `json:"charging,omitempty"`
	Usage    *float64 `json:"usage,omitempty"`
	Cores    *int     `json:"cores,omitempty"`
	MemoryGB *float64 `json:"memory_gb,omitempty"`
	Network  *string  `json:"network,omitempty"`
	DPR      float64  `json:"dpr,omitempty"`
	Mode     string   `json:"mode,omitempty"`
}

// ParseEvent decodes and checks a client message.
func ParseEvent(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, errors.New().Wrap(errors.ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (ev Event) Validate() error {
	errFactory := errors.New()

	switch ev.Type {
	case EventFrame, EventPointerDown, EventPointerUp, EventBattery, EventMemory, EventDevice:
	case EventSelect:
		if _, err := perf.ParseMode(ev.Mode); err != nil {
			return errFactory.Wrap(errors.ErrMalformedEvent, err)
		}
	default:
		return errFactory.WithData(errors.ErrMalformedEvent, ev.Type)
	}

	switch {
	case math.IsNaN(ev.At):
		return errFactory.WithData(errors.ErrMalformedEvent, "timestamp is not a number")
	case ev.At < 0:
		return errFactory.WithData(errors.ErrMalformedEvent, "negative timestamp")
	case ev.At > maxClientMillis:
		return errFactory.WithData(errors.ErrMalformedEvent, "timestamp out of range")
	}

	return nil
}

// maxClientMillis is the largest client offset that fits a time.Duration.
const maxClientMillis = float64(math.MaxInt64 / int64(time.Millisecond))

func (ev Event) clientTime() time.Duration {
	return time.Duration(ev.At * float64(time.Millisecond))
}

// Message types pushed to clients and observers.
const (
	MessageHello    = "hello"
	MessageMode     = "mode"
	MessageSnapshot = "snapshot"
	MessageClosed   = "closed"
)

// Snapshot triggers.
const (
	TriggerFrame       = "frame"
	TriggerInteraction = "interaction"
	TriggerTick        = "tick"
)

// Message is pushed from a session to its client and to observers.
type Message struct {
	Type      string         `json:"type"`
	Session   string         `json:"session"`
	At        time.Time      `json:"at"`
	Mode      perf.Mode      `json:"mode"`
	Selected  perf.Mode      `json:"selected"`
	From      *perf.Mode     `json:"from,omitempty"`
	Reason    perf.Reason    `json:"reason,omitempty"`
	Trigger   string         `json:"trigger,omitempty"`
	Suggested *perf.Mode     `json:"suggested,omitempty"`
	Snapshot  *perf.Snapshot `json:"snapshot,omitempty"`
}
