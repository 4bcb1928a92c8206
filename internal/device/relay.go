package device

import (
	"context"
	"sync"
	"time"

	"env_automation/internal/models"
)

// Relay is an on/off switch. Polls report state as 1 or 0.
type Relay struct {
	now func() time.Time

	mu sync.Mutex
	on bool
}

var _ Device = (*Relay)(nil)

func newRelay(cfg map[string]any, deps Deps) (Device, error) {
	return &Relay{now: deps.Now, on: boolParam(cfg, "initial_state", false)}, nil
}

func (r *Relay) Poll(context.Context) (models.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := boolToFloat(r.on)
	return models.Reading{
		Timestamp: r.now().UTC(),
		Value:     &v,
		Payload:   map[string]any{"state": v},
	}, nil
}

// Actuate supports turn_on, turn_off and toggle.
func (r *Relay) Actuate(_ context.Context, a Action) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.on
	switch a.Type {
	case "turn_on":
		r.on = true
	case "turn_off":
		r.on = false
	case "toggle":
		r.on = !r.on
	default:
		return nil, Fail(CodeUnsupportedAction, "relay does not support %q", a.Type)
	}
	return Outcome{"previous_state": prev, "state": r.on}, nil
}

func (r *Relay) TestConnection(context.Context) error { return nil }
