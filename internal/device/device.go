// Package device defines the capability contract the automation core needs
// from physical or simulated devices, and the concrete device families.
package device

import (
	"context"
	"errors"
	"fmt"

	"env_automation/internal/models"
)

// ErrUnknownType is returned when no constructor is registered for a type tag.
var ErrUnknownType = errors.New("unknown device type")

// Action is an actuation request.
type Action struct {
	Type       string
	Parameters map[string]any
}

// Outcome is the driver-reported result of a successful actuation.
type Outcome map[string]any

// Device is the capability set the engine drives. Calls must be bounded in
// time and safe to repeat.
type Device interface {
	Poll(ctx context.Context) (models.Reading, error)
	Actuate(ctx context.Context, a Action) (Outcome, error)
	TestConnection(ctx context.Context) error
}

// Failure is an explicit failure reported by a device.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string {
	if f.Code == "" {
		return f.Message
	}
	return f.Code + ": " + f.Message
}

// Fail builds a Failure with a formatted message.
func Fail(code, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Failure codes shared by the families.
const (
	CodeUnsupportedAction = "unsupported_action"
	CodeInvalidParams     = "invalid_params"
	CodeNoData            = "no_data"
	CodeUnavailable       = "unavailable"
	CodePanic             = "panic"
)

// SafePoll calls d.Poll and converts a panic into a Failure.
func SafePoll(ctx context.Context, d Device) (rd models.Reading, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Fail(CodePanic, "poll panicked: %v", r)
		}
	}()
	return d.Poll(ctx)
}

// SafeActuate calls d.Actuate and converts a panic into a Failure.
func SafeActuate(ctx context.Context, d Device, a Action) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = Fail(CodePanic, "actuate %s panicked: %v", a.Type, r)
		}
	}()
	return d.Actuate(ctx, a)
}
