package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"env_automation/internal/models"
)

// Simulation constants of the thermal family.
const (
	AmbientC          = 25.0   // ambient temperature °C
	MaxSafeC          = 1000.0 // overheat threshold °C
	RampUpCPerSec     = 3.0    // °C per second when HEAT
	RampDownCPerSec   = 5.0    // °C per second when COOL
	StandbyCoolPerSec = 0.5    // °C per second drift when idle
	SoakToleranceC    = 2.0    // °C band for "at target"
)

// Thermal modes.
const (
	ModeHeat    = "HEAT"
	ModeCool    = "COOL"
	ModeStandby = "STANDBY"
)

const codeOverheat = "OVERHEAT"

// Thermal simulates a heated enclosure with a temperature sensor and a heating element.
// State advances lazily from wall-clock time on every call.
type Thermal struct {
	now     func() time.Time
	ambient float64
	maxSafe float64

	mu        sync.Mutex
	tempC     float64
	targetC   float64
	mode      string
	running   bool
	remaining int // soak seconds left in HEAT
	codes     []string
	updated   time.Time
}

var _ Device = (*Thermal)(nil)

func newThermal(cfg map[string]any, deps Deps) (Device, error) {
	ambient, ok := floatParam(cfg, "ambient_c", AmbientC)
	if !ok {
		return nil, fmt.Errorf("ambient_c must be a number")
	}
	maxSafe, ok := floatParam(cfg, "max_safe_c", MaxSafeC)
	if !ok || maxSafe <= ambient {
		return nil, fmt.Errorf("max_safe_c must be a number above ambient")
	}
	initial, ok := floatParam(cfg, "initial_temp_c", ambient)
	if !ok {
		return nil, fmt.Errorf("initial_temp_c must be a number")
	}
	return &Thermal{
		now:     deps.Now,
		ambient: ambient,
		maxSafe: maxSafe,
		tempC:   initial,
		mode:    ModeStandby,
		updated: deps.Now().UTC(),
	}, nil
}

func (t *Thermal) Poll(_ context.Context) (models.Reading, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	t.advance(now)

	temp := t.tempC
	codes := append([]string(nil), t.codes...)
	return models.Reading{
		Timestamp: now,
		Value:     &temp,
		Payload: map[string]any{
			"temperature":       temp,
			"target_temp":       t.targetC,
			"remaining_seconds": float64(t.remaining),
			"running":           boolToFloat(t.running),
		},
		Context: map[string]any{
			"mode":        t.mode,
			"error_codes": codes,
		},
	}, nil
}

// Actuate supports start, stop and set_mode (mode, target_temp_c, duration_sec).
func (t *Thermal) Actuate(_ context.Context, a Action) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advance(t.now().UTC())

	switch a.Type {
	case "start":
		t.running = true
	case "stop":
		t.running = false
		t.mode = ModeStandby
		t.targetC = 0
		t.remaining = 0
	case "set_mode":
		if err := t.setMode(a.Parameters); err != nil {
			return nil, err
		}
	default:
		return nil, Fail(CodeUnsupportedAction, "thermal device does not support %q", a.Type)
	}
	return Outcome{
		"running":       t.running,
		"mode":          t.mode,
		"target_temp_c": t.targetC,
		"temperature":   t.tempC,
	}, nil
}

func (t *Thermal) TestConnection(context.Context) error { return nil }

func (t *Thermal) setMode(p map[string]any) error {
	mode := strings.ToUpper(stringParam(p, "mode", ""))
	switch mode {
	case ModeHeat:
		target, ok1 := floatParam(p, "target_temp_c", 0)
		duration, ok2 := floatParam(p, "duration_sec", 0)
		if !ok1 || !ok2 || target <= 0 || duration <= 0 {
			return Fail(CodeInvalidParams, "HEAT requires target_temp_c > 0 and duration_sec > 0")
		}
		if target < t.ambient {
			return Fail(CodeInvalidParams, "target temperature %.1f is below ambient %.1f", target, t.ambient)
		}
		if target > t.maxSafe {
			return Fail(CodeInvalidParams, "target temperature %.1f exceeds max safe limit %.1f", target, t.maxSafe)
		}
		if !t.running {
			return Fail(CodeInvalidParams, "cannot change mode: device is stopped, start it first")
		}
		t.mode = ModeHeat
		t.targetC = target
		t.remaining = int(duration)
	case ModeCool, ModeStandby:
		if !t.running {
			return Fail(CodeInvalidParams, "cannot change mode: device is stopped, start it first")
		}
		t.mode = mode
		t.targetC = 0
		t.remaining = 0
	default:
		return Fail(CodeInvalidParams, "invalid mode %q: must be HEAT, COOL, or STANDBY", mode)
	}
	return nil
}

// advance applies the physics for the time since the last update.
// Sub-second gaps accumulate until a whole second has passed.
func (t *Thermal) advance(now time.Time) {
	elapsed := now.Sub(t.updated).Seconds()
	if elapsed < 1 {
		return
	}
	t.updated = now

	if !t.running {
		t.coolBy(StandbyCoolPerSec * elapsed)
		return
	}
	switch t.mode {
	case ModeHeat:
		t.heat(elapsed)
	case ModeCool:
		t.coolBy(RampDownCPerSec * elapsed)
	default:
		t.coolBy(StandbyCoolPerSec * elapsed)
	}

	if t.tempC > t.maxSafe && !containsString(t.codes, codeOverheat) {
		t.codes = append(t.codes, codeOverheat)
	}
}

// heat ramps toward the target. Time spent at target counts down the soak,
// and the device switches to COOL when the soak ends.
func (t *Thermal) heat(elapsed float64) {
	soak := 0.0
	if t.tempC < t.targetC-SoakToleranceC {
		toTarget := (t.targetC - t.tempC) / RampUpCPerSec
		t.tempC = min(t.tempC+RampUpCPerSec*elapsed, t.targetC)
		if toTarget < elapsed {
			soak = elapsed - toTarget
		}
	} else {
		soak = elapsed
		t.tempC = min(t.tempC, t.targetC)
	}

	if t.remaining > 0 && int(soak) >= 1 {
		t.remaining -= int(soak)
		if t.remaining <= 0 {
			t.remaining = 0
			t.mode = ModeCool
			t.targetC = 0
		}
	}
}

func (t *Thermal) coolBy(delta float64) {
	if t.tempC > t.ambient {
		t.tempC = max(t.tempC-delta, t.ambient)
	}
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
