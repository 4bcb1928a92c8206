package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"env_automation/internal/models"
)

// Messenger is the broker surface the mqtt family needs.
type Messenger interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Publish(topic string, payload []byte) error
}

// MQTT mirrors a device that reports JSON state on one topic and accepts
// JSON commands on another.
type MQTT struct {
	messenger    Messenger
	now          func() time.Time
	stateTopic   string
	commandTopic string
	valueKey     string
	maxAge       time.Duration // zero accepts a message of any age

	mu         sync.Mutex
	last       map[string]any
	receivedAt time.Time
}

var _ Device = (*MQTT)(nil)

func newMQTT(cfg map[string]any, deps Deps) (Device, error) {
	if deps.Messenger == nil {
		return nil, errors.New("mqtt broker is not configured")
	}
	d := &MQTT{
		messenger:    deps.Messenger,
		now:          deps.Now,
		stateTopic:   stringParam(cfg, "state_topic", ""),
		commandTopic: stringParam(cfg, "command_topic", ""),
		valueKey:     stringParam(cfg, "value_key", "value"),
	}
	if d.stateTopic == "" {
		return nil, errors.New("state_topic is required")
	}
	maxAge, ok := floatParam(cfg, "max_age_seconds", 0)
	if !ok || maxAge < 0 {
		return nil, errors.New("max_age_seconds must be a non-negative number")
	}
	d.maxAge = time.Duration(maxAge * float64(time.Second))
	if err := d.messenger.Subscribe(d.stateTopic, d.onMessage); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", d.stateTopic, err)
	}
	return d, nil
}

func (d *MQTT) onMessage(_ string, payload []byte) {
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	d.mu.Lock()
	d.last = msg
	d.receivedAt = d.now().UTC()
	d.mu.Unlock()
}

// Poll returns the last state message, stamped with the time it arrived so a
// silent sensor ages out. It fails until a message has arrived, and once the
// message is older than max_age_seconds when that is set.
func (d *MQTT) Poll(context.Context) (models.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return models.Reading{}, Fail(CodeNoData, "no message received on %s", d.stateTopic)
	}
	if age := d.now().Sub(d.receivedAt); d.maxAge > 0 && age > d.maxAge {
		return models.Reading{}, Fail(CodeNoData, "last message on %s is %s old", d.stateTopic, age.Round(time.Second))
	}

	payload := make(map[string]any, len(d.last))
	for k, v := range d.last {
		payload[k] = v
	}
	rd := models.Reading{
		Timestamp: d.receivedAt,
		Payload:   payload,
		Context: map[string]any{
			"topic":       d.stateTopic,
			"received_at": d.receivedAt.Format(time.RFC3339Nano),
		},
	}
	if v, ok := payload[d.valueKey].(float64); ok {
		rd.Value = &v
	}
	return rd, nil
}

// Actuate publishes {"action": type, "parameters": params} to the command topic.
func (d *MQTT) Actuate(_ context.Context, a Action) (Outcome, error) {
	if d.commandTopic == "" {
		return nil, Fail(CodeUnsupportedAction, "device has no command_topic")
	}
	body, err := json.Marshal(map[string]any{"action": a.Type, "parameters": a.Parameters})
	if err != nil {
		return nil, Fail(CodeInvalidParams, "encode command: %v", err)
	}
	if err := d.messenger.Publish(d.commandTopic, body); err != nil {
		return nil, Fail(CodeUnavailable, "publish %s: %v", d.commandTopic, err)
	}
	return Outcome{"topic": d.commandTopic, "published": true}, nil
}

func (d *MQTT) TestConnection(context.Context) error {
	if c, ok := d.messenger.(interface{ IsConnected() bool }); ok && !c.IsConnected() {
		return Fail(CodeUnavailable, "mqtt broker connection is down")
	}
	return nil
}
