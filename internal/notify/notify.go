// Package notify publishes automation events to subscribers outside the process.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Event names, appended to the subject prefix.
const (
	AlertTriggered  = "alert.triggered"
	AlertResolved   = "alert.resolved"
	ActionCompleted = "action.completed"
)

// Publisher delivers events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, event string, data any) error
	Close()
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// Conn is the subset of *nats.Conn used by NATS.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// NATS publishes events on "<prefix>.<event>".
type NATS struct {
	conn   Conn
	prefix string
	now    func() time.Time
}

var _ Publisher = (*NATS)(nil)

// DialNATS connects to url.
func DialNATS(url, prefix string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("env-automation"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return NewNATS(conn, prefix), nil
}

func NewNATS(conn Conn, prefix string) *NATS {
	return &NATS{conn: conn, prefix: prefix, now: time.Now}
}

// Subject returns the subject an event is published on.
func (p *NATS) Subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

func (p *NATS) Publish(ctx context.Context, event string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(Envelope{Event: event, At: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if err := p.conn.Publish(p.Subject(event), body); err != nil {
		return fmt.Errorf("publish %s: %w", p.Subject(event), err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATS) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
		p.conn.Close()
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() {}
