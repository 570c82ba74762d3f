// ============================================================================
// Action Execution Engine - Bus Client
// ============================================================================
//
// Package: internal/bus
// File: client.go
// Purpose: Narrow interface over *nats.Conn, so Adapter and the entity
// store client depend on a test double rather than a live connection.
//
// ============================================================================

package bus

import (
	"github.com/nats-io/nats.go"
)

// Message is the subset of *nats.Msg consumers of Client need.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Client is the bus surface this system uses: plain publish, publish with
// a reply subject (used for the job-dispatch fire-and-forget pattern), a
// blocking request/reply (used by internal/entitystore), and subscribe.
type Client interface {
	Publish(subject string, data []byte) error
	PublishRequest(subject, reply string, data []byte) error
	Request(subject string, data []byte, timeoutMillis int64) (*Message, error)
	Subscribe(subject string, handler func(*Message)) (Subscription, error)
	Close()
}

// Subscription is returned by Subscribe; callers Unsubscribe when done.
type Subscription interface {
	Unsubscribe() error
}

// natsClient adapts a *nats.Conn to Client.
type natsClient struct {
	conn *nats.Conn
}

// NewClient wraps an established NATS connection.
func NewClient(conn *nats.Conn) Client {
	return &natsClient{conn: conn}
}

func (c *natsClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *natsClient) PublishRequest(subject, reply string, data []byte) error {
	return c.conn.PublishRequest(subject, reply, data)
}

func (c *natsClient) Request(subject string, data []byte, timeoutMillis int64) (*Message, error) {
	msg, err := c.conn.Request(subject, data, durationFromMillis(timeoutMillis))
	if err != nil {
		return nil, err
	}
	return &Message{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data}, nil
}

func (c *natsClient) Subscribe(subject string, handler func(*Message)) (Subscription, error) {
	return c.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(&Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data})
	})
}

func (c *natsClient) Close() {
	c.conn.Close()
}
