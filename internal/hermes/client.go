package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// headerOrigin carries the publishing client's id so a process can ignore
// its own events.
const headerOrigin = "Historico-Origin"

// Client publishes historico events and listens for the ones other
// historico processes publish.
type Client struct {
	conn   *nats.Conn
	origin string
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	origin := uuid.NewString()
	opts := []nats.Option{
		nats.Name("historico-" + origin[:8]),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, origin: origin, logger: logger}, nil
}

// Origin identifies this client on everything it publishes.
func (c *Client) Origin() string {
	return c.origin
}

// Publish sends data as JSON, stamped with the client's origin.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(headerOrigin, c.origin)
	msg.Data = payload
	return c.conn.PublishMsg(msg)
}

// Subscribe delivers messages on subject that other clients published.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, c.deliver(handler))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// OnImportCompleted calls handler for every import committed by another
// historico process. Malformed payloads are logged and dropped.
func (c *Client) OnImportCompleted(handler func(ImportCompleted)) error {
	return c.Subscribe(SubjectImportCompleted, func(subject string, data []byte) {
		evt, err := DecodeImportCompleted(data)
		if err != nil {
			c.logger.Warn("dropping malformed event", "subject", subject, "error", err)
			return
		}
		handler(evt)
	})
}

func (c *Client) deliver(handler func(subject string, data []byte)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		if msg.Header.Get(headerOrigin) == c.origin {
			return
		}
		handler(msg.Subject, msg.Data)
	}
}

// Drain flushes pending publishes before closing.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
