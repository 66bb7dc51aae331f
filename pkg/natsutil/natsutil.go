// Package natsutil carries typed JSON events over NATS with OpenTelemetry
// trace propagation in message headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// MsgPublisher is the subset of *nats.Conn used for publishing.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Encode builds a message for subject with v as JSON and the trace context
// of ctx in its headers.
func Encode[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

// Decode parses msg as T and returns a context carrying its trace.
func Decode[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return context.Background(), v, fmt.Errorf("natsutil: decode %s: %w", msg.Subject, err)
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	return ctx, v, nil
}

// Publish encodes v and publishes it on subject.
func Publish[T any](ctx context.Context, p MsgPublisher, subject string, v T) error {
	msg, err := Encode(ctx, subject, v)
	if err != nil {
		return err
	}
	if err := p.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsutil: publish %s: %w", subject, err)
	}
	return nil
}

// QueueSubscribe delivers messages on subject to handler, load-balanced
// across subscribers sharing queue. An empty queue subscribes plainly.
// Malformed messages and handler errors are logged and dropped.
func QueueSubscribe[T any](nc *nats.Conn, subject, queue string, logger *slog.Logger, handler func(context.Context, T) error) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cb := func(msg *nats.Msg) {
		ctx, v, err := Decode[T](msg)
		if err != nil {
			logger.Warn("dropping malformed message", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, v); err != nil {
			logger.Error("message handler failed", "subject", msg.Subject, "error", err)
		}
	}
	if queue == "" {
		return nc.Subscribe(subject, cb)
	}
	return nc.QueueSubscribe(subject, queue, cb)
}
