package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	headerEventID   = "Fleet-Event-Id"
	headerEventType = "Fleet-Event-Type"
)

// MsgPublisher is the subset of *nats.Conn used for publishing.
type MsgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSPublisher publishes envelopes as JSON to "<prefix>.<event subject>".
type NATSPublisher struct {
	conn   MsgPublisher
	prefix string
}

// NewNATSPublisher constructs a publisher over an established connection.
func NewNATSPublisher(conn MsgPublisher, prefix string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("eventing: nil nats connection")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "fleet"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Publish serializes the event envelope and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, event any) error {
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	if env.Subject == "" {
		return fmt.Errorf("eventing: %s has no subject", env.EventType)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: p.prefix + "." + env.Subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(headerEventID, env.EventID)
	msg.Header.Set(headerEventType, env.EventType)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("eventing: publish %s: %w", msg.Subject, err)
	}
	return nil
}

// ConnectNATS dials the server with reconnect logging.
func ConnectNATS(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventing: connect nats: %w", err)
	}
	return conn, nil
}

// SubscribeEnvelopes decodes every envelope published under "<prefix>.>" and hands the
// decoded event to handler. Undecodable messages are reported through onError.
func SubscribeEnvelopes(conn *nats.Conn, prefix string, registry *Registry, handler func(Envelope, any), onError func(error)) (*nats.Subscription, error) {
	if conn == nil || registry == nil || handler == nil {
		return nil, errors.New("eventing: subscribe requires connection, registry and handler")
	}
	if onError == nil {
		onError = func(error) {}
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "fleet"
	}
	return conn.Subscribe(prefix+".>", func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			onError(fmt.Errorf("eventing: decode envelope on %s: %w", msg.Subject, err))
			return
		}
		event, err := registry.DecodePayload(env)
		if err != nil {
			onError(err)
			return
		}
		handler(env, event)
	})
}
