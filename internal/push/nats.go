package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Metrics receives push delivery outcomes.
type Metrics interface {
	PushSent()
	PushFailed()
	NATSSetConnected(connected bool)
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSender publishes notifications as JSON to a NATS subject consumed by
// the FCM gateway.
type NATSSender struct {
	nc      *nats.Conn
	pub     publisher
	subject string
	metrics Metrics
	logger  *slog.Logger
}

// NewNATSSender connects to url. metrics may be nil.
func NewNATSSender(url, subject string, m Metrics, logger *slog.Logger) (*NATSSender, error) {
	nc, err := nats.Connect(url,
		nats.Name("gocommute"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	s := newNATSSender(nc, subject, m, logger)
	s.nc = nc
	return s, nil
}

func newNATSSender(pub publisher, subject string, m Metrics, logger *slog.Logger) *NATSSender {
	return &NATSSender{pub: pub, subject: subject, metrics: m, logger: logger}
}

func (s *NATSSender) Send(ctx context.Context, token, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(Message{Token: token, Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}
	if err := s.pub.Publish(s.subject, b); err != nil {
		if s.metrics != nil {
			s.metrics.PushFailed()
		}
		return fmt.Errorf("publish push to %s: %w", s.subject, err)
	}
	if s.metrics != nil {
		s.metrics.PushSent()
	}
	s.logger.Debug("push published", "subject", s.subject, "token", redact(token))
	return nil
}

// Close drains and closes the connection.
func (s *NATSSender) Close() {
	if s.nc != nil {
		s.nc.Drain()
		s.nc.Close()
	}
}
