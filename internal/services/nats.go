package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	EventStream   = "document-events"
	eventSubjects = "documents.*"
)

// jetStream is the slice of nats.JetStreamContext the publisher needs.
type jetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// EventPublisher publishes upload lifecycle events on JetStream.
type EventPublisher struct {
	conn   *nats.Conn
	js     jetStream
	logger *slog.Logger
}

// ConnectNATS connects to NATS, initializes JetStream and makes sure the
// event stream exists.
func ConnectNATS(url string, logger *slog.Logger) (*EventPublisher, error) {
	logger = serviceLogger(logger, "nats")

	opts := []nats.Option{
		nats.Name("document-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := newEventPublisher(conn, js, logger)
	if err := p.ensureStream(); err != nil {
		// events are best effort; uploads keep working without the stream
		logger.Warn("failed to ensure stream", "stream", EventStream, "error", err)
	}

	logger.Info("connected and JetStream initialized", "url", url)
	return p, nil
}

func newEventPublisher(conn *nats.Conn, js jetStream, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{conn: conn, js: js, logger: logger}
}

// ensureStream creates the event stream if it doesn't exist.
func (p *EventPublisher) ensureStream() error {
	if _, err := p.js.StreamInfo(EventStream); err == nil {
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     EventStream,
		Subjects: []string{eventSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// Publish sends payload as JSON. Each message carries a fresh id so JetStream
// can drop duplicates on retry.
func (p *EventPublisher) Publish(_ context.Context, subject string, payload any) error {
	if p == nil || p.js == nil {
		return errors.New("jetstream not initialized")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := p.js.Publish(subject, data, nats.MsgId(uuid.New().String())); err != nil {
		p.logger.Warn("publish failed", "subject", subject, "error", err)
		return err
	}
	return nil
}

func (p *EventPublisher) CheckConnection(_ context.Context) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

func (p *EventPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
