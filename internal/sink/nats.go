package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/pkg/models"
)

// DefaultSubject is where summaries are published when none is configured.
const DefaultSubject = "loglens.summaries"

// NATSSink publishes each SummaryEvent as JSON on a NATS subject.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url and publishes on subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("loglens-summaries"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("summary sink disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("summary sink reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats sink: connect to %s: %w", url, err)
	}
	return NewNATSSinkWithConn(conn, subject), nil
}

// NewNATSSinkWithConn publishes through an existing connection.
func NewNATSSinkWithConn(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

// Publish sends event on the configured subject. The file path is carried
// in a header so subscribers can filter without decoding.
func (s *NATSSink) Publish(_ context.Context, event models.SummaryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats sink: marshal: %w", err)
	}
	msg := nats.NewMsg(s.subject)
	msg.Data = data
	msg.Header.Set("LogLens-File", event.FilePath)
	msg.Header.Set("LogLens-Event-Id", event.ID)
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats sink: publish %s: %w", s.subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
