// Package publisher delivers decoded change events to NATS.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"updatestream-cdc/internal/updatestream"
)

// Publisher handles publishing change events to NATS
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// New connects to NATS and returns a publisher rooted at subject.
func New(url, subject string, maxReconnect int, reconnectWait time.Duration, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(maxReconnect),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Infof("Connected to NATS at %s", url)

	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Publish publishes a change event as JSON. Events carrying transform
// output are published byte-for-byte.
func (p *Publisher) Publish(event *updatestream.ChangeEvent) error {
	data, err := payloadFor(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(subjectFor(p.subject, event), data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}

	p.logger.Debugf("Published %s event for table %q at group id %s",
		event.Category, event.TableName, event.GroupId)
	return nil
}

// payloadFor prefers the raw JSON a transform produced, so fields a script
// added are published verbatim instead of being re-marshaled away.
func payloadFor(event *updatestream.ChangeEvent) ([]byte, error) {
	if len(event.RawJSON) > 0 {
		return event.RawJSON, nil
	}
	return json.Marshal(event)
}

// subjectFor appends the table name for row-change events so consumers can
// subscribe per table; events without a table go to the base subject.
func subjectFor(base string, event *updatestream.ChangeEvent) string {
	if event.TableName == "" {
		return base
	}
	return base + "." + event.TableName
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
