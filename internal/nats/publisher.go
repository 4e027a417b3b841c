package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"binlog2sql/internal/models"
)

// Publisher fans rendered statements out to a NATS subject. The run
// summary goes to "<subject>.summary".
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// NewPublisher creates a new NATS publisher
func NewPublisher(url, subject string, maxReconnect int, reconnectWait time.Duration, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("binlog2sql"),
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

// Emit publishes one statement
func (p *Publisher) Emit(event *models.ChangeEvent) error {
	if err := p.publish(p.subject, event); err != nil {
		return err
	}
	p.logger.Debugf("Published %s statement for %s.%s", event.Type, event.Database, event.Table)
	return nil
}

// Summary publishes the run summary and flushes pending messages
func (p *Publisher) Summary(summary models.Summary) error {
	if err := p.publish(p.subject+".summary", summary); err != nil {
		return err
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("failed to flush NATS: %w", err)
	}
	return nil
}

func (p *Publisher) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection
func (p *Publisher) Close() error {
	if p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}

// GetConn returns the underlying NATS connection
func (p *Publisher) GetConn() *nats.Conn {
	return p.conn
}
