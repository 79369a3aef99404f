// Package events publishes finished-match results for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cory-johannsen/pong/internal/observability"
)

// MatchResult is the record published when a match ends.
type MatchResult struct {
	MatchID string    `json:"matchId"`
	Server  string    `json:"server"`
	Winner  int       `json:"winner"`
	Player1 string    `json:"player1"`
	Player2 string    `json:"player2"`
	Score1  int       `json:"score1"`
	Score2  int       `json:"score2"`
	EndedAt time.Time `json:"endedAt"`
}

// Publisher delivers match results. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishMatchResult(ctx context.Context, result MatchResult) error
	Close() error
}

// Nop discards every result.
type Nop struct{}

// PublishMatchResult implements Publisher.
func (Nop) PublishMatchResult(context.Context, MatchResult) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// natsConn is the subset of *nats.Conn used by NATSPublisher.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes results as JSON on a core NATS subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher connects to url and returns a publisher for subject.
// The connection reconnects indefinitely.
//
// Precondition: url and subject must be non-empty.
// Postcondition: Returns a connected publisher or a non-nil error.
func NewNATSPublisher(url, subject, clientName string, logger *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	return newNATSPublisher(conn, subject, logger), nil
}

func newNATSPublisher(conn natsConn, subject string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// PublishMatchResult publishes result and waits for the server to acknowledge
// the flush or for ctx to expire.
func (p *NATSPublisher) PublishMatchResult(ctx context.Context, result MatchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling match result: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing match result: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing match result: %w", err)
	}
	p.logger.Debug("match result published",
		zap.String("subject", p.subject),
		zap.String(observability.FieldMatch, result.MatchID),
	)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
