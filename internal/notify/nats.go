package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/crewd/internal/logging"
	"github.com/fyrsmithlabs/crewd/pkg/collab"
)

// Config configures the NATS event sink.
type Config struct {
	URL           string
	SubjectPrefix string
	// Token authenticates the connection when set.
	Token string
	// ConnectTimeout bounds the initial connection (default 5s).
	ConnectTimeout time.Duration
}

// NATSNotifier publishes events to a NATS subject hierarchy.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewNATS connects to the broker and returns the sink. The connection
// reconnects indefinitely; events published while disconnected are
// buffered by the client.
func NewNATS(cfg Config, logger *logging.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "crewd.events"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("crewd"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	return &NATSNotifier{conn: conn, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Notify publishes the event. Failures are logged, never returned.
func (n *NATSNotifier) Notify(ctx context.Context, ev collab.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Warn(ctx, "dropping unencodable event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", n.prefix, ev.RunID, ev.Domain)
	if err := n.conn.Publish(subject, payload); err != nil {
		n.logger.Warn(ctx, "event publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// Close flushes pending publishes and closes the connection.
func (n *NATSNotifier) Close() {
	if n.conn == nil {
		return
	}
	// Drain gives in-flight publishes a chance to leave the client.
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

// Multi fans an event out to several sinks in order.
func Multi(sinks ...collab.Notifier) collab.Notifier {
	return multiNotifier(sinks)
}

type multiNotifier []collab.Notifier

func (m multiNotifier) Notify(ctx context.Context, ev collab.Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(ctx, ev)
		}
	}
}

// Nop returns a sink that discards every event.
func Nop() collab.Notifier { return nopNotifier{} }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, collab.Event) {}
