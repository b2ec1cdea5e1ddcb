package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	// URL of the NATS server. Empty disables the sink.
	URL            string        `yaml:"url" json:"url,omitempty" validate:"omitempty,url"`
	SubjectPrefix  string        `yaml:"subject_prefix" json:"subject_prefix" validate:"required_with=URL" jsonschema:"default=argo.alpaca"`
	ClientName     string        `yaml:"client_name" json:"client_name,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout,omitempty"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait" json:"reconnect_wait,omitempty"`
	MaxReconnects  int           `yaml:"max_reconnects" json:"max_reconnects,omitempty"`
}

// publisher is the subset of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes JSON-encoded events on subjects under SubjectPrefix:
//
//	<prefix>.market.batch
//	<prefix>.connection.status
//	<prefix>.orders.<event type>
//	<prefix>.trade_updates
type NATSNotifier struct {
	config NATSConfig
	log    *logger.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	pub  publisher
}

var _ Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(config NATSConfig, log *logger.Logger) *NATSNotifier {
	return &NATSNotifier{
		config: config,
		log:    log.Named("notifier.nats"),
		mu:     sync.RWMutex{},
		conn:   nil,
		pub:    nil,
	}
}

// Connect dials the NATS server. Calling it on a connected notifier is a no-op.
func (n *NATSNotifier) Connect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && n.conn.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(n.config.ClientName),
		nats.RetryOnFailedConnect(true),
		nats.ClosedHandler(func(_ *nats.Conn) {
			n.log.Warn("NATS connection closed")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.log.Warn("NATS disconnected, reconnecting", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	if n.config.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(n.config.ConnectTimeout))
	}

	if n.config.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(n.config.ReconnectWait))
	}

	if n.config.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(n.config.MaxReconnects))
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotifierUnavailable, "failed to connect to NATS", err)
	}

	n.conn = conn
	n.pub = conn
	n.log.Info("connected to NATS", zap.String("url", n.config.URL))

	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}

	err := n.conn.Drain()
	n.conn = nil
	n.pub = nil

	return err
}

func (n *NATSNotifier) PublishMarketBatch(_ context.Context, batch []types.MarketMessage) error {
	return n.publish(n.subject("market.batch"), batch)
}

func (n *NATSNotifier) PublishConnectionStatus(_ context.Context, status types.ConnectionStatusSnapshot) error {
	return n.publish(n.subject("connection.status"), status)
}

func (n *NATSNotifier) PublishOrderEvent(_ context.Context, event types.OrderEvent) error {
	return n.publish(n.subject("orders."+string(event.Type)), event)
}

func (n *NATSNotifier) PublishTradeUpdate(_ context.Context, update types.TradeUpdate) error {
	return n.publish(n.subject("trade_updates"), update)
}

func (n *NATSNotifier) subject(suffix string) string {
	if n.config.SubjectPrefix == "" {
		return suffix
	}

	return n.config.SubjectPrefix + "." + suffix
}

func (n *NATSNotifier) publish(subject string, payload any) error {
	n.mu.RLock()
	pub := n.pub
	n.mu.RUnlock()

	if pub == nil {
		return errors.New(errors.ErrCodeNotifierUnavailable, "NATS notifier is not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeNotifierPublishFailed, err, "failed to encode payload for %s", subject)
	}

	if err := pub.Publish(subject, data); err != nil {
		return errors.Wrapf(errors.ErrCodeNotifierPublishFailed, err, "failed to publish to %s", subject)
	}

	return nil
}
