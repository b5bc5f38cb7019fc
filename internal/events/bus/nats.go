package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/logger"
)

const natsReconnectWait = 2 * time.Second

// NATSEventBus shares agent events between instances. Subjects are namespaced
// with the configured prefix so several deployments can share a server. NATS
// runs each async subscription on one goroutine, which keeps per-subscription
// order.
type NATSEventBus struct {
	conn   *nats.Conn
	prefix string
	logger *logger.Logger
}

func NewNATSEventBus(cfg config.NATSConfig, log *logger.Logger) (*NATSEventBus, error) {
	log = log.Component("nats-event-bus")
	conn, err := nats.Connect(cfg.URL, natsOptions(cfg, log)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Info("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("subject_prefix", cfg.SubjectPrefix))
	return &NATSEventBus{conn: conn, prefix: cfg.SubjectPrefix, logger: log}, nil
}

func natsOptions(cfg config.NATSConfig, log *logger.Logger) []nats.Option {
	return []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected, agent events paused", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("NATS async error", fields...)
		}),
	}
}

func (b *NATSEventBus) subject(s string) string {
	if b.prefix == "" {
		return s
	}
	return b.prefix + "." + s
}

func (b *NATSEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := b.conn.Publish(b.subject(subject), data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	b.logger.WithEvent(event.Type, event.ID).Debug("Published event", zap.String("subject", subject))
	return nil
}

func (b *NATSEventBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(b.subject(subject), func(msg *nats.Msg) {
		b.dispatch(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

func (b *NATSEventBus) dispatch(msg *nats.Msg, handler Handler) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.logger.Warn("Dropping undecodable event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := handler(context.Background(), &event); err != nil {
		b.logger.WithEvent(event.Type, event.ID).Error("Event handler failed",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

// Close drains subscriptions before closing the connection.
func (b *NATSEventBus) Close() {
	if b.conn == nil || b.conn.IsClosed() {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("NATS drain failed, closing", zap.Error(err))
		b.conn.Close()
		return
	}
	b.logger.Info("NATS connection drained")
}

func (b *NATSEventBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
