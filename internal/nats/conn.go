package natsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/transport"
)

// Conn is the NATS-backed fleet transport.
type Conn struct {
	nc  *nats.Conn
	url string
	log *zap.Logger
}

var _ transport.Transport = (*Conn)(nil)

// Connect dials the NATS server and keeps reconnecting forever.
func Connect(url, name string, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Warn("nats async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &Conn{nc: nc, url: url, log: log}, nil
}

func (c *Conn) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.nc == nil || c.nc.IsClosed() {
		return fmt.Errorf("nats not connected: %w", transport.ErrClosed)
	}
	return c.nc.Publish(subject, payload)
}

func (c *Conn) Subscribe(subject string, h transport.Handler) (transport.Subscription, error) {
	if c.nc == nil || c.nc.IsClosed() {
		return nil, fmt.Errorf("nats not connected: %w", transport.ErrClosed)
	}
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		h(m.Subject, m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains pending messages before closing the connection.
func (c *Conn) Close() error {
	if c.nc == nil || c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}
