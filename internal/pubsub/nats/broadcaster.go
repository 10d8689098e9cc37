package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tokentable/internal/config"
	"tokentable/internal/logger"

	"github.com/nats-io/nats.go"
)

// Client fans table changes out to other processes (dashboards, bots) over core NATS
type Client struct {
	nc     *nats.Conn
	log    logger.Logger
	prefix string
}

func Connect(cfg *config.NATSConfig, log logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	url := cfg.URL
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("tokentable"),
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnected
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected, error=%v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Warnf("NATS reconnected, url=%s", c.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.BroadcastPrefix
	if prefix == "" {
		prefix = "tokens"
	}

	log.Infof("Connected to NATS successfully, url=%s", url)
	return &Client{
		nc:     nc,
		log:    log,
		prefix: prefix,
	}, nil
}

// Subject maps a relative subject onto the broadcast prefix
func (c *Client) Subject(subject string) string {
	return c.prefix + "." + subject
}

// Publish encodes data as JSON and sends it fire-and-forget
func (c *Client) Publish(ctx context.Context, subject string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.nc == nil {
		return errors.New("nats connection is not initialized")
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}

	if err = c.nc.Publish(c.Subject(subject), b); err != nil {
		return fmt.Errorf("publish to %s: %w", c.Subject(subject), err)
	}
	return nil
}

func (c *Client) Health(_ context.Context) error {
	if !c.Ready() {
		return fmt.Errorf("nats connection not ready, status=%s", c.Status())
	}
	return nil
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	// check not close this conn
	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}
