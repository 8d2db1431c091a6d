// Copyright (c) 2025 The FLIS developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bus owns the NATS edge: one long-lived connection, the outbound
// publishing lanes and the inbound opportunity subscription. Outbound
// delivery is best-effort when the connection is down; the bus provides
// durability only through JetStream on the durable lanes.
package bus

import (
	"crypto/tls"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var logger = log.With().Str("pkg", "bus").Logger()

// Config describes the bus connection.
type Config struct {
	URL          string
	User         string
	Password     string
	UseTLS       bool
	UseJetStream bool
}

// Conn wraps the NATS connection and, when enabled, its JetStream context.
type Conn struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials the bus. The connection retries forever with a 2 s wait, so
// a bus outage at startup or mid-run degrades delivery instead of killing
// the process.
func Connect(cfg Config) (*Conn, error) {
	opts := []nats.Option{
		nats.Name("flis-executor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("bus disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("bus reconnected")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	if cfg.UseTLS {
		opts = append(opts, nats.Secure(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to bus")
	}

	conn := &Conn{nc: nc}
	if cfg.UseJetStream {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, errors.Wrap(err, "unable to create jetstream context")
		}
		conn.js = js
	}
	return conn, nil
}

// IsConnected reports whether the connection is currently usable.
func (c *Conn) IsConnected() bool {
	return c.nc.Status() == nats.CONNECTED
}

// Publish sends one message best-effort.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// PublishDurable sends one message through JetStream when available, falling
// back to a core publish when the stream facility is not enabled.
func (c *Conn) PublishDurable(subject string, data []byte) error {
	if c.js != nil {
		_, err := c.js.Publish(subject, data)
		return err
	}
	return c.nc.Publish(subject, data)
}

// Subscribe registers a handler on the subject with auto-ack delivery.
func (c *Conn) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to subscribe to %s", subject)
	}
	return sub, nil
}

// Close flushes and closes the connection.
func (c *Conn) Close() {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}
