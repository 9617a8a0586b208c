// Package bus publishes pipeline events over NATS. Publishing is
// fire-and-forget; a broker outage never blocks or fails the pipeline.
package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Sinnan1/PhotoPortal-sub002/pkg/schema"
)

type Client struct {
	nc                *nats.Conn
	doneSubject       string
	registeredSubject string
	logger            *slog.Logger
}

func Connect(url, doneSubject, registeredSubject string, logger *slog.Logger) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		nc:                nc,
		doneSubject:       doneSubject,
		registeredSubject: registeredSubject,
		logger:            logger,
	}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

func (c *Client) PublishThumbnailDone(evt schema.ThumbnailDone) {
	c.publishJSON(c.doneSubject, evt)
}

func (c *Client) PublishPhotoRegistered(evt schema.PhotoRegistered) {
	c.publishJSON(c.registeredSubject, evt)
}

func (c *Client) publishJSON(subject string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal event", "subject", subject, "err", err)
		return
	}
	if err := c.nc.Publish(subject, b); err != nil {
		c.logger.Warn("publish event", "subject", subject, "err", err)
	}
}
