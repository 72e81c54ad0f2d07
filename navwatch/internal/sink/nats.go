package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hazyhaar/chatnav/navigator"
)

// NATS publishes each snapshot on <prefix>.<platform>.<page id>.
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATS connects to url. The connection retries in the background, so
// an unreachable server is not an error here.
func NewNATS(url, token, prefix string, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("chatnav"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats: disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats: reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return &NATS{conn: nc, prefix: prefix, logger: logger}, nil
}

func (n *NATS) Send(_ context.Context, snap navigator.Snapshot) error {
	data, err := json.Marshal(envelope{Type: "snapshot", Data: snap})
	if err != nil {
		return fmt.Errorf("nats: marshal: %w", err)
	}
	if err := n.conn.Publish(subjectFor(n.prefix, snap), data); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

func subjectFor(prefix string, snap navigator.Snapshot) string {
	page := snap.PageID
	if page == "" {
		page = "_"
	}
	return prefix + "." + snap.Platform.String() + "." + subjectToken(page)
}

// subjectToken makes s usable as a single subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
