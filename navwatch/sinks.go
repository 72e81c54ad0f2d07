package navwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hazyhaar/chatnav/navigator"
	"github.com/hazyhaar/chatnav/navwatch/internal/sink"
)

// Sink receives every committed snapshot of every observed page.
type Sink = sink.Sink

// NewStdoutSink creates a JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn func(ctx context.Context, snap navigator.Snapshot) error) Sink {
	return sink.NewCallback(fn)
}

// NewNATSSink creates a sink publishing on <subject>.<platform>.<page id>.
func NewNATSSink(url, token, subject string, logger *slog.Logger) (Sink, error) {
	return sink.NewNATS(url, token, subject, logger)
}

// SinksFromConfig builds the sinks declared in cfg.
func SinksFromConfig(cfg []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	out := make([]Sink, 0, len(cfg))
	for _, sc := range cfg {
		switch sc.Type {
		case "stdout":
			out = append(out, NewStdoutSink(os.Stdout))
		case "webhook":
			out = append(out, NewWebhookSink(sc.URL, sc.Retries, logger))
		case "nats":
			subject := sc.Subject
			if subject == "" {
				subject = "chatnav.snapshot"
			}
			s, err := NewNATSSink(sc.URL, sc.Token, subject, logger)
			if err != nil {
				for _, prev := range out {
					prev.Close()
				}
				return nil, err
			}
			out = append(out, s)
		default:
			for _, prev := range out {
				prev.Close()
			}
			return nil, fmt.Errorf("navwatch: unknown sink type %q", sc.Type)
		}
	}
	return out, nil
}
