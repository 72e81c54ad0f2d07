// Package sink delivers message index snapshots to outputs.
package sink

import (
	"context"

	"github.com/hazyhaar/chatnav/navigator"
)

// Sink receives every committed snapshot of every observed tab.
type Sink interface {
	Send(ctx context.Context, snap navigator.Snapshot) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
