package sink

import (
	"context"

	"github.com/hazyhaar/chatnav/navigator"
)

// SnapshotFunc handles one snapshot in process.
type SnapshotFunc func(ctx context.Context, snap navigator.Snapshot) error

// Callback delivers snapshots through a Go function.
type Callback struct {
	fn SnapshotFunc
}

// NewCallback creates a Callback sink. A nil fn discards snapshots.
func NewCallback(fn SnapshotFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, snap navigator.Snapshot) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, snap)
}

func (c *Callback) Close() error { return nil }
