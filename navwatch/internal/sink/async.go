package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/chatnav/navigator"
)

// Async decouples snapshot producers from slow sinks. Send only enqueues;
// a single goroutine delivers in order. When the queue is full the oldest
// pending snapshot is dropped.
type Async struct {
	next   Sink
	queue  chan navigator.Snapshot
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewAsync starts delivering to next with a queue of size entries.
func NewAsync(next Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:   next,
		queue:  make(chan navigator.Snapshot, size),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Send(_ context.Context, snap navigator.Snapshot) error {
	for {
		select {
		case a.queue <- snap:
			return nil
		default:
		}
		select {
		case old := <-a.queue:
			a.logger.Warn("sink: queue full, dropping snapshot", "page", old.PageID, "seq", old.Seq)
		default:
		}
	}
}

func (a *Async) run() {
	defer close(a.done)
	for {
		select {
		case snap := <-a.queue:
			a.deliver(snap)
		case <-a.stop:
			for {
				select {
				case snap := <-a.queue:
					a.deliver(snap)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) deliver(snap navigator.Snapshot) {
	if err := a.next.Send(a.ctx, snap); err != nil {
		a.logger.Warn("sink: delivery failed", "page", snap.PageID, "seq", snap.Seq, "error", err)
	}
}

// Close delivers what is queued, stops the goroutine and closes next.
// Snapshots sent after Close are never delivered.
func (a *Async) Close() error {
	a.once.Do(func() {
		close(a.stop)
		<-a.done
		a.cancel()
	})
	return a.next.Close()
}
