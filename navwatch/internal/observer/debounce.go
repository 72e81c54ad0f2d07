package observer

import (
	"time"

	"github.com/hazyhaar/chatnav/navwatch/mutation"
)

// debounceConfig controls batching of page records.
type debounceConfig struct {
	// Window is the quiet period before a flush. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records accumulate. Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer buffers records and hands compressed runs to flushFn once the
// page has been quiet for a window or the buffer fills. It is owned by the
// observer loop.
type debouncer struct {
	cfg     debounceConfig
	records []mutation.Record
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]mutation.Record)
}

func newDebouncer(cfg debounceConfig, flushFn func([]mutation.Record)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		records: make([]mutation.Record, 0, 64),
		flushFn: flushFn,
	}
}

// add buffers rec and reports whether the buffer filled and was flushed.
func (d *debouncer) add(rec mutation.Record) bool {
	d.records = append(d.records, rec)

	if len(d.records) >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC fires when the window expires. It is nil while the buffer is empty.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) pending() int { return len(d.records) }

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.records) == 0 {
		return
	}
	out := compress(d.records)
	d.records = make([]mutation.Record, 0, 64)
	d.flushFn(out)
}

// compress folds runs that carry no extra information:
//   - consecutive attr records on the same (xpath, name) keep the last
//     value and the first old value
//   - consecutive text records on the same xpath keep the last
//   - consecutive navigate records keep the last URL
//
// insert, remove and reset are never folded.
func compress(records []mutation.Record) []mutation.Record {
	if len(records) <= 1 {
		return records
	}

	result := make([]mutation.Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		j := i + 1

		switch rec.Op {
		case mutation.OpAttr:
			firstOld := rec.OldValue
			for j < len(records) &&
				records[j].Op == mutation.OpAttr &&
				records[j].XPath == rec.XPath &&
				records[j].Name == rec.Name {
				rec = records[j]
				j++
			}
			rec.OldValue = firstOld

		case mutation.OpText:
			for j < len(records) &&
				records[j].Op == mutation.OpText &&
				records[j].XPath == rec.XPath {
				rec = records[j]
				j++
			}

		case mutation.OpNavigate:
			for j < len(records) && records[j].Op == mutation.OpNavigate {
				rec = records[j]
				j++
			}
		}

		result = append(result, rec)
		i = j - 1
	}
	return result
}
