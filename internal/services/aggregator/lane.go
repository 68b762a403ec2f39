// Package aggregator turns a trade stream into tumbling-window OHLCV candles.
package aggregator

import (
	"sort"
	"time"

	"CandleCast/internal/domain/models"
)

// Result describes what happened to an ingested trade.
type Result int

const (
	Accepted Result = iota
	Late
	Duplicate
)

func (r Result) String() string {
	switch r {
	case Late:
		return "late"
	case Duplicate:
		return "duplicate"
	default:
		return "accepted"
	}
}

type point struct {
	ts    int64
	price float64
	qty   float64
}

// before orders trades by time, breaking ties by price and quantity so that
// open/close do not depend on arrival order.
func (p point) before(o point) bool {
	if p.ts != o.ts {
		return p.ts < o.ts
	}
	if p.price != o.price {
		return p.price < o.price
	}
	return p.qty < o.qty
}

type window struct {
	start  int64
	first  point
	last   point
	high   float64
	low    float64
	volume float64
	seen   map[models.DedupKey]struct{}
}

func newWindow(start int64, t models.Trade) *window {
	p := point{ts: t.TimestampMs, price: t.Price, qty: t.Quantity}
	return &window{
		start:  start,
		first:  p,
		last:   p,
		high:   t.Price,
		low:    t.Price,
		volume: t.Quantity,
		seen:   map[models.DedupKey]struct{}{t.Key(): {}},
	}
}

func (w *window) add(t models.Trade) {
	p := point{ts: t.TimestampMs, price: t.Price, qty: t.Quantity}
	if p.before(w.first) {
		w.first = p
	}
	if w.last.before(p) {
		w.last = p
	}
	if t.Price > w.high {
		w.high = t.Price
	}
	if t.Price < w.low {
		w.low = t.Price
	}
	w.volume += t.Quantity
}

// Lane aggregates one (pair, duration) key. It is not safe for concurrent use;
// each lane is owned by exactly one worker.
type Lane struct {
	pair       string
	durationMs int64
	latenessMs int64

	open          []*window // sorted by start
	maxTs         int64
	closedThrough int64 // every window starting before this is closed
}

// NewLane creates a lane. lateness is the watermark tolerance Δ.
func NewLane(pair string, duration, lateness time.Duration) *Lane {
	if lateness < 0 {
		lateness = 0
	}
	return &Lane{
		pair:       pair,
		durationMs: duration.Milliseconds(),
		latenessMs: lateness.Milliseconds(),
	}
}

func (l *Lane) Pair() string { return l.pair }

func (l *Lane) Duration() time.Duration { return time.Duration(l.durationMs) * time.Millisecond }

// Open returns the number of windows currently accumulating.
func (l *Lane) Open() int { return len(l.open) }

// Ingest adds a trade and returns the candles whose windows the new watermark closed.
func (l *Lane) Ingest(t models.Trade) ([]models.Candle, Result) {
	start := models.WindowStart(t.TimestampMs, l.durationMs)
	if start < l.closedThrough {
		return nil, Late
	}

	i := sort.Search(len(l.open), func(i int) bool { return l.open[i].start >= start })
	if i < len(l.open) && l.open[i].start == start {
		w := l.open[i]
		key := t.Key()
		if _, dup := w.seen[key]; dup {
			return nil, Duplicate
		}
		w.seen[key] = struct{}{}
		w.add(t)
	} else {
		w := newWindow(start, t)
		l.open = append(l.open, nil)
		copy(l.open[i+1:], l.open[i:])
		l.open[i] = w
	}

	if t.TimestampMs > l.maxTs {
		l.maxTs = t.TimestampMs
	}
	return l.closeThrough(l.maxTs - l.latenessMs), Accepted
}

// FlushDue closes open windows whose end plus Δ has passed on the wall clock.
// Windows that never received a trade stay open to lagged input: the closed
// boundary only advances to the end of the last window actually emitted.
func (l *Lane) FlushDue(now time.Time) []models.Candle {
	return l.popDue(now.UnixMilli() - l.latenessMs)
}

// Drain closes every open window regardless of the watermark.
func (l *Lane) Drain() []models.Candle {
	if len(l.open) == 0 {
		return nil
	}
	out := make([]models.Candle, 0, len(l.open))
	for _, w := range l.open {
		out = append(out, l.candle(w))
	}
	last := l.open[len(l.open)-1]
	l.closedThrough = last.start + l.durationMs
	l.open = l.open[:0]
	return out
}

// closeThrough advances the event-time watermark.
func (l *Lane) closeThrough(watermark int64) []models.Candle {
	out := l.popDue(watermark)
	if wm := models.WindowStart(watermark, l.durationMs); wm > l.closedThrough {
		l.closedThrough = wm
	}
	return out
}

func (l *Lane) popDue(watermark int64) []models.Candle {
	var out []models.Candle
	for len(l.open) > 0 && l.open[0].start+l.durationMs <= watermark {
		w := l.open[0]
		out = append(out, l.candle(w))
		if end := w.start + l.durationMs; end > l.closedThrough {
			l.closedThrough = end
		}
		l.open[0] = nil
		l.open = l.open[1:]
	}
	return out
}

func (l *Lane) candle(w *window) models.Candle {
	return models.Candle{
		Pair:            l.pair,
		Open:            w.first.price,
		High:            w.high,
		Low:             w.low,
		Close:           w.last.price,
		Volume:          w.volume,
		WindowStartMs:   w.start,
		WindowEndMs:     w.start + l.durationMs,
		DurationSeconds: int(l.durationMs / 1000),
	}
}
