package ws

import "time"

// rateWindow is a fixed-window counter. Not safe for concurrent use; each
// connection's reader owns one.
type rateWindow struct {
	max    int
	window time.Duration

	start time.Time
	n     int
}

func newRateWindow(max int, window time.Duration) *rateWindow {
	return &rateWindow{max: max, window: window}
}

func (w *rateWindow) allow(now time.Time) bool {
	if w.start.IsZero() || now.Sub(w.start) >= w.window {
		w.start = now
		w.n = 0
	}
	if w.n >= w.max {
		return false
	}
	w.n++
	return true
}
