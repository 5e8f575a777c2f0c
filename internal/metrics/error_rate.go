package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory classifies errors for windowed rate tracking.
type ErrorCategory string

const (
	ErrorCategoryDatabase   ErrorCategory = "database"
	ErrorCategoryHTTP       ErrorCategory = "http"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryExternal   ErrorCategory = "external"
	ErrorCategoryInternal   ErrorCategory = "internal"
	ErrorCategoryRateLimit  ErrorCategory = "rate_limit"
)

// ErrorRateConfig configures the tracker.
type ErrorRateConfig struct {
	// Window is the span over which rates are computed.
	Window time.Duration

	// Buckets subdivides the window; more buckets give finer expiry.
	Buckets int

	// AlertAbove is the errors-per-second rate that triggers OnAlert.
	AlertAbove float64

	// OnAlert fires when a category's rate crosses AlertAbove.
	OnAlert func(category ErrorCategory, rate float64)
}

// DefaultErrorRateConfig returns a one-minute window with per-second buckets.
func DefaultErrorRateConfig() ErrorRateConfig {
	return ErrorRateConfig{
		Window:     time.Minute,
		Buckets:    60,
		AlertAbove: 10,
	}
}

// ErrorRateTracker counts recent errors per category over a sliding
// time window.
type ErrorRateTracker struct {
	cfg ErrorRateConfig

	mu      sync.RWMutex
	windows map[ErrorCategory]*slidingWindow

	errors   atomic.Int64
	requests atomic.Int64
}

// NewErrorRateTracker creates a tracker; zero config fields get defaults.
func NewErrorRateTracker(cfg ErrorRateConfig) *ErrorRateTracker {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = 60
	}
	return &ErrorRateTracker{
		cfg:     cfg,
		windows: make(map[ErrorCategory]*slidingWindow),
	}
}

// RecordRequest counts a request, the denominator for error ratios.
func (t *ErrorRateTracker) RecordRequest() {
	t.requests.Add(1)
}

// RecordError counts an error against its category and fires the alert
// callback when the windowed rate crosses the threshold.
func (t *ErrorRateTracker) RecordError(category ErrorCategory) {
	t.errors.Add(1)
	t.window(category).add(time.Now())

	if t.cfg.OnAlert != nil {
		if rate := t.Rate(category); rate > t.cfg.AlertAbove {
			t.cfg.OnAlert(category, rate)
		}
	}
}

// Count returns the number of errors in the current window.
func (t *ErrorRateTracker) Count(category ErrorCategory) int64 {
	t.mu.RLock()
	w, ok := t.windows[category]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return w.total(time.Now())
}

// Rate returns errors per second over the window.
func (t *ErrorRateTracker) Rate(category ErrorCategory) float64 {
	return float64(t.Count(category)) / t.cfg.Window.Seconds()
}

func (t *ErrorRateTracker) window(category ErrorCategory) *slidingWindow {
	t.mu.RLock()
	w, ok := t.windows[category]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.windows[category]; ok {
		return w
	}
	w = newSlidingWindow(t.cfg.Window, t.cfg.Buckets)
	t.windows[category] = w
	return w
}

// slidingWindow is a ring of time-slotted counters. Each bucket holds
// the slot it was last written in; stale buckets are skipped on read
// and reset on write, so nothing needs a background sweeper.
type slidingWindow struct {
	mu        sync.Mutex
	bucketDur time.Duration
	slots     []int64
	counts    []int64
}

func newSlidingWindow(window time.Duration, buckets int) *slidingWindow {
	return &slidingWindow{
		bucketDur: window / time.Duration(buckets),
		slots:     make([]int64, buckets),
		counts:    make([]int64, buckets),
	}
}

func (w *slidingWindow) add(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot := now.UnixNano() / int64(w.bucketDur)
	i := int(slot % int64(len(w.counts)))
	if w.slots[i] != slot {
		w.slots[i] = slot
		w.counts[i] = 0
	}
	w.counts[i]++
}

func (w *slidingWindow) total(now time.Time) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot := now.UnixNano() / int64(w.bucketDur)
	oldest := slot - int64(len(w.counts)) + 1

	var sum int64
	for i, s := range w.slots {
		if s >= oldest && s <= slot {
			sum += w.counts[i]
		}
	}
	return sum
}
