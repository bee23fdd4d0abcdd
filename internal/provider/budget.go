package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
)

const (
	minuteWindow = 60 * time.Second
	dayWindow    = 24 * time.Hour

	// minCooldown is the floor for the cooldown opened after a provider
	// rate-limit signal
	minCooldown = 60 * time.Second
)

// window tracks one rolling budget window. The window is measured from
// the first call in it, not from a fixed clock boundary.
type window struct {
	start time.Time
	count int
	limit int
	span  time.Duration
}

// roll resets the window if it has elapsed
func (w *window) roll(now time.Time) {
	if !w.start.IsZero() && now.Sub(w.start) >= w.span {
		w.start = time.Time{}
		w.count = 0
	}
}

// charge counts one call attempt against the window
func (w *window) charge(now time.Time) {
	if w.start.IsZero() {
		w.start = now
	}
	w.count++
}

func (w *window) exhausted() bool {
	return w.count >= w.limit
}

// Budget enforces per-minute and per-day provider call budgets.
// ⭐ SSOT: all provider budget accounting happens in this struct.
// Process-wide shared state, mutated under a single lock; there is no
// cross-process coordination.
type Budget struct {
	mu            sync.Mutex
	minute        window
	day           window
	cooldown      time.Duration
	cooldownUntil time.Time

	now func() time.Time // injectable for tests
}

// NewBudget creates a budget with the configured default limits
func NewBudget(minuteLimit, dayLimit int, cooldown time.Duration) *Budget {
	if cooldown < minCooldown {
		cooldown = minCooldown
	}
	return &Budget{
		minute:   window{limit: minuteLimit, span: minuteWindow},
		day:      window{limit: dayLimit, span: dayWindow},
		cooldown: cooldown,
		now:      time.Now,
	}
}

// TryAcquire admits or refuses one provider call. On admission both
// counters are charged immediately, so a failed call still counts
// against the budget and cannot be hot-retried for free.
func (b *Budget) TryAcquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if now.Before(b.cooldownUntil) {
		return fmt.Errorf("%w: cooling down until %s", ErrRateLimited, b.cooldownUntil.Format(time.RFC3339))
	}

	b.minute.roll(now)
	b.day.roll(now)

	if b.minute.exhausted() {
		return fmt.Errorf("%w: minute budget exhausted (%d/%d)", ErrRateLimited, b.minute.count, b.minute.limit)
	}
	if b.day.exhausted() {
		return fmt.Errorf("%w: day budget exhausted (%d/%d)", ErrRateLimited, b.day.count, b.day.limit)
	}

	b.minute.charge(now)
	b.day.charge(now)
	return nil
}

// ReportProviderLimit is called when the provider's response body
// signals a limit. Parsed limits become the new permanent ceilings, the
// minute counter saturates to force local throttling, and a cooldown
// opens.
func (b *Budget) ReportProviderLimit(minuteLimit, dayLimit int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if minuteLimit > 0 && minuteLimit < b.minute.limit {
		b.minute.limit = minuteLimit
	}
	if dayLimit > 0 && dayLimit < b.day.limit {
		b.day.limit = dayLimit
	}

	// Saturate the minute counter
	if b.minute.start.IsZero() {
		b.minute.start = now
	}
	b.minute.count = b.minute.limit

	b.cooldownUntil = now.Add(b.cooldown)
}

// Limits returns the current (possibly lowered) ceilings
func (b *Budget) Limits() (minute, day int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minute.limit, b.day.limit
}

var (
	perMinuteRe = regexp.MustCompile(`(\d+)\s+(?:requests|calls)\s+per\s+minute`)
	perDayRe    = regexp.MustCompile(`(\d+)\s+(?:requests|calls)\s+per\s+day`)
)

// ParseLimitText pattern-matches provider free-text error/informational
// fields for stated limits. Returns 0 for limits the text does not
// state; limited is true when the text mentions either phrase.
func ParseLimitText(text string) (minuteLimit, dayLimit int, limited bool) {
	if m := perMinuteRe.FindStringSubmatch(text); m != nil {
		minuteLimit, _ = strconv.Atoi(m[1])
		limited = true
	}
	if m := perDayRe.FindStringSubmatch(text); m != nil {
		dayLimit, _ = strconv.Atoi(m[1])
		limited = true
	}
	return minuteLimit, dayLimit, limited
}
