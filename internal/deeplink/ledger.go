package deeplink

import (
	"sync"
	"time"
)

const (
	// primaryDedupWindow absorbs OS-level duplicate delivery of the same
	// cold/warm-start URL event.
	primaryDedupWindow = 5000 * time.Millisecond

	// nativeEventDedupWindow absorbs near-simultaneous dual emission from the
	// two native notification channels for the same link click. It is shorter
	// than the primary window so a genuinely new enrichment event arriving
	// seconds later is not over-suppressed.
	nativeEventDedupWindow = 2000 * time.Millisecond

	// retentionHorizon bounds how long a processed URL stays in the ledger.
	// Entries past the horizon are swept lazily on the primary path.
	retentionHorizon = time.Hour
)

// ledger tracks which URLs have been processed recently and which are
// currently in flight. It lives for the process lifetime and is never
// persisted.
type ledger struct {
	mu        sync.Mutex
	now       func() time.Time
	processed map[string]time.Time
	pending   map[string]struct{}
}

func newLedger(now func() time.Time) *ledger {
	if now == nil {
		now = time.Now
	}
	return &ledger{
		now:       now,
		processed: map[string]time.Time{},
		pending:   map[string]struct{}{},
	}
}

// admitPrimary decides whether a cold/warm-start URL proceeds to processing.
// Admitted URLs are marked processed and enter the in-flight set. Each call
// also sweeps entries older than the retention horizon.
func (l *ledger) admitPrimary(url string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
	if at, ok := l.processed[url]; ok && now.Sub(at) < primaryDedupWindow {
		return false
	}
	l.processed[url] = now
	l.pending[url] = struct{}{}
	return true
}

// admitNativeEvent decides whether a push-event record proceeds. A URL the
// primary path is already handling is suppressed outright; otherwise the
// shorter native-event window applies. Records without a URL cannot be keyed
// and are always admitted (the last-delivered equality check still guards
// them).
func (l *ledger) admitNativeEvent(url string) bool {
	if url == "" {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, inFlight := l.pending[url]; inFlight {
		return false
	}
	if at, ok := l.processed[url]; ok && now.Sub(at) < nativeEventDedupWindow {
		return false
	}
	l.processed[url] = now
	return true
}

// markPending re-enters a URL into the in-flight set, refreshing its
// processed timestamp. Used when a stashed URL is replayed after
// configuration completes.
func (l *ledger) markPending(url string) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processed[url] = now
	l.pending[url] = struct{}{}
}

func (l *ledger) releasePending(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, url)
}

func (l *ledger) sweepLocked(now time.Time) {
	for url, at := range l.processed {
		if now.Sub(at) >= retentionHorizon {
			delete(l.processed, url)
		}
	}
}
