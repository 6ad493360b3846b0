package deeplink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Bus topics carrying native push events into the engine. The transport
// layer publishes on them; the engine subscribes while listeners are
// registered.
const (
	TopicLinkCaptured        = "linkzly:link.captured"
	TopicAttributionEnriched = "linkzly:attribution.enriched"
)

// attributionTimeout is reserved for a client-side wait on backend
// attribution. Enrichment arrives over the attribution-enriched channel, so
// the pipeline never blocks on it.
const attributionTimeout = 10 * time.Second

var ErrInvalidInput = errors.New("invalid input")

// LinkCapturedEvent is the payload published on TopicLinkCaptured.
type LinkCapturedEvent struct {
	URL        string
	Path       string
	Parameters map[string]string
}

// LinkResolver is the slice of the native boundary the engine depends on:
// hand a URL to the native layer and get back a richer record, or nil when
// the native layer has nothing to add.
type LinkResolver interface {
	HandleLink(ctx context.Context, url string) (*Record, error)
}

// Listener receives deduplicated deep-link records. Each invocation gets its
// own copy of the record.
type Listener func(Record)

type notifyOrigin int

const (
	originPrimary notifyOrigin = iota
	originLinkCaptured
	originEnriched
)

type listenerEntry struct {
	id uint64
	fn Listener
}

// busFrame is one push event queued from a bus handler to the engine's
// worker. Exactly one field is set.
type busFrame struct {
	captured *LinkCapturedEvent
	enriched *Record
}

type EngineOptions struct {
	Resolver LinkResolver
	Bus      evbus.Bus
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine owns the deep-link ingestion pipeline: dedup ledger, parse, native
// resolution, merge, and listener fan-out. One instance per SDK client; all
// shared state is private to it.
type Engine struct {
	resolver LinkResolver
	bus      evbus.Bus
	logger   *zap.Logger
	ledger   *ledger

	mu            sync.Mutex
	configured    bool
	stashedURL    string
	hasStashed    bool
	lastDelivered *Record
	deepLink      []listenerEntry
	universal     []listenerEntry
	nextID        uint64

	subMu           sync.Mutex
	capturedActive  bool
	enrichedActive  bool
	capturedHandler func(LinkCapturedEvent)
	enrichedHandler func(Record)

	frames    chan busFrame
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewEngine(opts EngineOptions) *Engine {
	bus := opts.Bus
	if bus == nil {
		bus = evbus.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		resolver: opts.Resolver,
		bus:      bus,
		logger:   logger,
		ledger:   newLedger(opts.Now),
		frames:   make(chan busFrame, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.capturedHandler = e.onLinkCaptured
	e.enrichedHandler = e.onAttributionEnriched
	go e.run()
	return e
}

// run delivers queued push frames on a dedicated goroutine. The bus invokes
// handlers while holding its dispatch lock, so listener callbacks must not
// execute inside them: a listener unsubscribing (or subscribing) from its
// own callback would re-enter the bus and deadlock. Handlers only enqueue;
// all fan-out happens here.
func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case frame := <-e.frames:
			switch {
			case frame.captured != nil:
				e.deliverCaptured(*frame.captured)
			case frame.enriched != nil:
				e.deliverEnriched(*frame.enriched)
			}
		}
	}
}

// Close stops the push-frame worker. Listener registrations and the primary
// ingestion path are unaffected.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

// Bus returns the event bus the engine listens on.
func (e *Engine) Bus() evbus.Bus {
	return e.bus
}

// HandleURL is the primary ingestion path for cold-start and warm-start
// URLs. Duplicates inside the primary dedup window are suppressed before any
// work happens. Before configuration completes the URL is stashed (a later
// URL overwrites an earlier stash) and replayed by MarkConfigured.
func (e *Engine) HandleURL(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidInput
	}
	if !e.ledger.admitPrimary(raw) {
		e.logger.Debug("duplicate url suppressed", zap.String("url", raw))
		return nil
	}
	e.mu.Lock()
	if !e.configured {
		e.stashedURL = raw
		e.hasStashed = true
		e.mu.Unlock()
		// A stashed URL is not actively in flight.
		e.ledger.releasePending(raw)
		e.logger.Debug("url stashed until configuration completes", zap.String("url", raw))
		return nil
	}
	e.mu.Unlock()
	e.process(ctx, raw)
	return nil
}

// MarkConfigured unblocks URL processing and replays the stashed URL, if
// any.
func (e *Engine) MarkConfigured(ctx context.Context) {
	e.mu.Lock()
	e.configured = true
	raw, ok := e.stashedURL, e.hasStashed
	e.stashedURL, e.hasStashed = "", false
	e.mu.Unlock()
	if ok {
		e.logger.Debug("replaying stashed url", zap.String("url", raw))
		e.process(ctx, raw)
	}
}

// process runs steps parse → native call → merge → notify for an admitted
// URL. Any failure past the local parse falls back to delivering the locally
// parsed record; a URL the user navigated to is never silently dropped.
func (e *Engine) process(ctx context.Context, raw string) {
	e.ledger.markPending(raw)
	defer e.ledger.releasePending(raw)

	immediate := ParseURL(raw)
	resolved, err := e.resolveLink(ctx, raw)
	if err != nil {
		e.logger.Warn("native link handling failed, delivering locally parsed record",
			zap.String("url", raw), zap.Error(err))
		e.notifyFrom(originPrimary, immediate)
		return
	}
	e.notifyFrom(originPrimary, Merge(immediate, resolved))
}

func (e *Engine) resolveLink(ctx context.Context, raw string) (rec *Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("native link handler panicked: %v", r)
		}
	}()
	if e.resolver == nil {
		return nil, nil
	}
	resolved, err := e.resolver.HandleLink(ctx, raw)
	if err != nil || resolved == nil {
		return nil, err
	}
	// An empty path must stay empty here so the merge keeps the locally
	// parsed one.
	hoisted := hoistAttribution(*resolved)
	return &hoisted, nil
}

// AddDeepLinkListener registers a listener for the deduplicated deep-link
// stream and returns its unsubscribe function. If a link was already
// delivered, the new listener immediately receives the cached record;
// already-registered listeners see nothing.
func (e *Engine) AddDeepLinkListener(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.deepLink = append(e.deepLink, listenerEntry{id: id, fn: fn})
	var cached *Record
	if e.lastDelivered != nil {
		c := e.lastDelivered.clone()
		cached = &c
	}
	e.mu.Unlock()
	e.reconcileSubscriptions()
	if cached != nil {
		e.invoke(fn, *cached)
	}
	return func() { e.removeListener(id) }
}

// AddUniversalLinkListener registers a listener for link-captured events
// only and returns its unsubscribe function.
func (e *Engine) AddUniversalLinkListener(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.universal = append(e.universal, listenerEntry{id: id, fn: fn})
	e.mu.Unlock()
	e.reconcileSubscriptions()
	return func() { e.removeListener(id) }
}

// RemoveAllListeners drops every registered listener and tears down the bus
// subscriptions. In-flight URL processing is not cancelled.
func (e *Engine) RemoveAllListeners() {
	e.mu.Lock()
	e.deepLink = nil
	e.universal = nil
	e.mu.Unlock()
	e.reconcileSubscriptions()
}

// CurrentLink returns a snapshot of the most recently delivered record.
func (e *Engine) CurrentLink() (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastDelivered == nil {
		return Record{}, false
	}
	return e.lastDelivered.clone(), true
}

func (e *Engine) removeListener(id uint64) {
	e.mu.Lock()
	e.deepLink = removeEntry(e.deepLink, id)
	e.universal = removeEntry(e.universal, id)
	e.mu.Unlock()
	e.reconcileSubscriptions()
}

func removeEntry(entries []listenerEntry, id uint64) []listenerEntry {
	for i, entry := range entries {
		if entry.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// reconcileSubscriptions aligns the bus subscriptions with the registered
// listeners: the first listener for a channel activates it, the last removal
// tears it down. Bus calls happen outside the engine mutex because the bus
// holds its own lock while dispatching to handlers.
func (e *Engine) reconcileSubscriptions() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	e.mu.Lock()
	wantCaptured := len(e.deepLink) > 0 || len(e.universal) > 0
	wantEnriched := len(e.deepLink) > 0
	e.mu.Unlock()

	if wantCaptured && !e.capturedActive {
		if err := e.bus.Subscribe(TopicLinkCaptured, e.capturedHandler); err != nil {
			e.logger.Error("subscribe link-captured channel failed", zap.Error(err))
		} else {
			e.capturedActive = true
		}
	} else if !wantCaptured && e.capturedActive {
		if err := e.bus.Unsubscribe(TopicLinkCaptured, e.capturedHandler); err != nil {
			e.logger.Error("unsubscribe link-captured channel failed", zap.Error(err))
		}
		e.capturedActive = false
	}

	if wantEnriched && !e.enrichedActive {
		if err := e.bus.Subscribe(TopicAttributionEnriched, e.enrichedHandler); err != nil {
			e.logger.Error("subscribe attribution-enriched channel failed", zap.Error(err))
		} else {
			e.enrichedActive = true
		}
	} else if !wantEnriched && e.enrichedActive {
		if err := e.bus.Unsubscribe(TopicAttributionEnriched, e.enrichedHandler); err != nil {
			e.logger.Error("unsubscribe attribution-enriched channel failed", zap.Error(err))
		}
		e.enrichedActive = false
	}
}

func (e *Engine) onLinkCaptured(ev LinkCapturedEvent) {
	select {
	case e.frames <- busFrame{captured: &ev}:
	case <-e.quit:
	}
}

func (e *Engine) onAttributionEnriched(rec Record) {
	select {
	case e.frames <- busFrame{enriched: &rec}:
	case <-e.quit:
	}
}

func (e *Engine) deliverCaptured(ev LinkCapturedEvent) {
	rec := hoistAttribution(Record{
		URL:        ev.URL,
		Path:       ev.Path,
		Parameters: ev.Parameters,
	})
	if rec.Path == "" {
		rec.Path = "/"
	}
	if !e.ledger.admitNativeEvent(rec.URL) {
		e.logger.Debug("link-captured event suppressed", zap.String("url", rec.URL))
		return
	}
	e.notifyFrom(originLinkCaptured, rec)
}

func (e *Engine) deliverEnriched(rec Record) {
	rec = hoistAttribution(rec)
	if rec.Path == "" {
		rec.Path = "/"
	}
	if !e.ledger.admitNativeEvent(rec.URL) {
		e.logger.Debug("attribution-enriched event suppressed", zap.String("url", rec.URL))
		return
	}
	e.notifyFrom(originEnriched, rec)
}

// notifyFrom delivers a record to listeners unless it is field-for-field
// identical to the last delivered one. This equality check is the final line
// of defense against duplicate delivery across channels.
func (e *Engine) notifyFrom(origin notifyOrigin, rec Record) {
	e.mu.Lock()
	if e.lastDelivered != nil && e.lastDelivered.Equal(rec) {
		e.mu.Unlock()
		e.logger.Debug("identical record suppressed at delivery", zap.String("url", rec.URL))
		return
	}
	stored := rec.clone()
	e.lastDelivered = &stored
	targets := make([]listenerEntry, 0, len(e.deepLink)+len(e.universal))
	targets = append(targets, e.deepLink...)
	if origin == originLinkCaptured {
		targets = append(targets, e.universal...)
	}
	e.mu.Unlock()

	for _, entry := range targets {
		e.invoke(entry.fn, rec)
	}
}

// invoke shields the engine and the remaining listeners from a panicking
// listener.
func (e *Engine) invoke(fn Listener, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("deep link listener panicked", zap.Any("panic", r))
		}
	}()
	fn(rec.clone())
}
