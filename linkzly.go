// Package linkzly is the Go SDK for the Linkzly attribution platform. It
// bridges an application to the Linkzly host service: pass-through calls for
// tracking, identity, privacy, and session management, plus a deep-link
// ingestion engine that deduplicates and merges link notifications arriving
// over multiple racing channels.
package linkzly

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarenTech/linkzly-go/internal/deeplink"
	"github.com/MarenTech/linkzly-go/internal/nativebridge"
)

// DeepLinkData is the deduplicated deep-link payload delivered to listeners.
type DeepLinkData = deeplink.Record

// Client is the application-facing SDK handle. Construct exactly one per
// process with New and share it; all deep-link state is owned by it.
type Client struct {
	bridge nativebridge.Bridge
	engine *deeplink.Engine
	logger *zap.Logger

	mu              sync.Mutex
	configured      bool
	autoHandle      bool
	autoTrackOpens  bool
	initialConsumed bool
	pumpCancel      context.CancelFunc
	pumpDone        chan struct{}
}

// New builds a Client. A bridge transport is required: either an injected
// Bridge or a DSN the transport registry can resolve.
func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bridge := opts.Bridge
	if bridge == nil {
		if opts.BridgeDSN == "" {
			return nil, &nativebridge.BridgeError{
				Code:    nativebridge.CodeNotConfigured,
				Message: "a bridge transport is required: set Options.Bridge or Options.BridgeDSN",
			}
		}
		var err error
		bridge, err = nativebridge.Connect(opts.BridgeDSN)
		if err != nil {
			return nil, err
		}
	}
	c := &Client{
		bridge:         bridge,
		logger:         logger,
		autoHandle:     boolOption(opts.AutoHandleDeepLinks, true),
		autoTrackOpens: boolOption(opts.AutoTrackAppOpens, true),
	}
	c.engine = deeplink.NewEngine(deeplink.EngineOptions{
		Resolver: &bridgeResolver{bridge: bridge},
		Logger:   logger,
	})
	return c, nil
}

// Configure initializes the native layer. On success it replays any stashed
// deep link, starts the push-event pump, consumes the cold-start URL when
// auto-handling is enabled, and fires the automatic open track. A rejected
// configure performs none of those.
func (c *Client) Configure(ctx context.Context, sdkKey string, env Environment) error {
	if err := c.bridge.Configure(ctx, sdkKey, env); err != nil {
		return err
	}
	c.mu.Lock()
	c.configured = true
	autoHandle, autoTrack := c.autoHandle, c.autoTrackOpens
	c.mu.Unlock()

	c.engine.MarkConfigured(ctx)
	c.startEventPump()
	if autoHandle {
		c.consumeInitialURL(ctx)
	}
	if autoTrack {
		if _, err := c.bridge.TrackOpen(ctx); err != nil {
			c.logger.Warn("automatic open tracking failed", zap.Error(err))
		}
	}
	return nil
}

// HandleDeepLink feeds a warm-start URL into the ingestion pipeline. It
// returns an error only for empty input; processing failures degrade to a
// fallback notification rather than propagating.
func (c *Client) HandleDeepLink(ctx context.Context, url string) error {
	if err := c.engine.HandleURL(ctx, url); err != nil {
		if errors.Is(err, deeplink.ErrInvalidInput) {
			return &nativebridge.BridgeError{
				Code:    nativebridge.CodeInvalidInput,
				Message: "deep link url is empty",
			}
		}
		return err
	}
	return nil
}

// AddDeepLinkListener registers fn for the deduplicated deep-link stream and
// returns its unsubscribe function. If a link was already delivered, fn is
// immediately invoked once with the cached record.
func (c *Client) AddDeepLinkListener(fn func(DeepLinkData)) func() {
	return c.engine.AddDeepLinkListener(fn)
}

// AddUniversalLinkListener registers fn for native link-captured events only.
func (c *Client) AddUniversalLinkListener(fn func(DeepLinkData)) func() {
	return c.engine.AddUniversalLinkListener(fn)
}

// RemoveAllListeners drops every registered listener.
func (c *Client) RemoveAllListeners() {
	c.engine.RemoveAllListeners()
}

// CurrentDeepLink reports the most recently delivered record, if any.
func (c *Client) CurrentDeepLink() (DeepLinkData, bool) {
	return c.engine.CurrentLink()
}

// SetAutoHandleDeepLinks toggles automatic deep-link handling. Enabling it
// after configuration consumes the cold-start URL if that has not happened
// yet.
func (c *Client) SetAutoHandleDeepLinks(enabled bool) {
	c.mu.Lock()
	c.autoHandle = enabled
	configured := c.configured
	c.mu.Unlock()
	if enabled && configured {
		c.consumeInitialURL(context.Background())
	}
}

func (c *Client) IsAutoHandleDeepLinksEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoHandle
}

func (c *Client) TrackInstall(ctx context.Context) (*DeepLinkData, error) {
	result, err := c.bridge.TrackInstall(ctx)
	if err != nil {
		return nil, err
	}
	return recordPtrFromResult(result), nil
}

func (c *Client) TrackOpen(ctx context.Context) (*DeepLinkData, error) {
	result, err := c.bridge.TrackOpen(ctx)
	if err != nil {
		return nil, err
	}
	return recordPtrFromResult(result), nil
}

func (c *Client) TrackEvent(ctx context.Context, name string, params map[string]any) error {
	return c.bridge.TrackEvent(ctx, name, params)
}

func (c *Client) TrackPurchase(ctx context.Context, params map[string]any) error {
	return c.bridge.TrackPurchase(ctx, params)
}

func (c *Client) TrackEventBatch(ctx context.Context, events []TrackedEvent) error {
	return c.bridge.TrackEventBatch(ctx, events)
}

func (c *Client) UserID(ctx context.Context) (string, error) {
	return c.bridge.UserID(ctx)
}

func (c *Client) SetUserID(ctx context.Context, id string) error {
	return c.bridge.SetUserID(ctx, id)
}

func (c *Client) VisitorID(ctx context.Context) (string, error) {
	return c.bridge.VisitorID(ctx)
}

func (c *Client) ResetVisitorID(ctx context.Context) (string, error) {
	return c.bridge.ResetVisitorID(ctx)
}

func (c *Client) TrackingEnabled(ctx context.Context) (bool, error) {
	return c.bridge.TrackingEnabled(ctx)
}

func (c *Client) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	return c.bridge.SetTrackingEnabled(ctx, enabled)
}

func (c *Client) AdvertisingTrackingEnabled(ctx context.Context) (bool, error) {
	return c.bridge.AdvertisingTrackingEnabled(ctx)
}

func (c *Client) SetAdvertisingTrackingEnabled(ctx context.Context, enabled bool) error {
	return c.bridge.SetAdvertisingTrackingEnabled(ctx, enabled)
}

// UpdateConversionValue is an iOS-only call; on other platforms it resolves
// as a no-op.
func (c *Client) UpdateConversionValue(ctx context.Context, value int) error {
	err := c.bridge.UpdateConversionValue(ctx, value)
	if errors.Is(err, nativebridge.ErrNotSupported) {
		return nil
	}
	return err
}

// RequestTrackingPermission is an iOS-only call; on other platforms it
// resolves with an empty status.
func (c *Client) RequestTrackingPermission(ctx context.Context) (string, error) {
	status, err := c.bridge.RequestTrackingPermission(ctx)
	if errors.Is(err, nativebridge.ErrNotSupported) {
		return "", nil
	}
	return status, err
}

// IDFA is an iOS-only getter; on other platforms it resolves empty.
func (c *Client) IDFA(ctx context.Context) (string, error) {
	idfa, err := c.bridge.IDFA(ctx)
	if errors.Is(err, nativebridge.ErrNotSupported) {
		return "", nil
	}
	return idfa, err
}

// TrackingAuthorizationStatus is an iOS-only getter; on other platforms it
// resolves empty.
func (c *Client) TrackingAuthorizationStatus(ctx context.Context) (string, error) {
	status, err := c.bridge.TrackingAuthorizationStatus(ctx)
	if errors.Is(err, nativebridge.ErrNotSupported) {
		return "", nil
	}
	return status, err
}

func (c *Client) StartSession(ctx context.Context) error {
	return c.bridge.StartSession(ctx)
}

func (c *Client) EndSession(ctx context.Context) error {
	return c.bridge.EndSession(ctx)
}

func (c *Client) Flush(ctx context.Context) error {
	return c.bridge.Flush(ctx)
}

func (c *Client) PendingEventCount(ctx context.Context) (int, error) {
	return c.bridge.PendingEventCount(ctx)
}

// SetBatchSizeDebug overrides the native batching size. Rejected with a
// DEBUG_ONLY error unless the build is debuggable.
func (c *Client) SetBatchSizeDebug(ctx context.Context, size int) error {
	if err := c.requireDebuggable(ctx); err != nil {
		return err
	}
	return c.bridge.SetBatchSizeDebug(ctx, size)
}

// SetFlushIntervalDebug overrides the native flush interval. Rejected with a
// DEBUG_ONLY error unless the build is debuggable.
func (c *Client) SetFlushIntervalDebug(ctx context.Context, interval time.Duration) error {
	if err := c.requireDebuggable(ctx); err != nil {
		return err
	}
	return c.bridge.SetFlushIntervalDebug(ctx, interval)
}

// Close stops the push-event pump and releases the bridge. In-flight URL
// processing runs to completion.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.pumpCancel, c.pumpDone
	c.pumpCancel, c.pumpDone = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	c.engine.Close()
	return c.bridge.Close()
}

func (c *Client) requireDebuggable(ctx context.Context) error {
	debuggable, err := c.bridge.Debuggable(ctx)
	if err != nil {
		return err
	}
	if !debuggable {
		return &nativebridge.BridgeError{
			Code:    nativebridge.CodeDebugOnly,
			Message: "debug batching overrides require a debuggable build",
		}
	}
	return nil
}

func (c *Client) consumeInitialURL(ctx context.Context) {
	c.mu.Lock()
	if c.initialConsumed || !c.configured {
		c.mu.Unlock()
		return
	}
	c.initialConsumed = true
	c.mu.Unlock()

	initial, err := c.bridge.InitialURL(ctx)
	if err != nil {
		c.logger.Warn("cold-start url fetch failed", zap.Error(err))
		return
	}
	if initial == "" {
		return
	}
	if err := c.engine.HandleURL(ctx, initial); err != nil {
		c.logger.Warn("cold-start url rejected", zap.String("url", initial), zap.Error(err))
	}
}

// startEventPump forwards push-stream frames onto the engine's bus topics.
// It runs from the first successful configure until Close.
func (c *Client) startEventPump() {
	c.mu.Lock()
	if c.pumpCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.pumpCancel = cancel
	c.pumpDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		events, err := c.bridge.Events(ctx)
		if err != nil {
			c.logger.Warn("push-event stream unavailable", zap.Error(err))
			return
		}
		bus := c.engine.Bus()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				switch event.Channel {
				case nativebridge.ChannelLinkCaptured:
					if event.LinkCaptured == nil {
						continue
					}
					bus.Publish(deeplink.TopicLinkCaptured, deeplink.LinkCapturedEvent{
						URL:        event.LinkCaptured.URL,
						Path:       event.LinkCaptured.Path,
						Parameters: event.LinkCaptured.Parameters,
					})
				case nativebridge.ChannelAttributionEnriched:
					if event.Attribution == nil {
						continue
					}
					bus.Publish(deeplink.TopicAttributionEnriched, recordFromResult(*event.Attribution))
				}
			}
		}
	}()
}

// bridgeResolver narrows the Bridge to the single call the engine needs.
type bridgeResolver struct {
	bridge nativebridge.Bridge
}

func (r *bridgeResolver) HandleLink(ctx context.Context, url string) (*deeplink.Record, error) {
	result, err := r.bridge.HandleLink(ctx, url)
	if err != nil || result == nil {
		return nil, err
	}
	rec := recordFromResult(*result)
	return &rec, nil
}

func recordFromResult(result nativebridge.LinkResult) deeplink.Record {
	params := make(map[string]string, len(result.Parameters))
	for k, v := range result.Parameters {
		params[k] = v
	}
	return deeplink.Record{
		URL:         result.URL,
		Path:        result.Path,
		Parameters:  params,
		SmartLinkID: result.SmartLinkID,
		ClickID:     result.ClickID,
	}
}

func recordPtrFromResult(result *nativebridge.LinkResult) *DeepLinkData {
	if result == nil {
		return nil
	}
	rec := recordFromResult(*result)
	return &rec
}
