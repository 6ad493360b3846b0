package linkzly

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarenTech/linkzly-go/internal/nativebridge"
)

type fakeBridge struct {
	mu             sync.Mutex
	configureErr   error
	initialURL     string
	initialCalls   int
	handleResult   *nativebridge.LinkResult
	handleErr      error
	trackOpenCalls int
	batchSizeCalls int
	debuggable     bool
	events         chan nativebridge.PushEvent
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{events: make(chan nativebridge.PushEvent, 8)}
}

func (b *fakeBridge) Configure(ctx context.Context, sdkKey string, env nativebridge.Environment) error {
	return b.configureErr
}

func (b *fakeBridge) InitialURL(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialCalls++
	return b.initialURL, nil
}

func (b *fakeBridge) HandleLink(ctx context.Context, url string) (*nativebridge.LinkResult, error) {
	return b.handleResult, b.handleErr
}

func (b *fakeBridge) TrackInstall(ctx context.Context) (*nativebridge.LinkResult, error) {
	return nil, nil
}

func (b *fakeBridge) TrackOpen(ctx context.Context) (*nativebridge.LinkResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackOpenCalls++
	return nil, nil
}

func (b *fakeBridge) TrackEvent(ctx context.Context, name string, params map[string]any) error {
	return nil
}

func (b *fakeBridge) TrackPurchase(ctx context.Context, params map[string]any) error { return nil }

func (b *fakeBridge) TrackEventBatch(ctx context.Context, events []nativebridge.TrackedEvent) error {
	return nil
}

func (b *fakeBridge) UserID(ctx context.Context) (string, error)      { return "", nil }
func (b *fakeBridge) SetUserID(ctx context.Context, id string) error  { return nil }
func (b *fakeBridge) VisitorID(ctx context.Context) (string, error)   { return "vis_1", nil }
func (b *fakeBridge) ResetVisitorID(ctx context.Context) (string, error) {
	return "vis_2", nil
}

func (b *fakeBridge) TrackingEnabled(ctx context.Context) (bool, error)      { return true, nil }
func (b *fakeBridge) SetTrackingEnabled(ctx context.Context, v bool) error   { return nil }
func (b *fakeBridge) AdvertisingTrackingEnabled(ctx context.Context) (bool, error) {
	return false, nil
}
func (b *fakeBridge) SetAdvertisingTrackingEnabled(ctx context.Context, v bool) error { return nil }

func (b *fakeBridge) UpdateConversionValue(ctx context.Context, value int) error {
	return &nativebridge.BridgeError{Code: nativebridge.CodeNotSupported}
}

func (b *fakeBridge) RequestTrackingPermission(ctx context.Context) (string, error) {
	return "", &nativebridge.BridgeError{Code: nativebridge.CodeNotSupported}
}

func (b *fakeBridge) IDFA(ctx context.Context) (string, error) {
	return "", &nativebridge.BridgeError{Code: nativebridge.CodeNotSupported}
}

func (b *fakeBridge) TrackingAuthorizationStatus(ctx context.Context) (string, error) {
	return "", &nativebridge.BridgeError{Code: nativebridge.CodeNotSupported}
}

func (b *fakeBridge) StartSession(ctx context.Context) error { return nil }
func (b *fakeBridge) EndSession(ctx context.Context) error   { return nil }
func (b *fakeBridge) Flush(ctx context.Context) error        { return nil }
func (b *fakeBridge) PendingEventCount(ctx context.Context) (int, error) {
	return 0, nil
}

func (b *fakeBridge) Debuggable(ctx context.Context) (bool, error) {
	return b.debuggable, nil
}

func (b *fakeBridge) SetBatchSizeDebug(ctx context.Context, size int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchSizeCalls++
	return nil
}

func (b *fakeBridge) SetFlushIntervalDebug(ctx context.Context, interval time.Duration) error {
	return nil
}

func (b *fakeBridge) Events(ctx context.Context) (<-chan nativebridge.PushEvent, error) {
	return b.events, nil
}

func (b *fakeBridge) Close() error { return nil }

func newTestClient(t *testing.T, bridge nativebridge.Bridge, opts Options) *Client {
	t.Helper()
	opts.Bridge = bridge
	client, err := New(opts)
	require.NoError(t, err)
	return client
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, nativebridge.ErrNotConfigured)
}

func TestConfigureRunsAutoFlows(t *testing.T) {
	bridge := newFakeBridge()
	bridge.initialURL = "myapp://products?product_id=1&slid=abc"
	client := newTestClient(t, bridge, Options{})
	defer client.Close()

	var got []DeepLinkData
	client.AddDeepLinkListener(func(d DeepLinkData) { got = append(got, d) })

	require.NoError(t, client.Configure(context.Background(), "key_123", EnvironmentSandbox))

	require.Len(t, got, 1)
	assert.Equal(t, "/products", got[0].Path)
	assert.Equal(t, "abc", got[0].SmartLinkID)
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	assert.Equal(t, 1, bridge.trackOpenCalls)
	assert.Equal(t, 1, bridge.initialCalls)
}

func TestRejectedConfigureSkipsAutoFlows(t *testing.T) {
	bridge := newFakeBridge()
	bridge.configureErr = &nativebridge.BridgeError{Code: nativebridge.CodeConfigError, Message: "bad key"}
	client := newTestClient(t, bridge, Options{})

	err := client.Configure(context.Background(), "key_bad", EnvironmentProduction)
	assert.ErrorIs(t, err, nativebridge.ErrConfig)

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	assert.Zero(t, bridge.trackOpenCalls)
	assert.Zero(t, bridge.initialCalls)
}

func TestAutoOptionsDisabled(t *testing.T) {
	bridge := newFakeBridge()
	bridge.initialURL = "myapp://home"
	client := newTestClient(t, bridge, Options{
		AutoHandleDeepLinks: Bool(false),
		AutoTrackAppOpens:   Bool(false),
	})
	defer client.Close()

	require.NoError(t, client.Configure(context.Background(), "key_123", EnvironmentSandbox))
	assert.False(t, client.IsAutoHandleDeepLinksEnabled())
	bridge.mu.Lock()
	assert.Zero(t, bridge.trackOpenCalls)
	assert.Zero(t, bridge.initialCalls)
	bridge.mu.Unlock()

	// Enabling afterwards consumes the cold-start URL exactly once.
	client.SetAutoHandleDeepLinks(true)
	client.SetAutoHandleDeepLinks(true)
	bridge.mu.Lock()
	assert.Equal(t, 1, bridge.initialCalls)
	bridge.mu.Unlock()
}

func TestHandleDeepLinkMergesNativeResult(t *testing.T) {
	bridge := newFakeBridge()
	bridge.handleResult = &nativebridge.LinkResult{
		SmartLinkID: "s1",
		Parameters:  map[string]string{"campaign": "summer"},
	}
	client := newTestClient(t, bridge, Options{AutoTrackAppOpens: Bool(false), AutoHandleDeepLinks: Bool(false)})
	defer client.Close()
	require.NoError(t, client.Configure(context.Background(), "key_123", EnvironmentSandbox))

	var got []DeepLinkData
	client.AddDeepLinkListener(func(d DeepLinkData) { got = append(got, d) })
	require.NoError(t, client.HandleDeepLink(context.Background(), "https://x.link/sale?product_id=9"))

	require.Len(t, got, 1)
	assert.Equal(t, "/sale", got[0].Path)
	assert.Equal(t, "s1", got[0].SmartLinkID)
	assert.Equal(t, map[string]string{"product_id": "9", "campaign": "summer"}, got[0].Parameters)
}

func TestHandleDeepLinkRejectsEmptyURL(t *testing.T) {
	bridge := newFakeBridge()
	client := newTestClient(t, bridge, Options{AutoTrackAppOpens: Bool(false), AutoHandleDeepLinks: Bool(false)})
	defer client.Close()
	require.NoError(t, client.Configure(context.Background(), "key_123", EnvironmentSandbox))

	err := client.HandleDeepLink(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	var bridgeErr *BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, CodeInvalidInput, bridgeErr.Code)
}

func TestPushEventsReachListeners(t *testing.T) {
	bridge := newFakeBridge()
	client := newTestClient(t, bridge, Options{AutoTrackAppOpens: Bool(false), AutoHandleDeepLinks: Bool(false)})
	defer client.Close()
	require.NoError(t, client.Configure(context.Background(), "key_123", EnvironmentSandbox))

	received := make(chan DeepLinkData, 4)
	client.AddDeepLinkListener(func(d DeepLinkData) { received <- d })

	bridge.events <- nativebridge.PushEvent{
		Channel: nativebridge.ChannelAttributionEnriched,
		Attribution: &nativebridge.LinkResult{
			URL:         "https://x.link/deferred",
			Path:        "/deferred",
			SmartLinkID: "s7",
		},
	}

	select {
	case got := <-received:
		assert.Equal(t, "/deferred", got.Path)
		assert.Equal(t, "s7", got.SmartLinkID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for push event delivery")
	}
}

func TestDebugMethodsGated(t *testing.T) {
	bridge := newFakeBridge()
	client := newTestClient(t, bridge, Options{AutoTrackAppOpens: Bool(false), AutoHandleDeepLinks: Bool(false)})
	defer client.Close()

	err := client.SetBatchSizeDebug(context.Background(), 50)
	assert.ErrorIs(t, err, nativebridge.ErrDebugOnly)
	assert.ErrorIs(t, client.SetFlushIntervalDebug(context.Background(), time.Minute), nativebridge.ErrDebugOnly)

	bridge.debuggable = true
	require.NoError(t, client.SetBatchSizeDebug(context.Background(), 50))
	bridge.mu.Lock()
	assert.Equal(t, 1, bridge.batchSizeCalls)
	bridge.mu.Unlock()
}

func TestPlatformConditionalSentinels(t *testing.T) {
	bridge := newFakeBridge()
	client := newTestClient(t, bridge, Options{AutoTrackAppOpens: Bool(false), AutoHandleDeepLinks: Bool(false)})
	defer client.Close()

	idfa, err := client.IDFA(context.Background())
	require.NoError(t, err)
	assert.Empty(t, idfa)

	status, err := client.RequestTrackingPermission(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status)

	assert.NoError(t, client.UpdateConversionValue(context.Background(), 12))
}

func TestListenerErrorsDoNotPropagate(t *testing.T) {
	bridge := newFakeBridge()
	client := newTestClient(t, bridge, Options{AutoTrackAppOpens: Bool(false), AutoHandleDeepLinks: Bool(false)})
	defer client.Close()
	require.NoError(t, client.Configure(context.Background(), "key_123", EnvironmentSandbox))

	var got []DeepLinkData
	client.AddDeepLinkListener(func(DeepLinkData) { panic("broken listener") })
	client.AddDeepLinkListener(func(d DeepLinkData) { got = append(got, d) })

	require.NoError(t, client.HandleDeepLink(context.Background(), "https://x.link/a"))
	assert.Len(t, got, 1)
}
