package nativebridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HTTPBridgeOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
}

// HTTPBridge talks to the Linkzly host service over HTTP/JSON, with the push
// stream carried by a websocket (events.go).
type HTTPBridge struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger

	mu         sync.Mutex
	sdkKey     string
	configured bool
	closed     chan struct{}
	closeOnce  sync.Once
}

func NewHTTPBridge(opts HTTPBridgeOptions) *HTTPBridge {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:9123"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPBridge{
		baseURL:    baseURL,
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
		closed:     make(chan struct{}),
	}
}

func (b *HTTPBridge) Configure(ctx context.Context, sdkKey string, env Environment) error {
	sdkKey = strings.TrimSpace(sdkKey)
	if sdkKey == "" {
		return &BridgeError{Code: CodeInvalidInput, Message: "sdk key is required"}
	}
	if env == "" {
		env = EnvironmentProduction
	}
	body := map[string]string{"sdkKey": sdkKey, "environment": string(env)}
	if err := b.doJSON(ctx, http.MethodPost, "/v1/sdk/configure", body, nil); err != nil {
		return err
	}
	b.mu.Lock()
	b.sdkKey = sdkKey
	b.configured = true
	b.mu.Unlock()
	return nil
}

func (b *HTTPBridge) InitialURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := b.doJSON(ctx, http.MethodGet, "/v1/links/initial", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (b *HTTPBridge) HandleLink(ctx context.Context, url string) (*LinkResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, &BridgeError{Code: CodeInvalidInput, Message: "url is required"}
	}
	var out struct {
		Link *LinkResult `json:"link"`
	}
	if err := b.doJSON(ctx, http.MethodPost, "/v1/links/handle", map[string]string{"url": url}, &out); err != nil {
		return nil, err
	}
	return out.Link, nil
}

func (b *HTTPBridge) TrackInstall(ctx context.Context) (*LinkResult, error) {
	return b.trackLifecycle(ctx, "/v1/events/install")
}

func (b *HTTPBridge) TrackOpen(ctx context.Context) (*LinkResult, error) {
	return b.trackLifecycle(ctx, "/v1/events/open")
}

func (b *HTTPBridge) trackLifecycle(ctx context.Context, path string) (*LinkResult, error) {
	var out struct {
		Link *LinkResult `json:"link"`
	}
	if err := b.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Link, nil
}

func (b *HTTPBridge) TrackEvent(ctx context.Context, name string, params map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &BridgeError{Code: CodeInvalidInput, Message: "event name is required"}
	}
	body := map[string]any{"name": name}
	if len(params) > 0 {
		body["params"] = params
	}
	return b.doJSON(ctx, http.MethodPost, "/v1/events/track", body, nil)
}

func (b *HTTPBridge) TrackPurchase(ctx context.Context, params map[string]any) error {
	return b.doJSON(ctx, http.MethodPost, "/v1/events/purchase", map[string]any{"params": params}, nil)
}

func (b *HTTPBridge) TrackEventBatch(ctx context.Context, events []TrackedEvent) error {
	if len(events) == 0 {
		return &BridgeError{Code: CodeInvalidInput, Message: "event batch is empty"}
	}
	return b.doJSON(ctx, http.MethodPost, "/v1/events/batch", map[string]any{"events": events}, nil)
}

func (b *HTTPBridge) UserID(ctx context.Context) (string, error) {
	return b.getString(ctx, "/v1/identity/user", "id")
}

func (b *HTTPBridge) SetUserID(ctx context.Context, id string) error {
	return b.doJSON(ctx, http.MethodPut, "/v1/identity/user", map[string]string{"id": id}, nil)
}

func (b *HTTPBridge) VisitorID(ctx context.Context) (string, error) {
	return b.getString(ctx, "/v1/identity/visitor", "id")
}

func (b *HTTPBridge) ResetVisitorID(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := b.doJSON(ctx, http.MethodPost, "/v1/identity/visitor/reset", nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (b *HTTPBridge) TrackingEnabled(ctx context.Context) (bool, error) {
	return b.getBool(ctx, "/v1/privacy/tracking")
}

func (b *HTTPBridge) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	return b.doJSON(ctx, http.MethodPut, "/v1/privacy/tracking", map[string]bool{"enabled": enabled}, nil)
}

func (b *HTTPBridge) AdvertisingTrackingEnabled(ctx context.Context) (bool, error) {
	return b.getBool(ctx, "/v1/privacy/ad-tracking")
}

func (b *HTTPBridge) SetAdvertisingTrackingEnabled(ctx context.Context, enabled bool) error {
	return b.doJSON(ctx, http.MethodPut, "/v1/privacy/ad-tracking", map[string]bool{"enabled": enabled}, nil)
}

func (b *HTTPBridge) UpdateConversionValue(ctx context.Context, value int) error {
	return b.doJSON(ctx, http.MethodPost, "/v1/ios/conversion-value", map[string]int{"value": value}, nil)
}

func (b *HTTPBridge) RequestTrackingPermission(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := b.doJSON(ctx, http.MethodPost, "/v1/ios/tracking-permission", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (b *HTTPBridge) IDFA(ctx context.Context) (string, error) {
	return b.getString(ctx, "/v1/ios/idfa", "idfa")
}

func (b *HTTPBridge) TrackingAuthorizationStatus(ctx context.Context) (string, error) {
	return b.getString(ctx, "/v1/ios/tracking-status", "status")
}

func (b *HTTPBridge) StartSession(ctx context.Context) error {
	return b.doJSON(ctx, http.MethodPost, "/v1/session/start", nil, nil)
}

func (b *HTTPBridge) EndSession(ctx context.Context) error {
	return b.doJSON(ctx, http.MethodPost, "/v1/session/end", nil, nil)
}

func (b *HTTPBridge) Flush(ctx context.Context) error {
	return b.doJSON(ctx, http.MethodPost, "/v1/events/flush", nil, nil)
}

func (b *HTTPBridge) PendingEventCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := b.doJSON(ctx, http.MethodGet, "/v1/events/pending", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (b *HTTPBridge) Debuggable(ctx context.Context) (bool, error) {
	var out struct {
		Debuggable bool `json:"debuggable"`
	}
	if err := b.doJSON(ctx, http.MethodGet, "/v1/debug/info", nil, &out); err != nil {
		return false, err
	}
	return out.Debuggable, nil
}

func (b *HTTPBridge) SetBatchSizeDebug(ctx context.Context, size int) error {
	if size <= 0 {
		return &BridgeError{Code: CodeInvalidInput, Message: "batch size must be positive"}
	}
	return b.doJSON(ctx, http.MethodPost, "/v1/debug/batch-size", map[string]int{"size": size}, nil)
}

func (b *HTTPBridge) SetFlushIntervalDebug(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return &BridgeError{Code: CodeInvalidInput, Message: "flush interval must be positive"}
	}
	return b.doJSON(ctx, http.MethodPost, "/v1/debug/flush-interval",
		map[string]int64{"intervalMs": interval.Milliseconds()}, nil)
}

func (b *HTTPBridge) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func (b *HTTPBridge) getString(ctx context.Context, path, field string) (string, error) {
	var out map[string]string
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out[field], nil
}

func (b *HTTPBridge) getBool(ctx context.Context, path string) (bool, error) {
	var out struct {
		Enabled bool `json:"enabled"`
	}
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

func (b *HTTPBridge) authHeader() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sdkKey
}

func (b *HTTPBridge) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, b.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if key := b.authHeader(); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if b.userAgent != "" {
			req.Header.Set("User-Agent", b.userAgent)
		}

		resp, err := b.httpClient.Do(req)
		if err != nil {
			if attempt < b.maxRetries {
				if waitErr := sleepContext(ctx, b.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return &BridgeError{Code: CodeNetworkError, Message: err.Error()}
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return &BridgeError{Code: CodeNetworkError, Message: readErr.Error()}
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < b.maxRetries {
			if waitErr := sleepContext(ctx, b.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return bridgeErrorFromResponse(resp.StatusCode, payloadBytes)
	}
}

// bridgeErrorFromResponse decodes the host service's {code, message} error
// body, falling back to a status-derived code.
func bridgeErrorFromResponse(status int, body []byte) error {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)
	code := strings.TrimSpace(parsed.Code)
	message := strings.TrimSpace(parsed.Message)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if code == "" {
		switch {
		case status == http.StatusBadRequest:
			code = CodeInvalidInput
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			code = CodeConfigError
		case status == http.StatusNotImplemented:
			code = CodeNotSupported
		default:
			code = CodeNetworkError
		}
	}
	return &BridgeError{Code: code, Message: message}
}

// retryDelay computes the wait before the given attempt, preferring the
// server's Retry-After hint over local exponential backoff.
func (b *HTTPBridge) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if hint := retryAfterHint(retryAfterHeader); hint > 0 {
		return min(hint, b.maxDelay)
	}
	delay := b.baseDelay
	for ; attempt > 1 && delay < b.maxDelay; attempt-- {
		delay *= 2
	}
	return min(delay, b.maxDelay)
}

func retryAfterHint(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
