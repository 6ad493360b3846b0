package nativebridge

import (
	"context"
	"errors"
	"time"
)

// Environment selects which Linkzly backend the host service talks to.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// Fixed error codes surfaced across the bridge boundary.
const (
	CodeNetworkError  = "NETWORK_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeNotSupported  = "NOT_SUPPORTED"
	CodeDebugOnly     = "DEBUG_ONLY"
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeInvalidInput  = "INVALID_INPUT"
)

var (
	ErrNetwork       = errors.New("network error")
	ErrConfig        = errors.New("configuration error")
	ErrNotSupported  = errors.New("not supported on this platform")
	ErrDebugOnly     = errors.New("debug-only method rejected")
	ErrNotConfigured = errors.New("bridge not configured")
	ErrInvalidInput  = errors.New("invalid input")
)

// BridgeError carries the fixed string code and message the host service
// reports for a failed call.
type BridgeError struct {
	Code    string
	Message string
}

func (e *BridgeError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *BridgeError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Code == CodeNetworkError
	case ErrConfig:
		return e.Code == CodeConfigError
	case ErrNotSupported:
		return e.Code == CodeNotSupported
	case ErrDebugOnly:
		return e.Code == CodeDebugOnly
	case ErrNotConfigured:
		return e.Code == CodeNotConfigured
	case ErrInvalidInput:
		return e.Code == CodeInvalidInput
	}
	return false
}

// LinkResult is the structured link data the native layer returns for a
// handled URL, and the payload shape of the attribution-enriched channel.
type LinkResult struct {
	URL         string            `json:"url,omitempty"`
	Path        string            `json:"path,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	SmartLinkID string            `json:"smartLinkId,omitempty"`
	ClickID     string            `json:"clickId,omitempty"`
}

// LinkCapturedPayload is the payload shape of the link-captured channel.
type LinkCapturedPayload struct {
	URL        string            `json:"url"`
	Path       string            `json:"path,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// TrackedEvent is one entry of a batched track call.
type TrackedEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// PushChannel identifies one of the native push-event channels.
type PushChannel string

const (
	ChannelLinkCaptured        PushChannel = "link.captured"
	ChannelAttributionEnriched PushChannel = "attribution.enriched"
)

// PushEvent is a single frame from the push-event stream. Exactly one of the
// payload fields is set, according to Channel.
type PushEvent struct {
	Channel      PushChannel
	LinkCaptured *LinkCapturedPayload
	Attribution  *LinkResult
}

// Bridge is the opaque request/response boundary to the native attribution
// layer. Implementations forward calls; they never contain attribution
// logic.
type Bridge interface {
	Configure(ctx context.Context, sdkKey string, env Environment) error

	// InitialURL returns the cold-start URL, or "" when the process was not
	// launched by a link.
	InitialURL(ctx context.Context) (string, error)

	// HandleLink returns a richer record for the URL, or nil when the native
	// layer has nothing to add.
	HandleLink(ctx context.Context, url string) (*LinkResult, error)

	TrackInstall(ctx context.Context) (*LinkResult, error)
	TrackOpen(ctx context.Context) (*LinkResult, error)
	TrackEvent(ctx context.Context, name string, params map[string]any) error
	TrackPurchase(ctx context.Context, params map[string]any) error
	TrackEventBatch(ctx context.Context, events []TrackedEvent) error

	UserID(ctx context.Context) (string, error)
	SetUserID(ctx context.Context, id string) error
	VisitorID(ctx context.Context) (string, error)
	ResetVisitorID(ctx context.Context) (string, error)

	TrackingEnabled(ctx context.Context) (bool, error)
	SetTrackingEnabled(ctx context.Context, enabled bool) error
	AdvertisingTrackingEnabled(ctx context.Context) (bool, error)
	SetAdvertisingTrackingEnabled(ctx context.Context, enabled bool) error

	// Platform-conditional calls. On platforms without the capability the
	// bridge fails with ErrNotSupported; the SDK layer maps that to sentinel
	// values.
	UpdateConversionValue(ctx context.Context, value int) error
	RequestTrackingPermission(ctx context.Context) (string, error)
	IDFA(ctx context.Context) (string, error)
	TrackingAuthorizationStatus(ctx context.Context) (string, error)

	StartSession(ctx context.Context) error
	EndSession(ctx context.Context) error
	Flush(ctx context.Context) error
	PendingEventCount(ctx context.Context) (int, error)

	// Debug-only batching configuration; rejected with ErrDebugOnly unless
	// the build is debuggable.
	Debuggable(ctx context.Context) (bool, error)
	SetBatchSizeDebug(ctx context.Context, size int) error
	SetFlushIntervalDebug(ctx context.Context, interval time.Duration) error

	// Events starts the push-event stream. The channel closes when ctx is
	// cancelled or the bridge is closed.
	Events(ctx context.Context) (<-chan PushEvent, error)

	Close() error
}
