package linkzly

import (
	"go.uber.org/zap"

	"github.com/MarenTech/linkzly-go/internal/nativebridge"
)

// Environment selects the Linkzly backend environment.
type Environment = nativebridge.Environment

const (
	EnvironmentProduction = nativebridge.EnvironmentProduction
	EnvironmentSandbox    = nativebridge.EnvironmentSandbox
)

// TrackedEvent is one entry of a batched track call.
type TrackedEvent = nativebridge.TrackedEvent

// Options configures a Client. Zero values select the defaults.
type Options struct {
	// BridgeDSN locates the native bridge transport, e.g.
	// "http://127.0.0.1:9123". Ignored when Bridge is set.
	BridgeDSN string

	// Bridge injects a transport directly. Used by tests and embedders that
	// manage their own connection.
	Bridge nativebridge.Bridge

	// AutoHandleDeepLinks controls whether the client consumes the
	// cold-start URL and feeds OS URL events automatically. Default true.
	AutoHandleDeepLinks *bool

	// AutoTrackAppOpens controls whether an open-track call fires
	// automatically after a successful configure. Default true.
	AutoTrackAppOpens *bool

	// Logger receives structured SDK logs. Default is a no-op logger.
	Logger *zap.Logger
}

// Bool is a convenience for filling the optional boolean fields.
func Bool(v bool) *bool {
	return &v
}

func boolOption(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
