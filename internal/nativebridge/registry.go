package nativebridge

import (
	"strings"
	"sync"
)

// Factory builds a Bridge from a DSN such as "http://127.0.0.1:9123".
type Factory func(dsn string) (Bridge, error)

var bridgeFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{
	factories: map[string]Factory{},
}

// RegisterFactory makes a bridge transport available under a DSN scheme.
// Later registrations for the same scheme replace earlier ones.
func RegisterFactory(scheme string, factory Factory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	bridgeFactoryRegistry.mu.Lock()
	defer bridgeFactoryRegistry.mu.Unlock()
	bridgeFactoryRegistry.factories[scheme] = factory
}

// Connect builds a Bridge for the DSN's scheme. An unknown scheme fails fast
// with a setup error rather than degrading silently.
func Connect(dsn string) (Bridge, error) {
	dsn = strings.TrimSpace(dsn)
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok || scheme == "" {
		return nil, &BridgeError{Code: CodeInvalidInput, Message: "bridge dsn must look like scheme://address"}
	}
	factory, ok := lookupFactory(scheme)
	if !ok {
		return nil, &BridgeError{Code: CodeNotConfigured, Message: "no bridge transport registered for scheme " + scheme}
	}
	return factory(dsn)
}

func lookupFactory(scheme string) (Factory, bool) {
	scheme = normalizeScheme(scheme)
	bridgeFactoryRegistry.mu.RLock()
	defer bridgeFactoryRegistry.mu.RUnlock()
	factory, ok := bridgeFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

func init() {
	httpFactory := func(dsn string) (Bridge, error) {
		return NewHTTPBridge(HTTPBridgeOptions{BaseURL: dsn}), nil
	}
	RegisterFactory("http", httpFactory)
	RegisterFactory("https", httpFactory)
}
