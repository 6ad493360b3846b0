package nativebridge

import (
	"errors"
	"testing"
)

func TestConnectDispatchesHTTPScheme(t *testing.T) {
	bridge, err := Connect("http://127.0.0.1:9123")
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if _, ok := bridge.(*HTTPBridge); !ok {
		t.Fatalf("expected http bridge, got %T", bridge)
	}
}

func TestConnectRejectsUnknownScheme(t *testing.T) {
	if _, err := Connect("carrier-pigeon://coop"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not-configured error, got %v", err)
	}
}

func TestConnectRejectsMalformedDSN(t *testing.T) {
	if _, err := Connect("not-a-dsn"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestRegisterFactoryCustomScheme(t *testing.T) {
	called := false
	RegisterFactory("Test-Scheme", func(dsn string) (Bridge, error) {
		called = true
		return NewHTTPBridge(HTTPBridgeOptions{}), nil
	})
	if _, err := Connect("test-scheme://anywhere"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !called {
		t.Fatalf("expected custom factory to run")
	}
}
