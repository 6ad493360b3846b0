package linkzly

import "github.com/MarenTech/linkzly-go/internal/nativebridge"

// BridgeError carries the fixed string code and message reported for a
// failed bridge call.
type BridgeError = nativebridge.BridgeError

// Fixed error codes carried by BridgeError.
const (
	CodeNetworkError  = nativebridge.CodeNetworkError
	CodeConfigError   = nativebridge.CodeConfigError
	CodeNotSupported  = nativebridge.CodeNotSupported
	CodeDebugOnly     = nativebridge.CodeDebugOnly
	CodeNotConfigured = nativebridge.CodeNotConfigured
	CodeInvalidInput  = nativebridge.CodeInvalidInput
)

// Sentinel errors for errors.Is checks against failed SDK calls.
var (
	ErrNetwork       = nativebridge.ErrNetwork
	ErrConfig        = nativebridge.ErrConfig
	ErrNotSupported  = nativebridge.ErrNotSupported
	ErrDebugOnly     = nativebridge.ErrDebugOnly
	ErrNotConfigured = nativebridge.ErrNotConfigured
	ErrInvalidInput  = nativebridge.ErrInvalidInput
)
