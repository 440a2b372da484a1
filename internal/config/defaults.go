package config

// DefaultAddr is the address the editing backend listens on.
const DefaultAddr = "127.0.0.1:6969"

// DefaultPath is the WebSocket endpoint path.
const DefaultPath = "/"

// Reconnect policy names.
const (
	ReconnectNone        = "none"
	ReconnectExponential = "exponential"
)

// Exponential reconnect defaults, in milliseconds.
const (
	DefaultReconnectInitialMs    = 500
	DefaultReconnectMaxMs        = 10000
	DefaultReconnectMaxElapsedMs = 60000
)

// Default size of a view opened for a new document.
const (
	DefaultViewHeight = 200
	DefaultViewWidth  = 40
)

// DefaultLogLevel is used when log_level is unset.
const DefaultLogLevel = "info"
