package consts

// ContextKey is a custom type for context keys to avoid collisions between packages.
type ContextKey string

const (
	// RequestIDKey is the context key under which the HTTP API's logging
	// middleware stores the identifier it assigns to each request, so that
	// handlers can tag their own log lines with the same value.
	RequestIDKey = ContextKey("request_id")
)
