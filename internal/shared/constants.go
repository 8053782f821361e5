package shared

import "time"

// HTTP Client Configuration
const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultDialTimeout     = 2 * time.Second
	DefaultTLSTimeout      = 2 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	MaxIdleConnsPerHost    = 64
)

// Backend defaults
const (
	DefaultNlpPort  = 8085
	DefaultChatPort = 8080

	DefaultNlpClientName      = "nlp"
	DefaultChatGenerationName = "chat_generation"
)

// Headers
const (
	TraceparentHeader = "traceparent"
	TracestateHeader  = "tracestate"
	ModelIDHeader     = "mm-model-id"
	RequestIDHeader   = "X-Request-ID"
)

// Streaming
const (
	// MaxFrameSize bounds a single SSE / NDJSON frame read from a backend.
	MaxFrameSize = 1 << 20
	DoneFrame    = "[DONE]"
)

// Cache Configuration
const (
	ClientCatalogCacheTTL = 5 * time.Minute
)

// API Configuration
const (
	APIKeyLength = 32
)

// Bucket Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 30 * time.Second
	MaxFlushRetries     = 3
)

// Health Configuration
const (
	MaxConcurrentHealthProbes = 8
)
