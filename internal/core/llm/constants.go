package llm

import "time"

// Error message templates
const (
	errRateLimiter       = "rate limiter: %w"
	errEncodeInput       = "encode input document: %w"
	errEmptyResponseText = "empty response"
)

// Model defaults
const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5"
	modelPrefixClaude     = "claude"
	webhookModelDefault   = "default"
)

// Token limits
const (
	openAIMaxTokens    = 4096
	anthropicMaxTokens = 4096
)

// Rate limiter bursts
const (
	rateLimiterBurst        = 5
	webhookRateLimiterBurst = 2
)

// Retry defaults
const (
	defaultRetryInitial    = 500 * time.Millisecond
	defaultRetryMaxBackoff = 10 * time.Second
	retryMultiplier        = 2.0
)

// Upstream error messages are truncated to this many bytes.
const maxUpstreamMessageLen = 512

// Log message strings
const (
	logMsgCircuitBreakerOpen = "skipping provider - circuit breaker open"
	logMsgRetrying           = "generation attempt failed, retrying"
	logMsgProviderFailed     = "generation provider failed, trying fallback"
)

// Log key strings
const (
	logKeyProvider = "provider"
	logKeyModel    = "model"
	logKeyCategory = "category"
	logKeyAttempt  = "attempt"
	logKeyBackoff  = "backoff"
)

// Metric label values
const (
	metricStatusSuccess = "success"
	metricStatusError   = "error"
	metricCBClosed      = 0
	metricCBOpen        = 1
)

// Webhook envelope
const (
	webhookResponseField = "response"
	headerContentType    = "Content-Type"
	contentTypeJSON      = "application/json"
)

const contentTypeText = "text"
