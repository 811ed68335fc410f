package models

import "fmt"

// FetchError reports a failure to retrieve or parse website content:
// invalid URL, network failure, non-2xx status, or a non-text body.
type FetchError struct {
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Reason, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigError reports an invalid configuration or contract violation
// (bad chunk parameters, mismatched embedding dimensions, out-of-range
// settings). Never retryable.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
	}
	return "invalid config: " + e.Reason
}

// ProviderErrorKind distinguishes provider failures for UI messaging
// and retry eligibility.
type ProviderErrorKind string

const (
	ProviderAuth        ProviderErrorKind = "auth"
	ProviderRateLimit   ProviderErrorKind = "rate_limit"
	ProviderMalformed   ProviderErrorKind = "malformed_response"
	ProviderUnavailable ProviderErrorKind = "unavailable"
)

// ProviderError reports a failure from an embedding or generation backend.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Auth and
// malformed-response errors must not be retried.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderRateLimit || e.Kind == ProviderUnavailable
}

// EmptyIndexError means an operation required prior ingestion. Callers
// should prompt the user to ingest a URL first.
type EmptyIndexError struct {
	SessionID string
}

func (e *EmptyIndexError) Error() string {
	return "no website content ingested yet; ingest a URL before asking questions"
}
