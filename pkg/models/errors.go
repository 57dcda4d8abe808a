package models

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid setting, such as an unknown
// provider mode or a remote provider without credentials.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrorCategory classifies the cause of a provider failure.
type ErrorCategory string

const (
	CategoryModelLoad   ErrorCategory = "model_load"
	CategoryNetwork     ErrorCategory = "network"
	CategoryAuth        ErrorCategory = "auth"
	CategoryQuota       ErrorCategory = "quota"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryBadResponse ErrorCategory = "bad_response"
)

// ProviderError is returned when text generation fails.
type ProviderError struct {
	Provider string
	Category ErrorCategory
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Provider, e.Category)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, e.Category, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError.
func NewProviderError(provider string, category ErrorCategory, err error) *ProviderError {
	return &ProviderError{Provider: provider, Category: category, Err: err}
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// AsProviderError extracts a ProviderError from err.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
