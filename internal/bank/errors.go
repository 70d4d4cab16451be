package bank

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid static setup such as credentials.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AccessTokenError reports that no usable access token could be found,
// or that a supplied token failed validation or exchange.
type AccessTokenError struct {
	Message string
	Err     error
}

func (e *AccessTokenError) Error() string { return e.Message }

func (e *AccessTokenError) Unwrap() error { return e.Err }

// ProviderError reports a failed request to the banking provider.
// Detail carries the provider's own diagnostic fields when present.
type ProviderError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("Plaid API Error (%s): %s", e.Op, e.Detail)
	}
	return "Plaid API Error: " + e.Detail
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FileIOError reports a failed read or write of a local artifact.
type FileIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error { return e.Err }

// APIError is the structured failure a Provider returns when the remote
// API answered with an error body. Every field is optional.
type APIError struct {
	Code      string
	Message   string
	RequestID string
	Err       error
}

func (e *APIError) Error() string {
	if d := e.describe(); d != "" {
		return d
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown provider error"
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) describe() string {
	var parts []string
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.RequestID != "" {
		parts = append(parts, "request_id="+e.RequestID)
	}
	return strings.Join(parts, ": ")
}

// DescribeProviderError joins the code, message and request id of a provider
// failure with ": ", falling back to the raw error text when none are present.
func DescribeProviderError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if d := apiErr.describe(); d != "" {
			return d
		}
	}
	return err.Error()
}

const missingTokenRemediation = "No valid Plaid access token available. Please run the Plaid Link flow to obtain a token.\n" +
	"Helpful steps:\n" +
	"  1. Run `bankdata link your_user_id` to generate a link token.\n" +
	"  2. Complete Plaid Link and capture the public_token.\n" +
	"  3. Exchange it via `bankdata exchange <public_token>` " +
	"and set PLAID_ACCESS_TOKEN or place it in data/plaid_access_tokens.json."

func errNoAccessToken() *AccessTokenError {
	return &AccessTokenError{Message: missingTokenRemediation}
}
