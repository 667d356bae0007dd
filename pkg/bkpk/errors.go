package bkpk

import (
	"errors"
	"fmt"
)

// SDKTag prefixes every error message produced by this package.
const SDKTag = "@bkpk/sdk"

// ============================================================================
// Error Codes
// ============================================================================

const (
	// Session errors
	CodeExpiredAccessToken = "expired-access-token"
	CodeNoAccessToken      = "no-access-token"

	// Network / API errors
	CodeNetworkFailure       = "network-failure"
	CodeNotAuthorized        = "not-authorized"
	CodeForbidden            = "forbidden"
	CodeRateLimitReached     = "rate-limit-reached"
	CodeUnhandledServerError = "unhandled-server-error"
	CodeNoAvatarsAvailable   = "no-avatars-available"

	// Popup lifecycle and protocol errors
	CodeUserActionRequired          = "user-action-required"
	CodeWindowClosed                = "window-closed"
	CodeUnhandledBkpkError          = "unhandled-bkpk-error"
	CodeInvalidResponseTypeReturned = "invalid-response-type-returned"
	CodeStateMismatch               = "state-mismatch"
	CodeNoWindowEnvironment         = "no-window-environment"

	// Configuration errors
	CodeMissingClientID     = "missing-client-id"
	CodeInvalidResponseType = "invalid-response-type"
	CodeMissingRedirectURI  = "missing-redirect-uri"
	CodeInvalidBaseURL      = "invalid-base-url"
)

// ============================================================================
// SDKError
// ============================================================================

// SDKError is the error type returned by every SDK operation. Two SDKErrors
// match under errors.Is when their codes are equal, so callers can compare
// against the predefined values below even when the error was wrapped.
type SDKError struct {
	// Code is the stable machine readable error code (e.g. "window-closed")
	Code string

	// Message is a human-readable description of the error
	Message string
}

// Error implements the error interface.
func (e *SDKError) Error() string {
	return fmt.Sprintf("[%s] %s", SDKTag, e.Message)
}

// Is reports whether target is an SDKError with the same code.
func (e *SDKError) Is(target error) bool {
	var t *SDKError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrExpiredAccessToken = &SDKError{
		Code:    CodeExpiredAccessToken,
		Message: "your access token is expired, request a new one with Authorize",
	}

	ErrNoAccessToken = &SDKError{
		Code:    CodeNoAccessToken,
		Message: "you must authorize the user first (use Authorize or SetCredentials)",
	}

	ErrNetworkFailure = &SDKError{
		Code:    CodeNetworkFailure,
		Message: "there was a problem connecting to the API",
	}

	ErrNotAuthorized = &SDKError{
		Code:    CodeNotAuthorized,
		Message: "your access token is invalid, please reauthenticate the user",
	}

	ErrForbidden = &SDKError{
		Code:    CodeForbidden,
		Message: "you are not authorized to access that resource",
	}

	ErrRateLimitReached = &SDKError{
		Code:    CodeRateLimitReached,
		Message: "you've hit the API rate limit, please try again later",
	}

	ErrUnhandledServerError = &SDKError{
		Code:    CodeUnhandledServerError,
		Message: "unhandled server error",
	}

	ErrNoAvatarsAvailable = &SDKError{
		Code:    CodeNoAvatarsAvailable,
		Message: "no avatars available for this user",
	}

	// ErrUserActionRequired is returned when the window could not be opened,
	// which browsers do when the call was not triggered by a user gesture.
	ErrUserActionRequired = &SDKError{
		Code:    CodeUserActionRequired,
		Message: "a user action must trigger Authorize",
	}

	ErrWindowClosed = &SDKError{
		Code:    CodeWindowClosed,
		Message: "window closed before user authorized your application",
	}

	// ErrUnhandledBkpkError is returned when the provider reported an error.
	// The concrete error is a *RemoteError carrying the provider's message.
	ErrUnhandledBkpkError = &SDKError{
		Code:    CodeUnhandledBkpkError,
		Message: "unhandled error on bkpk client",
	}

	// ErrInvalidResponseTypeReturned is returned when the completion payload
	// does not match the response type that was requested.
	ErrInvalidResponseTypeReturned = &SDKError{
		Code:    CodeInvalidResponseTypeReturned,
		Message: "invalid response type returned",
	}

	// ErrStateMismatch is returned when a code-flow callback does not echo
	// the state sent in the authorization URL.
	ErrStateMismatch = &SDKError{
		Code:    CodeStateMismatch,
		Message: "authorization callback state does not match the request",
	}

	ErrNoWindowEnvironment = &SDKError{
		Code:    CodeNoWindowEnvironment,
		Message: "no window host configured, Authorize needs a Host to open the popup",
	}

	ErrMissingClientID = &SDKError{
		Code:    CodeMissingClientID,
		Message: "invalid or missing 'clientId'",
	}

	ErrInvalidResponseType = &SDKError{
		Code:    CodeInvalidResponseType,
		Message: "invalid or missing 'responseType'",
	}

	ErrMissingRedirectURI = &SDKError{
		Code:    CodeMissingRedirectURI,
		Message: "redirect protocol requires a redirect URI",
	}

	ErrInvalidBaseURL = &SDKError{
		Code:    CodeInvalidBaseURL,
		Message: "invalid provider base URL",
	}
)

// ============================================================================
// Provider and API errors
// ============================================================================

// RemoteError is an error reported by the identity provider, either through
// an "error" bus event or an "error" redirect parameter. It matches
// ErrUnhandledBkpkError under errors.Is.
type RemoteError struct {
	// Message is the provider supplied message or OAuth error code
	Message string

	// Details holds the raw details payload, or the error_description
	Details any
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return ErrUnhandledBkpkError.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnhandledBkpkError.Error(), e.Message)
}

// Unwrap returns ErrUnhandledBkpkError for error chain inspection.
func (e *RemoteError) Unwrap() error {
	return ErrUnhandledBkpkError
}

// APIError is returned when the API rejects a request with a 400 and a
// structured body. These errors are not interpreted by the SDK.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", SDKTag, e.Code, e.Message)
}

// networkError wraps the underlying transport error while still matching
// ErrNetworkFailure.
type networkError struct {
	cause error
}

func (e *networkError) Error() string {
	return fmt.Sprintf("%s: %v", ErrNetworkFailure.Error(), e.cause)
}

func (e *networkError) Is(target error) bool {
	return target == ErrNetworkFailure || ErrNetworkFailure.Is(target)
}

func (e *networkError) Unwrap() error { return e.cause }
