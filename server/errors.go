package server

import "errors"

var (
	// ErrClientNotFound is returned when no client exists for an id.
	ErrClientNotFound = errors.New("client not found")

	// ErrUserNotFound is returned when no user exists for a username.
	ErrUserNotFound = errors.New("user not found")

	// ErrCodeNotFound is returned when no code exists for a value.
	ErrCodeNotFound = errors.New("code not found")

	// ErrUserExists is returned by Users.Create for a taken username.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned by Delete when the secret does not
	// match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidEntity is returned by Create for unusable input.
	ErrInvalidEntity = errors.New("invalid entity")
)

// OAuth 2.0 error codes (RFC 6749 section 4.1.2.1 and 5.2).
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
)

var errorDescriptions = map[string]string{
	ErrorCodeInvalidRequest:          "The request is missing a required parameter, includes an invalid parameter value, includes a parameter more than once, or is otherwise malformed.",
	ErrorCodeInvalidClient:           "Client authentication failed.",
	ErrorCodeInvalidGrant:            "The provided authorization grant or redirection URI is invalid, expired, revoked, or does not match the client.",
	ErrorCodeUnauthorizedClient:      "The client is not authorized to request an authorization code or an access token using this method.",
	ErrorCodeUnsupportedResponseType: "The authorization server does not support obtaining an authorization code or an access token using this method.",
	ErrorCodeInvalidScope:            "The requested scope is invalid, unknown, or malformed.",
	ErrorCodeAccessDenied:            "The resource owner or authorization server denied the request.",
	ErrorCodeServerError:             "The authorization server encountered an unexpected condition that prevented it from fulfilling the request.",
}

// ErrorDescription returns the standard description of an error code.
func ErrorDescription(code string) string {
	return errorDescriptions[code]
}
