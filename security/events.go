package security

// Event type constants for security audit logging.
const (
	// Session lifecycle events

	// EventSessionOpened is logged when a session receives a fresh token
	EventSessionOpened = "session_opened"

	// EventSessionClosed is logged when a session is closed explicitly (logout)
	EventSessionClosed = "session_closed"

	// EventSessionsCollected is logged when the garbage collector removes sessions
	EventSessionsCollected = "sessions_collected"

	// Grant events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventGrantDenied is logged when the grant pipeline answers with an error
	EventGrantDenied = "grant_denied"

	// EventAuthorizationsRevoked is logged when a client revokes the authorizations of a user
	EventAuthorizationsRevoked = "authorizations_revoked"

	// Administration events

	// EventClientCreated is logged when a new OAuth2 client is created
	EventClientCreated = "client_created"

	// EventClientDeleted is logged when a client is deleted with its secret
	EventClientDeleted = "client_deleted"

	// EventUserCreated is logged when a new resource owner is created
	EventUserCreated = "user_created"

	// EventUserDeleted is logged when a user is deleted with its password
	EventUserDeleted = "user_deleted"

	// Security violation events

	// EventAuthFailure is logged when authentication fails (wrong credentials, etc.)
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventScopeEscalationAttempt is logged when a client requests roles it is not allowed
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// EventGrantPanic is logged when the grant pipeline recovered from a panic
	EventGrantPanic = "grant_panic"
)
