package webkit

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// Template names, also used as the metrics endpoint label of the page they
// render.
const (
	TemplateLogin   = "login"
	TemplateMessage = "message"
	TemplateLogout  = "logout"
	TemplateError   = "error"
)

// FormActionTag is the template tag holding the URL the login and message
// forms post to.
const FormActionTag = "oauth2_authorization_form_action"
