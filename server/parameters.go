package server

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Grant and response type values.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypePassword          = "password"

	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"

	TokenTypeBearer = "bearer"

	// AuthorizeConfirmation is the value of the "authorize" parameter that
	// asks the server to use the user already logged into its session.
	AuthorizeConfirmation = "authorize"
)

// Parameters carries an OAuth 2.0 request or response. Requests are parsed
// from a query string or a form body; responses hold either the error fields
// or the issued code/token fields plus redirect_uri and state.
type Parameters struct {
	Username         string
	Password         string
	Code             string
	Authorize        string
	AccessToken      string
	ExpiresIn        string
	RefreshToken     string
	TokenType        string
	GrantType        string
	ResponseType     string
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	Scope            string
	State            string
	Error            string
	ErrorDescription string
}

// FromValues reads Parameters from decoded query or form values.
func FromValues(v url.Values) Parameters {
	return Parameters{
		Username:         v.Get("username"),
		Password:         v.Get("password"),
		Code:             v.Get("code"),
		Authorize:        v.Get("authorize"),
		AccessToken:      v.Get("access_token"),
		ExpiresIn:        v.Get("expires_in"),
		RefreshToken:     v.Get("refresh_token"),
		TokenType:        v.Get("token_type"),
		GrantType:        v.Get("grant_type"),
		ResponseType:     v.Get("response_type"),
		ClientID:         v.Get("client_id"),
		ClientSecret:     v.Get("client_secret"),
		RedirectURI:      v.Get("redirect_uri"),
		Scope:            v.Get("scope"),
		State:            v.Get("state"),
		Error:            v.Get("error"),
		ErrorDescription: v.Get("error_description"),
	}
}

// ParseQuery reads Parameters from a raw query string or form body. Malformed
// pairs are skipped.
func ParseQuery(raw string) Parameters {
	v, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	return FromValues(v)
}

// fields lists the parameters that may be echoed back to a client, in
// response order. Credentials are never part of it.
func (p Parameters) fields() [][2]string {
	return [][2]string{
		{"code", p.Code},
		{"access_token", p.AccessToken},
		{"expires_in", p.ExpiresIn},
		{"refresh_token", p.RefreshToken},
		{"token_type", p.TokenType},
		{"grant_type", p.GrantType},
		{"response_type", p.ResponseType},
		{"client_id", p.ClientID},
		{"redirect_uri", p.RedirectURI},
		{"scope", p.Scope},
		{"state", p.State},
		{"error", p.Error},
		{"error_description", p.ErrorDescription},
	}
}

// Map returns the non-empty response fields by name. It feeds template
// substitution.
func (p Parameters) Map() map[string]string {
	m := make(map[string]string)
	for _, f := range p.fields() {
		if f[1] != "" {
			m[f[0]] = f[1]
		}
	}
	return m
}

// Values returns the non-empty response fields as url.Values.
func (p Parameters) Values() url.Values {
	v := url.Values{}
	for _, f := range p.fields() {
		if f[1] != "" {
			v.Set(f[0], f[1])
		}
	}
	return v
}

// QueryString returns the encoded response fields prefixed with "?", or ""
// when there are none.
func (p Parameters) QueryString() string {
	encoded := p.Values().Encode()
	if encoded == "" {
		return ""
	}
	return "?" + encoded
}

// JSON returns the non-empty response fields as a JSON object. expires_in is
// emitted as a number when it parses as one.
func (p Parameters) JSON() map[string]any {
	out := make(map[string]any)
	for _, f := range p.fields() {
		if f[1] == "" {
			continue
		}
		if f[0] == "expires_in" {
			if n, err := strconv.ParseInt(f[1], 10, 64); err == nil {
				out[f[0]] = n
				continue
			}
		}
		out[f[0]] = f[1]
	}
	return out
}

// HasError reports whether the parameters carry an OAuth error.
func (p Parameters) HasError() bool {
	return p.Error != ""
}

// SetError sets an error code with its standard description.
func (p *Parameters) SetError(code string) {
	p.Error = code
	p.ErrorDescription = ErrorDescription(code)
}

// Token converts a token response into an oauth2.Token. now anchors the
// expiry when expires_in is set.
func (p Parameters) Token(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    p.TokenType,
		RefreshToken: p.RefreshToken,
	}
	if secs, err := strconv.ParseInt(p.ExpiresIn, 10, 64); err == nil && secs > 0 {
		tok.ExpiresIn = secs
		tok.Expiry = now.Add(time.Duration(secs) * time.Second)
	}
	if p.Scope != "" {
		tok = tok.WithExtra(map[string]any{"scope": p.Scope})
	}
	return tok
}
