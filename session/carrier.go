package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxJSONBody bounds how much of a request body JSONCarrier inspects.
const maxJSONBody = 1 << 20

// TokenCarrier reads the session token a client presented with a request.
type TokenCarrier interface {
	Extract(r *http.Request) string
}

// TokenEmbedder is implemented by carriers that can hand a token back to the
// client on a response. Handler.Check opens a fresh session for unknown
// clients only when its carrier is an embedder.
type TokenEmbedder interface {
	Embed(w http.ResponseWriter, token string)
}

// CookieCarrier keeps the token in a cookie named Label.
type CookieCarrier struct {
	Label string

	// Secure marks the cookie for HTTPS only
	Secure bool
}

var (
	_ TokenCarrier  = CookieCarrier{}
	_ TokenEmbedder = CookieCarrier{}
)

func (c CookieCarrier) Extract(r *http.Request) string {
	cookie, err := r.Cookie(c.Label)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Embed sets "<label>=<token>; Path=/" on the response.
func (c CookieCarrier) Embed(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Label,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// QueryCarrier reads the token from the query parameter Label.
type QueryCarrier struct {
	Label string
}

var _ TokenCarrier = QueryCarrier{}

func (c QueryCarrier) Extract(r *http.Request) string {
	return r.URL.Query().Get(c.Label)
}

// JSONCarrier reads the token from the string field Label of a JSON object
// request body. The body is restored so later handlers can read it again.
type JSONCarrier struct {
	Label string
}

var _ TokenCarrier = JSONCarrier{}

func (c JSONCarrier) Extract(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	token, _ := fields[c.Label].(string)
	return token
}

// NewCarrier returns the carrier for a token support name: "cookie", "json"
// or "query". An empty label means DefaultTokenLabel.
func NewCarrier(support, label string) (TokenCarrier, error) {
	if label == "" {
		label = DefaultTokenLabel
	}
	switch support {
	case "", "cookie":
		return CookieCarrier{Label: label}, nil
	case "json":
		return JSONCarrier{Label: label}, nil
	case "query":
		return QueryCarrier{Label: label}, nil
	default:
		return nil, fmt.Errorf("%w: unknown token support %q", ErrInvalidConfig, support)
	}
}
