package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giantswarm/webkit/internal/testutil"
)

func TestCookieCarrier(t *testing.T) {
	c := CookieCarrier{Label: "sid"}

	rr := httptest.NewRecorder()
	c.Embed(rr, "abc123")
	header := rr.Header().Get("Set-Cookie")
	if !strings.HasPrefix(header, "sid=abc123") || !strings.Contains(header, "Path=/") {
		t.Errorf("Set-Cookie = %q", header)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "abc123"})
	if got := c.Extract(req); got != "abc123" {
		t.Errorf("Extract() = %q, want abc123", got)
	}
	if got := c.Extract(httptest.NewRequest(http.MethodGet, "/", nil)); got != "" {
		t.Errorf("Extract() without cookie = %q", got)
	}
}

func TestQueryCarrier(t *testing.T) {
	c := QueryCarrier{Label: "token"}
	req := httptest.NewRequest(http.MethodGet, "/info?token=xyz&x=1", nil)
	if got := c.Extract(req); got != "xyz" {
		t.Errorf("Extract() = %q, want xyz", got)
	}
}

func TestJSONCarrier(t *testing.T) {
	c := JSONCarrier{Label: "token"}

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string field", body: `{"token":"xyz","other":1}`, want: "xyz"},
		{name: "missing field", body: `{"other":"xyz"}`, want: ""},
		{name: "non-string field", body: `{"token":5}`, want: ""},
		{name: "not json", body: `token=xyz`, want: ""},
		{name: "empty", body: ``, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if got := c.Extract(req); got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
			rest, err := io.ReadAll(req.Body)
			if err != nil || string(rest) != tt.body {
				t.Errorf("body after Extract() = %q, %v; want it restored", rest, err)
			}
		})
	}
}

func TestNewCarrier(t *testing.T) {
	tests := []struct {
		support string
		want    TokenCarrier
		wantErr bool
	}{
		{support: "", want: CookieCarrier{Label: "token"}},
		{support: "cookie", want: CookieCarrier{Label: "token"}},
		{support: "json", want: JSONCarrier{Label: "token"}},
		{support: "query", want: QueryCarrier{Label: "token"}},
		{support: "header", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NewCarrier(tt.support, "")
		if (err != nil) != tt.wantErr {
			t.Fatalf("NewCarrier(%q) error = %v, wantErr %v", tt.support, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Errorf("NewCarrier(%q) = %#v, want %#v", tt.support, got, tt.want)
		}
		if err != nil && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewCarrier(%q) error = %v, want ErrInvalidConfig", tt.support, err)
		}
	}
}

func TestHandler_CheckCookie(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{})

	rr := httptest.NewRecorder()
	s, err := h.Check(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !s.IsOpen() {
		t.Fatal("Check() without cookie did not open a session")
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultTokenLabel || cookies[0].Value != s.Token() {
		t.Fatalf("Set-Cookie = %v, want token cookie", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	again, err := h.Check(rr, req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if again.Token() != s.Token() {
		t.Errorf("Check() token = %q, want %q", again.Token(), s.Token())
	}
	if rr.Header().Get("Set-Cookie") != "" {
		t.Error("Check() re-embedded a valid token")
	}
}

func TestHandler_CheckQuery(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{Carrier: QueryCarrier{Label: "token"}})
	ctx := context.Background()

	s, err := h.Check(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?token=unknown", nil))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if s.IsOpen() {
		t.Error("Check() opened a session for a carrier that cannot embed")
	}

	opened, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s, err = h.Check(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?token="+opened.Token(), nil))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if s.Token() != opened.Token() {
		t.Errorf("Check() token = %q, want %q", s.Token(), opened.Token())
	}
}
