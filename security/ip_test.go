package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		resolver   ClientIPResolver
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "192.0.2.10:5555",
			want:       "192.0.2.10",
		},
		{
			name:       "proxy headers ignored when untrusted",
			remoteAddr: "10.0.0.1:5555",
			xff:        "203.0.113.7",
			want:       "10.0.0.1",
		},
		{
			name:       "one trusted proxy",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:5555",
			xff:        "198.51.100.1, 203.0.113.7",
			want:       "198.51.100.1",
		},
		{
			name:       "spoofed leftmost entry",
			resolver:   ClientIPResolver{TrustProxy: true, TrustedProxyCount: 2},
			remoteAddr: "10.0.0.1:5555",
			xff:        "6.6.6.6, 198.51.100.1, 10.0.0.2, 10.0.0.3",
			want:       "198.51.100.1",
		},
		{
			name:       "fewer entries than proxies",
			resolver:   ClientIPResolver{TrustProxy: true, TrustedProxyCount: 3},
			remoteAddr: "10.0.0.1:5555",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "garbage xff falls back to x-real-ip",
			resolver:   ClientIPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:5555",
			xff:        "not-an-ip",
			xRealIP:    "198.51.100.9",
			want:       "198.51.100.9",
		},
		{
			name:       "no port in remote addr",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
		{
			name:       "ipv6",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := tt.resolver.Resolve(r); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIPResolver_Middleware(t *testing.T) {
	var got string
	handler := ClientIPResolver{}.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4711"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.9" {
		t.Errorf("GetClientIP() = %q, want 203.0.113.9", got)
	}
	if ip := GetClientIP(context.Background()); ip != "" {
		t.Errorf("GetClientIP() on empty context = %q", ip)
	}
}
