package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/conversations", "/conversations"},
		{"/conversations/42", "/conversations/:id"},
		{"/conversations/42/messages", "/conversations/:id/messages"},
		{"/conversations/42/messages/7", "/conversations/:id/messages"},
		{"/conversations/42/participants", "/conversations/:id/participants"},
		{"/conversations/42/leave", "/conversations/:id/leave"},
		{"/conversations/42/stream", "/conversations/:id/stream"},
		{"/conversations/stream", "/conversations/stream"},
		{"/health", "/health"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSessionTokenSources(t *testing.T) {
	r := httptest.NewRequest("GET", "/me", nil)
	if got := SessionToken(r); got != "" {
		t.Errorf("no credential should yield empty token, got %q", got)
	}

	r = httptest.NewRequest("GET", "/me", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := SessionToken(r); got != "abc123" {
		t.Errorf("bearer token = %q", got)
	}

	r = httptest.NewRequest("GET", "/me", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-token"})
	r.Header.Set("Authorization", "Bearer header-token")
	if got := SessionToken(r); got != "cookie-token" {
		t.Errorf("cookie should win over header, got %q", got)
	}
}

func TestRealIPHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4567"
	if got := RealIP(r); got != "10.0.0.1" {
		t.Errorf("RemoteAddr fallback = %q", got)
	}

	r.Header.Set("X-Real-IP", "192.168.1.5")
	if got := RealIP(r); got != "192.168.1.5" {
		t.Errorf("X-Real-IP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := RealIP(r); got != "203.0.113.9" {
		t.Errorf("X-Forwarded-For should win, got %q", got)
	}
}
