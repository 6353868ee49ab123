package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{name: "forwarded single", xff: "192.168.1.1", expected: "192.168.1.1"},
		{name: "forwarded takes first", xff: "203.0.113.1, 198.51.100.1", expected: "203.0.113.1"},
		{name: "forwarded extra spaces", xff: "203.0.113.1  ,  198.51.100.1", expected: "203.0.113.1"},
		{name: "forwarded before real ip", xff: "203.0.113.1", realIP: "192.168.1.100", expected: "203.0.113.1"},
		{name: "forwarded garbage falls through", xff: "unknown", realIP: "192.168.1.100", expected: "192.168.1.100"},
		{name: "real ip", realIP: "192.168.1.100", expected: "192.168.1.100"},
		{name: "real ip bracketed v6", realIP: "[2001:db8::2]", expected: "2001:db8::2"},
		{name: "v4 mapped v6 unmapped", xff: "::ffff:10.0.0.7", expected: "10.0.0.7"},
		{name: "remote v4 with port", remoteAddr: "192.168.1.1:54321", expected: "192.168.1.1"},
		{name: "remote v6 with port", remoteAddr: "[2001:db8::1]:54321", expected: "2001:db8::1"},
		{name: "remote without port", remoteAddr: "192.168.1.1", expected: "192.168.1.1"},
		{name: "remote not an address", remoteAddr: "pipe", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}

			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var capturedIP string
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedIP = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/session/exchange", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "203.0.113.1", capturedIP)
}

func TestClientIPFromContext_missing(t *testing.T) {
	require.Empty(t, ClientIPFromContext(context.Background()))
}
