package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"galileo-chat/internal/testutil"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, allowed []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/api/v1/rooms/r1/messages", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	CORS(allowed)(next).ServeHTTP(w, req)
	return w, called
}

func TestCORS_AllowedOrigin(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		shouldAllow bool
	}{
		{"allowed origin", []string{"http://localhost:3000", "http://example.com"}, "http://localhost:3000", true},
		{"allowed second origin", []string{"http://localhost:3000", "http://example.com"}, "http://example.com", true},
		{"case and trailing slash", []string{"http://Example.com/"}, "http://example.com", true},
		{"wildcard", []string{"*"}, "https://any-origin.test", true},
		{"disallowed origin", []string{"http://localhost:3000"}, "http://malicious.com", false},
		{"no origin", []string{"*"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, called := corsRequest(t, tt.allowed, http.MethodGet, tt.origin, false)

			assert.True(t, called, "simple requests always reach the handler")
			if tt.shouldAllow {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
			assert.Equal(t, "Origin", w.Header().Get("Vary"))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	w, called := corsRequest(t, []string{"http://localhost:3000"}, http.MethodOptions, "http://localhost:3000", true)

	testutil.AssertStatusCode(t, w, http.StatusNoContent)
	assert.False(t, called, "preflight should not call next handler")
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_PreflightWithDisallowedOrigin(t *testing.T) {
	w, called := corsRequest(t, []string{"http://localhost:3000"}, http.MethodOptions, "http://malicious.com", true)

	testutil.AssertStatusCode(t, w, http.StatusForbidden)
	assert.False(t, called)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PlainOptionsPassesThrough(t *testing.T) {
	_, called := corsRequest(t, []string{"http://localhost:3000"}, http.MethodOptions, "", false)

	assert.True(t, called)
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"http://localhost:3000", []string{"http://localhost:3000"}},
		{"http://a.com, http://b.com ,http://c.com", []string{"http://a.com", "http://b.com", "http://c.com"}},
		{"*", []string{"*"}},
		{"", []string{}},
		{" , ,", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOrigins(tt.in))
		})
	}
}
