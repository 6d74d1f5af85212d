package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		generate bool
	}{
		{"generated when absent", "", true},
		{"propagated when well formed", "abc-123_DEF.4:5", false},
		{"replaced when too long", strings.Repeat("a", 129), true},
		{"replaced when it contains spaces", "abc 123", true},
		{"replaced when it contains newlines", "abc\n123", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				r.Header["X-Request-Id"] = []string{tt.inbound}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if rec.Header().Get("X-Request-Id") != seen {
				t.Fatalf("response header %q != context %q", rec.Header().Get("X-Request-Id"), seen)
			}
			if tt.generate {
				if _, err := uuid.Parse(seen); err != nil {
					t.Fatalf("expected generated uuid, got %q", seen)
				}
			} else if seen != tt.inbound {
				t.Fatalf("id = %q, want %q", seen, tt.inbound)
			}
		})
	}
}

func TestRequestID_CustomHeader(t *testing.T) {
	h := RequestID("X-Correlation-Id")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Fatal("expected custom header to be set")
	}
}
