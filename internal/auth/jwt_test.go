package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken("secret", "u1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	got, err := ParseToken("secret", tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if got != "u1" {
		t.Errorf("user = %q, want u1", got)
	}
	if _, err := ParseToken("other", tok); err == nil {
		t.Error("ParseToken accepted wrong secret")
	}
}

func TestParseTokenExpired(t *testing.T) {
	tok, err := GenerateToken("secret", "u1", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken("secret", tok); err == nil {
		t.Error("ParseToken accepted expired token")
	}
}

func TestMiddleware(t *testing.T) {
	tok, _ := GenerateToken("secret", "u1", time.Hour)
	var seen string
	h := Middleware("secret", func(w http.ResponseWriter, status int, msg string) {
		http.Error(w, msg, status)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		user   string
	}{
		{"bearer", "Bearer " + tok, "", http.StatusOK, "u1"},
		{"query", "", "?token=" + tok, http.StatusOK, "u1"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"malformed", "Token " + tok, "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if seen != tt.user {
				t.Errorf("user = %q, want %q", seen, tt.user)
			}
		})
	}
}
