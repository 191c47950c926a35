package web

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		allow  bool
	}{
		{"no origin header", "", "localhost:8080", true},
		{"same host", "http://localhost:8080", "localhost:8080", true},
		{"same host different case", "http://LOCALHOST:8080", "localhost:8080", true},
		{"https same host", "https://example.com", "example.com", true},
		{"different host", "http://evil.example", "localhost:8080", false},
		{"different port", "http://localhost:9999", "localhost:8080", false},
		{"unparseable origin", "http://bad host", "localhost:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.allow, checkOrigin(r))
		})
	}
}
