package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	internal := []string{"10.0.0.0/8", "172.16.0.0/12", "127.0.0.1/32"}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "untrusted peer cannot spoof forwarding headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4, 5.6.7.8",
			realIP:     "192.168.1.1",
			config:     &pkghttp.IPConfig{TrustedProxies: internal},
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy forwards the client",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 10.0.0.5",
			config:     &pkghttp.IPConfig{TrustedProxies: internal},
			want:       "203.0.113.42",
		},
		{
			name:       "first hop of a proxy chain wins",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 203.0.113.43, 10.0.0.5",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.42",
		},
		{
			name:       "ipv6 proxy",
			remoteAddr: "[::1]:54321",
			xff:        "2001:db8::1",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"::1/128"}},
			want:       "2001:db8::1",
		},
		{
			name:       "nil config trusts nobody",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			realIP:     "192.168.1.1",
			want:       "203.0.113.10",
		},
		{
			name:       "empty proxy list trusts nobody",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{}},
			want:       "203.0.113.10",
		},
		{
			name:       "invalid ranges in a literal config are skipped",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"invalid-cidr-range", "also-invalid"}},
			want:       "203.0.113.10",
		},
		{
			name:       "claiming localhost from outside is ignored",
			remoteAddr: "203.0.113.10:54321",
			xff:        "127.0.0.1, 203.0.113.10",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.10",
		},
		{
			name:       "unusable xff falls back to x-real-ip",
			remoteAddr: "10.1.2.3:4000",
			xff:        "garbage, also-garbage",
			realIP:     "198.51.100.7",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "198.51.100.7",
		},
		{
			name:       "ipv4-mapped peer matches an ipv4 range",
			remoteAddr: "[::ffff:10.0.0.5]:8080",
			xff:        "203.0.113.42",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/auth/login", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractClientIP_ParsedConfig(t *testing.T) {
	cfg, err := pkghttp.NewIPConfig([]string{" 10.0.0.0/8 "})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "10.9.9.9:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	assert.Equal(t, "198.51.100.20", pkghttp.ExtractClientIP(req, cfg))
}

func TestNewIPConfig_RejectsInvalidCIDR(t *testing.T) {
	_, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "not-a-cidr"})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"email":"a@b.c"}`, false},
		{"empty", ``, true},
		{"malformed", `{"email":`, true},
		{"trailing object", `{"email":"a@b.c"}{"email":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tt.payload))
			w := httptest.NewRecorder()

			var dst body
			err := pkghttp.DecodeJSON(w, req, &dst)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a@b.c", dst.Email)
		})
	}
}
