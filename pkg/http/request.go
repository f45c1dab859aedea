package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// IPConfig holds the proxies whose forwarding headers are trusted.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	prefixes []netip.Prefix
	parsed   bool
}

// NewIPConfig parses the CIDR list up front. Invalid entries are an error.
func NewIPConfig(cidrs []string) (*IPConfig, error) {
	cfg := &IPConfig{TrustedProxies: cidrs, parsed: true}
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", c, err)
		}
		cfg.prefixes = append(cfg.prefixes, p.Masked())
	}
	return cfg, nil
}

func (c *IPConfig) trusts(addr netip.Addr) bool {
	if c == nil {
		return false
	}
	prefixes := c.prefixes
	if !c.parsed {
		// Literal configs skip invalid ranges
		for _, cidr := range c.TrustedProxies {
			if p, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
				prefixes = append(prefixes, p)
			}
		}
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the client address for the request.
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is a
// trusted proxy; otherwise RemoteAddr wins.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote := remoteHost(r)

	addr, err := netip.ParseAddr(remote)
	if err != nil || !config.trusts(addr) {
		return remote
	}

	// First valid entry is the originating client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			candidate = strings.TrimSpace(candidate)
			if _, err := netip.ParseAddr(candidate); err == nil {
				return candidate
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return remote
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// DecodeJSON reads a single JSON object from the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
