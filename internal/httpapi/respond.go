package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/premproperties/portalauth"
)

const maxBodyBytes = 64 << 10

var errBadJSON = errors.New("invalid json body")

type errorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Remaining *int   `json:"remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON tolerates unknown fields and caps the body size.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return errBadJSON
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errBadJSON
	}
	return nil
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, portalauth.ErrMismatch),
		errors.Is(err, portalauth.ErrWeakSecret),
		errors.Is(err, portalauth.ErrInvalidToken),
		errors.Is(err, portalauth.ErrInvalidPurpose),
		errors.Is(err, portalauth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, portalauth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, portalauth.ErrImmutableIdentity):
		return http.StatusForbidden
	case errors.Is(err, portalauth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portalauth.ErrExpired),
		errors.Is(err, portalauth.ErrExhausted):
		return http.StatusGone
	case errors.Is(err, portalauth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, portalauth.ErrDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if errors.Is(err, errBadJSON) {
		return "Invalid request body."
	}
	return portalauth.UserMessage(err)
}

// clientIP returns the peer address unless the peer is a trusted proxy. In
// that case X-Forwarded-For is walked from the right and the first hop that
// is not itself a trusted proxy wins. Left-most entries are client supplied
// and never used while a closer untrusted hop exists.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)
	if !isTrusted(peer, trusted) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
		peer = hop
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies accepts CIDRs or bare addresses.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func withClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := portalauth.WithClientIP(r.Context(), clientIP(r, trusted))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
