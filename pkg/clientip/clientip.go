// Package clientip resolves the caller's IP address behind the platform's
// edge. The trusted edge header wins; generic proxy headers are consulted
// next; a direct connection falls back to the socket address.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is returned when no candidate header or socket address yields a
// parseable IP. Policy checks treat it as a non-member of any allowlist.
const Unknown = "unknown"

// FromRequest returns the client's IP address for r.
// Priority order:
//  1. CF-Connecting-IP (trusted edge)
//  2. X-Forwarded-For (first valid entry)
//  3. X-Real-IP
//  4. RemoteAddr
func FromRequest(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if parsed := parseIP(ip); parsed != "" {
			return parsed
		}
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// X-Forwarded-For can contain multiple IPs, find the first valid one.
		for ip := range strings.SplitSeq(forwarded, ",") {
			if parsed := parseIP(strings.TrimSpace(ip)); parsed != "" {
				return parsed
			}
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if parsed := parseIP(ip); parsed != "" {
			return parsed
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr may already be a bare IP.
		if parsed := parseIP(r.RemoteAddr); parsed != "" {
			return parsed
		}
		return Unknown
	}
	if parsed := parseIP(host); parsed != "" {
		return parsed
	}
	return Unknown
}

// parseIP validates and normalizes an IP address string.
// Returns empty string if the IP is invalid.
func parseIP(ipStr string) string {
	ipStr = strings.TrimSpace(ipStr)
	if ipStr == "" {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	return ip.String()
}
