package http

import (
	"net"
	"net/http"
	"strings"
)

// FallbackIP is reported when no usable address can be found on the request.
const FallbackIP = "0.0.0.0"

// IPConfig controls which forwarding headers are believed.
type IPConfig struct {
	// TrustForwarded enables X-Forwarded-For / X-Real-IP handling.
	TrustForwarded bool
	// TrustedProxies narrows header trust to peers inside these ranges. Empty means any peer.
	TrustedProxies []*net.IPNet
}

// ExtractClientIP returns the client address for the request.
//
// Order: first valid X-Forwarded-For entry, X-Real-IP, RemoteAddr, FallbackIP.
// Headers are consulted only when config.TrustForwarded is set and the peer is
// one of config.TrustedProxies (when that list is non-empty).
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && config.TrustForwarded && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && isValidIP(xri) {
			return xri
		}
	}

	if remoteIP == "" {
		return FallbackIP
	}
	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func isTrustedProxy(ip string, trustedProxies []*net.IPNet) bool {
	if len(trustedProxies) == 0 {
		return true
	}

	peer := net.ParseIP(ip)
	if peer == nil {
		return false
	}

	for _, ipNet := range trustedProxies {
		if ipNet.Contains(peer) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
