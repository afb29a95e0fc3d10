package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/storesync/internal/core"
)

// TerminalHeader names the terminal submitting a batch.
const TerminalHeader = "X-Terminal-ID"

// TrustedRealIP rewrites RemoteAddr from the X-Real-IP header, or the first
// X-Forwarded-For entry, but ONLY when the connection itself comes from one
// of trustedCIDRs. Entries may be CIDRs or bare IPs; invalid entries are
// logged and skipped. With no trusted proxies RemoteAddr is never touched.
//
// Terminals connecting directly cannot spoof the address recorded in logs and
// change notifications by sending their own X-Real-IP. Header values that do
// not parse as an IP are ignored.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	// Parsed once, when the router is built.
	var trustedNets []*net.IPNet
	for _, cidr := range trustedCIDRs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}

		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			// A bare IP is a single-host network.
			if ip := net.ParseIP(cidr); ip != nil {
				mask := net.CIDRMask(128, 128)
				if ip.To4() != nil {
					mask = net.CIDRMask(32, 32)
				}
				trustedNets = append(trustedNets, &net.IPNet{IP: ip, Mask: mask})
			} else {
				slog.Warn("realip: invalid trusted proxy CIDR, skipping",
					"cidr", cidr,
					"error", err,
				)
			}
			continue
		}
		trustedNets = append(trustedNets, network)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isTrusted(extractIP(r.RemoteAddr), trustedNets) {
				if rip := r.Header.Get("X-Real-IP"); rip != "" {
					if ip := net.ParseIP(strings.TrimSpace(rip)); ip != nil {
						r.RemoteAddr = ip.String()
					}
				} else if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
					// The first entry is the original client.
					candidate, _, _ := strings.Cut(xff, ",")
					if ip := net.ParseIP(strings.TrimSpace(candidate)); ip != nil {
						r.RemoteAddr = ip.String()
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SyncContext records the client address and the TerminalHeader value on
// the request context for the sync engine and request logging. It must run
// after TrustedRealIP.
func SyncContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := extractIP(r.RemoteAddr); ip != nil {
			ctx = core.ContextWithClientIP(ctx, ip.String())
		}
		if terminal := strings.TrimSpace(r.Header.Get(TerminalHeader)); terminal != "" {
			ctx = core.ContextWithTerminal(ctx, terminal)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractIP parses an IP address from a host:port string or plain IP.
func extractIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}

// isTrusted checks if an IP is within any of the trusted networks.
func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
