package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	applog "roiboard/internal/log"
)

// securityMetrics counts security events across the server's lifetime.
type securityMetrics struct {
	rateLimitHits      int64
	suspiciousRequests int64
}

// proxyTrust resolves the originating client IP for a request. Forwarding
// headers are honored only when the direct peer sits inside one of the
// configured proxy networks; otherwise any client could spoof its address.
type proxyTrust struct {
	networks []*net.IPNet
}

// newProxyTrust builds the trust set from configured CIDR strings. Entries
// that fail to parse are logged and skipped; config validation reports them
// as errors at startup.
func newProxyTrust(cidrs []string) *proxyTrust {
	pt := &proxyTrust{}
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("Skipping unparsable trusted proxy network",
				applog.FieldComponent, applog.ComponentSecurity,
				"cidr", cidr,
				applog.FieldError, err.Error())
			continue
		}
		pt.networks = append(pt.networks, network)
	}
	return pt
}

func (pt *proxyTrust) trusted(ip net.IP) bool {
	for _, network := range pt.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP returns the address rate limiting and logging should attribute
// the request to. For peers outside the trust set the socket address wins
// over any header.
func (pt *proxyTrust) clientIP(r *http.Request) string {
	direct, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		direct = r.RemoteAddr
	}

	parsed := net.ParseIP(direct)
	if parsed == nil || !pt.trusted(parsed) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the chain is the original client.
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	return direct
}

// Fragments that show up in path or query traversal and injection probes.
var suspiciousTargetFragments = []string{
	"../", "..\\", ".env", ".git", ".ssh",
	"wp-admin", "phpmyadmin", "admin.php", "config.php",
	"eval(", "javascript:", "<script", "union select",
	"etc/passwd", "cmd.exe",
}

// User-Agent substrings of common scanning tools.
var scannerAgentFragments = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "scanner",
}

// detectSuspiciousRequest flags requests that look like probing rather than
// dashboard traffic. Flagged requests are logged, never blocked.
func detectSuspiciousRequest(r *http.Request, metrics *securityMetrics) bool {
	suspicious := hasSuspiciousTarget(r) || hasScannerAgent(r) || hasUnusualShape(r)
	if suspicious && metrics != nil {
		atomic.AddInt64(&metrics.suspiciousRequests, 1)
	}
	return suspicious
}

func hasSuspiciousTarget(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, fragment := range suspiciousTargetFragments {
		if strings.Contains(path, fragment) || strings.Contains(query, fragment) {
			return true
		}
	}
	return false
}

func hasScannerAgent(r *http.Request) bool {
	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, fragment := range scannerAgentFragments {
		if strings.Contains(agent, fragment) {
			return true
		}
	}
	return false
}

func hasUnusualShape(r *http.Request) bool {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return true
	}
	if len(r.URL.String()) > 2048 {
		return true
	}
	// A forwarding chain this deep does not happen in our deployments.
	if xff := r.Header.Get("X-Forwarded-For"); strings.Count(xff, ",") > 5 {
		return true
	}
	return false
}
