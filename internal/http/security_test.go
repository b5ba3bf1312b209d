package http

import (
	"net/http/httptest"
	"testing"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.stop()

	var metrics securityMetrics
	if !rl.allow("203.0.113.7", &metrics) {
		t.Fatalf("first request blocked")
	}
	if !rl.allow("203.0.113.7", &metrics) {
		t.Fatalf("second request blocked under limit 2")
	}
	if rl.allow("203.0.113.7", &metrics) {
		t.Errorf("third request allowed over limit 2")
	}
	if metrics.rateLimitHits != 1 {
		t.Errorf("rateLimitHits = %d, want 1", metrics.rateLimitHits)
	}

	// other clients have their own window
	if !rl.allow("203.0.113.8", &metrics) {
		t.Errorf("unrelated client blocked")
	}
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	rl := newRateLimiter(0)
	defer rl.stop()
	if rl.limit != defaultRateLimitPerMinute {
		t.Errorf("limit = %d, want %d", rl.limit, defaultRateLimitPerMinute)
	}
}

func TestProxyTrust_ClientIP(t *testing.T) {
	pt := newProxyTrust([]string{"127.0.0.0/8", "10.0.0.0/8"})

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{
			name:       "direct peer without headers",
			remoteAddr: "203.0.113.7:4411",
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted peer cannot spoof via forwarding header",
			remoteAddr: "203.0.113.7:4411",
			xff:        "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy forwards first hop",
			remoteAddr: "10.0.0.5:8080",
			xff:        "198.51.100.1, 10.0.0.5",
			want:       "198.51.100.1",
		},
		{
			name:       "trusted proxy with real-ip header",
			remoteAddr: "127.0.0.1:9000",
			realIP:     "198.51.100.2",
			want:       "198.51.100.2",
		},
		{
			name:       "garbage forwarding value falls back to peer",
			remoteAddr: "10.0.0.5:8080",
			xff:        "not-an-ip",
			want:       "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/roi", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := pt.clientIP(r); got != tt.want {
				t.Errorf("clientIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProxyTrust_SkipsBadNetworks(t *testing.T) {
	pt := newProxyTrust([]string{"not-a-cidr", "127.0.0.0/8"})
	if len(pt.networks) != 1 {
		t.Errorf("networks = %d, want 1 after skipping the bad entry", len(pt.networks))
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		agent  string
		want   bool
	}{
		{name: "plain api call", target: "/api/roi", want: false},
		{name: "path traversal", target: "/api/../etc/passwd", want: true},
		{name: "probe in query", target: "/api/roi?file=.env", want: true},
		{name: "scanner agent", target: "/api/roi", agent: "sqlmap/1.5", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var metrics securityMetrics
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.agent != "" {
				r.Header.Set("User-Agent", tt.agent)
			}
			if got := detectSuspiciousRequest(r, &metrics); got != tt.want {
				t.Errorf("detectSuspiciousRequest = %t, want %t", got, tt.want)
			}
		})
	}
}
