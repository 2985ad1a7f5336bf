package services

import (
	"strings"
	"sync"
	"time"

	"github.com/yYagoKn/drp/internal/models"
)

type FilterResult string

const (
	FilterAccepted  FilterResult = "accepted"
	FilterBot       FilterResult = "bot"
	FilterDebounced FilterResult = "debounced"
)

// ClickFilter drops crawler traffic and repeated clicks before they reach the ledger.
type ClickFilter struct {
	signatures []string
	window     time.Duration

	mu        sync.Mutex
	lastSeen  map[string]time.Time
	lastSweep time.Time
}

func NewClickFilter(signatures []string, window time.Duration) *ClickFilter {
	lowered := make([]string, 0, len(signatures))
	for _, sig := range signatures {
		if sig = strings.ToLower(strings.TrimSpace(sig)); sig != "" {
			lowered = append(lowered, sig)
		}
	}
	return &ClickFilter{
		signatures: lowered,
		window:     window,
		lastSeen:   make(map[string]time.Time),
	}
}

// ClickFingerprint identifies "the same click": client IP plus the full attribution tuple.
func ClickFingerprint(clientIP string, a models.Attribution) string {
	return clientIP + "\x1e" + a.Fingerprint()
}

func (f *ClickFilter) ShouldTrack(userAgent, fingerprint string, now time.Time) bool {
	return f.Evaluate(userAgent, fingerprint, now) == FilterAccepted
}

// Evaluate applies the signature rule, then the debounce rule. Only accepted
// clicks refresh the fingerprint's last-seen time.
func (f *ClickFilter) Evaluate(userAgent, fingerprint string, now time.Time) FilterResult {
	if f.IsBot(userAgent) {
		return FilterBot
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweep(now)

	if last, ok := f.lastSeen[fingerprint]; ok && now.Sub(last) < f.window {
		return FilterDebounced
	}
	f.lastSeen[fingerprint] = now
	return FilterAccepted
}

func (f *ClickFilter) IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, sig := range f.signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// Tracked returns the number of fingerprints currently held.
func (f *ClickFilter) Tracked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lastSeen)
}

// sweep drops stale fingerprints at most once per window. Caller holds f.mu.
func (f *ClickFilter) sweep(now time.Time) {
	if now.Sub(f.lastSweep) < f.window {
		return
	}
	for fp, seen := range f.lastSeen {
		if now.Sub(seen) >= f.window {
			delete(f.lastSeen, fp)
		}
	}
	f.lastSweep = now
}
