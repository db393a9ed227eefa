package services

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const minFormFillSeconds = 2

type rateRule struct {
	window time.Duration
	max    int
}

var rateRules = map[string]rateRule{
	"register": {window: time.Hour, max: 5},
	"login":    {window: time.Minute, max: 10},
}

// BotGate applies per-IP sliding-window rate limits plus two lightweight
// bot heuristics: hidden honeypot fields and minimum form-fill timing.
// State is process-local; a restart clears all windows.
type BotGate struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func NewBotGate() *BotGate {
	return &BotGate{attempts: make(map[string][]time.Time)}
}

// CheckRateLimit records an attempt for the given IP and action, returning
// ErrThrottled when the window is already at capacity. Rejected attempts
// are not recorded.
func (bg *BotGate) CheckRateLimit(ip, action string) error {
	return bg.checkRateLimitAt(ip, action, time.Now())
}

func (bg *BotGate) checkRateLimitAt(ip, action string, now time.Time) error {
	rule, ok := rateRules[action]
	if !ok {
		return nil
	}

	bg.mu.Lock()
	defer bg.mu.Unlock()

	key := action + ":" + ip
	cutoff := now.Add(-rule.window)
	kept := bg.attempts[key][:0]
	for _, t := range bg.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rule.max {
		bg.attempts[key] = kept
		log.Printf("[BOTGATE] Rate limit hit for %s from %s", action, ip)
		return fmt.Errorf("%w: too many %s attempts", ErrThrottled, action)
	}
	bg.attempts[key] = append(kept, now)
	return nil
}

// CheckHoneypot rejects submissions that filled either hidden field.
// Legitimate browsers leave both empty.
func (bg *BotGate) CheckHoneypot(website, url string) error {
	if website != "" || url != "" {
		log.Printf("[BOTGATE] Honeypot field filled")
		return fmt.Errorf("%w: submission rejected", ErrValidation)
	}
	return nil
}

// CheckSubmissionTiming rejects forms submitted faster than a human could
// fill them. A zero load time means the client did not report one and the
// check is skipped.
func (bg *BotGate) CheckSubmissionTiming(loadedAt time.Time) error {
	if loadedAt.IsZero() {
		return nil
	}
	if time.Since(loadedAt) < minFormFillSeconds*time.Second {
		log.Printf("[BOTGATE] Form submitted too quickly")
		return fmt.Errorf("%w: submission rejected", ErrValidation)
	}
	return nil
}
