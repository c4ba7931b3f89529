package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/metrics"
)

const (
	// autoBlockThreshold is how many rejected windows within an hour get an
	// IP blocked, when auto-blocking is enabled.
	autoBlockThreshold = 10
	autoBlockDuration  = 24 * time.Hour
)

// Rule limits requests whose method matches and whose path starts with
// Prefix. Rules are checked in order; the first match applies.
type Rule struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
}

// Name identifies the rule in keys, logs and metrics.
func (r Rule) Name() string {
	return r.Method + " " + r.Prefix
}

// defaultRules cover the webhook receivers and the FAQ read API. The
// platform retries failed deliveries, so webhooks get generous limits.
var defaultRules = []Rule{
	{http.MethodPost, "/webhooks/messages", 600, time.Minute},
	{http.MethodPost, "/webhooks/spaces", 60, time.Minute},
	{http.MethodGet, "/spaces/", 120, time.Minute},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
}

// allowList holds exact IPs and CIDR ranges.
type allowList struct {
	ips  map[string]bool
	nets []*net.IPNet
}

func parseAllowList(entries []string, logger zerolog.Logger) allowList {
	list := allowList{ips: make(map[string]bool)}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			list.ips[entry] = true
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		list.nets = append(list.nets, ipNet)
	}
	return list
}

func (l allowList) contains(ipStr string) bool {
	if l.ips[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range l.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RateLimiter counts requests per client IP and rule in fixed windows kept
// in Redis. Redis failures let the request through.
type RateLimiter struct {
	client    *redis.Client
	rules     []Rule
	blocker   *IPBlocker
	logger    zerolog.Logger
	exempt    allowList
	autoBlock bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		rules:     defaultRules,
		blocker:   NewIPBlocker(client),
		logger:    logger,
		exempt:    parseAllowList(cfg.Whitelist, logger),
		autoBlock: cfg.AutoBlockEnabled,
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.exempt.ips)).
			Int("cidrs", len(rl.exempt.nets)).
			Msg("rate limit whitelist configured")
	}
	return rl
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// match returns the first rule covering the request, or nil.
func (rl *RateLimiter) match(r *http.Request) *Rule {
	for i := range rl.rules {
		rule := &rl.rules[i]
		if r.Method == rule.Method && strings.HasPrefix(r.URL.Path, rule.Prefix) {
			return rule
		}
	}
	return nil
}

// windowKey buckets the counter by the window the instant falls in.
func windowKey(rule *Rule, ip string, now time.Time) (string, time.Time) {
	bucket := now.UnixNano() / int64(rule.Window)
	resetAt := time.Unix(0, (bucket+1)*int64(rule.Window))
	return fmt.Sprintf("ratelimit:%s:%s:%d", rule.Name(), ip, bucket), resetAt
}

// take counts one request against the rule's current window.
func (rl *RateLimiter) take(ctx context.Context, rule *Rule, ip string) (allowed bool, remaining int, resetAt time.Time) {
	key, resetAt := windowKey(rule, ip, time.Now())

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("rule", rule.Name()).Msg("rate limit check failed, allowing")
		return true, rule.Requests, resetAt
	}

	count := int(incr.Val())
	remaining = rule.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rule.Requests, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.exempt.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule := rl.match(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := rl.take(r.Context(), rule, ip)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(rule.Name()).Inc()
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("rule", rule.Name()).
				Msg("rate limit exceeded")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// trackViolation counts rejected requests and blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	rl.client.Expire(ctx, key, time.Hour)

	if count >= autoBlockThreshold {
		rl.blocker.Block(ctx, ip, autoBlockDuration, "repeated rate limit violations")
		metrics.BlockedRequests.WithLabelValues("auto_blocked").Inc()
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked checks if an IP is blocked. Lookup failures count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	exists, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}
