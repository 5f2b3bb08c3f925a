package app

import (
	"context"
	"testing"
	"time"
)

func TestRedisRateLimiterDisabledWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")
	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "checkout", "a@x.com", 5, time.Minute)
	if err != nil || count != 0 || retryAfter != 0 {
		t.Fatalf("expected no-op limiter, got count=%d retry=%d err=%v", count, retryAfter, err)
	}
}

func TestRedisRateLimiterKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "soullink:rate_limit:checkout:a@x.com"},
		{prefix: "custom:", want: "custom:checkout:a@x.com"},
		{prefix: " custom ", want: "custom:checkout:a@x.com"},
	}

	for _, tt := range tests {
		if got := NewRedisRateLimiter(nil, tt.prefix).key("checkout", "a@x.com"); got != tt.want {
			t.Fatalf("prefix %q: expected %q, got %q", tt.prefix, tt.want, got)
		}
	}
}

func TestParseWindowReply(t *testing.T) {
	tests := []struct {
		name          string
		raw           interface{}
		wantHits      int64
		wantRemaining time.Duration
		wantErr       bool
	}{
		{name: "counter and ttl", raw: []interface{}{int64(3), int64(1500)}, wantHits: 3, wantRemaining: 1500 * time.Millisecond},
		{name: "not a list", raw: "OK", wantErr: true},
		{name: "short list", raw: []interface{}{int64(1)}, wantErr: true},
		{name: "string counter", raw: []interface{}{"1", int64(1000)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, remaining, err := parseWindowReply(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v", tt.raw)
				}
				return
			}
			if err != nil || hits != tt.wantHits || remaining != tt.wantRemaining {
				t.Fatalf("expected %d/%s, got %d/%s err=%v", tt.wantHits, tt.wantRemaining, hits, remaining, err)
			}
		})
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{in: 0, want: 1},
		{in: 200 * time.Millisecond, want: 1},
		{in: time.Second, want: 1},
		{in: 1001 * time.Millisecond, want: 2},
		{in: time.Minute, want: 60},
	}

	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.in, tt.want, got)
		}
	}
}
