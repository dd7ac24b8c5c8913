package proxy

import (
	"hash/fnv"
	"sync"
	"time"
)

// rateLimiter enforces a hard per-IP request count over a sliding 60
// second window. A window log rather than a refilling token bucket: the
// cap is "N requests in any minute", and a bucket that trickles tokens
// back mid-window would admit more. Shards keyed by IP hash keep one hot
// client from serializing everyone else.
type rateLimiter struct {
	limit  int
	window time.Duration
	shards [rateShards]rateShard
}

const rateShards = 32

type rateShard struct {
	mu      sync.Mutex
	clients map[string][]time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{limit: perMinute, window: time.Minute}
	for i := range rl.shards {
		rl.shards[i].clients = make(map[string][]time.Time)
	}
	return rl
}

// Allow records one request from ip and reports whether it fits the
// window.
func (rl *rateLimiter) Allow(ip string) bool {
	return rl.allowAt(ip, time.Now())
}

func (rl *rateLimiter) allowAt(ip string, now time.Time) bool {
	sh := &rl.shards[shardFor(ip)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-rl.window)
	log := sh.clients[ip]
	kept := log[:0]
	for _, ts := range log {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= rl.limit {
		sh.clients[ip] = kept
		return false
	}
	sh.clients[ip] = append(kept, now)
	return true
}

func shardFor(ip string) int {
	h := fnv.New32a()
	h.Write([]byte(ip))
	return int(h.Sum32() % rateShards)
}
