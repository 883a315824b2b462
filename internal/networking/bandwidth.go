package networking

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultFrameBudgetBytesPerSecond comfortably carries 60Hz frames to one observer.
const DefaultFrameBudgetBytesPerSecond = 32 * 1024

// BandwidthUsage is the throttling state for one client.
type BandwidthUsage struct {
	AvailableBytes float64 `json:"available_bytes"`
	SentBytes      int64   `json:"sent_bytes"`
	Denied         int64   `json:"denied"`
}

type bandwidthBucket struct {
	limiter *rate.Limiter
	sent    int64
	denied  int64
}

// BandwidthRegulator is a per-client token bucket. Frames that exceed the budget are
// skipped; observers only lose intermediate ball positions, never lifecycle events.
type BandwidthRegulator struct {
	mu        sync.Mutex
	buckets   map[string]*bandwidthBucket
	perSecond rate.Limit
	burst     int
	now       func() time.Time
}

// NewBandwidthRegulator enforces bytesPerSecond per client with a one-second burst.
func NewBandwidthRegulator(bytesPerSecond float64, clock func() time.Time) *BandwidthRegulator {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultFrameBudgetBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		buckets:   make(map[string]*bandwidthBucket),
		perSecond: rate.Limit(bytesPerSecond),
		burst:     max(1, int(bytesPerSecond)),
		now:       clock,
	}
}

// Allow charges size bytes to the client's budget and reports whether it fit.
func (r *BandwidthRegulator) Allow(clientID string, size int) bool {
	if r == nil || clientID == "" || size <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket := r.buckets[clientID]
	if bucket == nil {
		bucket = &bandwidthBucket{limiter: rate.NewLimiter(r.perSecond, r.burst)}
		r.buckets[clientID] = bucket
	}
	//1.- A denied frame spends nothing, so the next smaller frame may still fit.
	if !bucket.limiter.AllowN(now, size) {
		bucket.denied++
		return false
	}
	bucket.sent += int64(size)
	return true
}

// Forget drops the bucket of a disconnected client.
func (r *BandwidthRegulator) Forget(clientID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.buckets, clientID)
	r.mu.Unlock()
}

// Usage copies the current bucket state per client.
func (r *BandwidthRegulator) Usage() map[string]BandwidthUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	usage := make(map[string]BandwidthUsage, len(r.buckets))
	for id, bucket := range r.buckets {
		usage[id] = BandwidthUsage{AvailableBytes: bucket.limiter.TokensAt(now), SentBytes: bucket.sent, Denied: bucket.denied}
	}
	return usage
}
