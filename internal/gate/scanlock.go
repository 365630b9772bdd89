package gate

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ScanLock serializes turnstile scans per ticket with a short-lived
// redis SETNX key, so a double scan of the same ticket is absorbed
// before it reaches the database. Correctness does not depend on it;
// the status-conditional updates do the real work.
type ScanLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewScanLock(client *redis.Client, ttl time.Duration) *ScanLock {
	return &ScanLock{Client: client, TTL: ttl}
}

func (s *ScanLock) key(ticketID string) string {
	return "gate_scan:" + ticketID
}

// Acquire attempts to take the scan lock for a ticket. A false return
// means another scan of this ticket is already in flight.
func (s *ScanLock) Acquire(ctx context.Context, ticketID string) (bool, error) {
	return s.Client.SetNX(ctx, s.key(ticketID), "1", s.TTL).Result()
}

// Release drops the lock early (failure paths); otherwise the TTL
// cleans it up.
func (s *ScanLock) Release(ctx context.Context, ticketID string) error {
	_, err := s.Client.Del(ctx, s.key(ticketID)).Result()
	return err
}
