package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	repairMarkerPrefix = "reconcile:done:"

	// RepairMarkerTTL outlives any realistic redelivery of a drift entry.
	RepairMarkerTTL = 7 * 24 * time.Hour
)

// RepairedOutcome returns the outcome recorded for a drift, or "" if the
// drift has not been repaired yet.
func (c *Cache) RepairedOutcome(ctx context.Context, driftID string) (string, error) {
	outcome, err := c.client.Get(ctx, repairMarkerPrefix+driftID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get repair marker: %w", err)
	}
	return outcome, nil
}

// MarkRepaired records the outcome of repairing a drift. The first writer
// wins; a later call for the same drift leaves the marker unchanged.
func (c *Cache) MarkRepaired(ctx context.Context, driftID, outcome string) error {
	if err := c.client.SetNX(ctx, repairMarkerPrefix+driftID, outcome, RepairMarkerTTL).Err(); err != nil {
		return fmt.Errorf("set repair marker: %w", err)
	}
	return nil
}
