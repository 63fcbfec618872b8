// Package availability implements the advisory pre-payment slot check.
//
// The guard reduces the probability of selling an occupied slot but holds no
// lock; the reconciler re-validates at commit time through the unique index
// on the reservations table.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

// SlotLedger is the slice of storage the guard reads.
type SlotLedger interface {
	FindActiveReservation(ctx context.Context, slot models.Slot) (*models.Reservation, error)
	ListActiveReservationsOnDate(ctx context.Context, resourceID int64, date string) ([]models.Reservation, error)
}

// Result is the guard's answer for a single slot.
type Result struct {
	Available                bool  `json:"available"`
	ConflictingReservationID int64 `json:"conflicting_reservation_id,omitempty"`
}

// Guard checks slot availability against the ledger, with an optional
// short-TTL Redis read-through cache in front of day listings.
type Guard struct {
	ledger SlotLedger
	log    *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewGuard constructs a guard over the ledger.
func NewGuard(ledger SlotLedger, logger *zerolog.Logger) *Guard {
	return &Guard{ledger: ledger, log: logger}
}

// UseRedisCache configures optional Redis caching for day listings.
// Invalidation is an explicit call, not an ambient side effect.
func (g *Guard) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	g.redis = redisClient
	g.cacheTTL = ttl
}

// CheckAvailable reports whether a slot is free. Read-only; a storage
// failure means "cannot proceed", never "available". Single-slot checks
// bypass the cache: this answer gates money movement.
func (g *Guard) CheckAvailable(ctx context.Context, slot models.Slot) (Result, error) {
	if err := models.ValidateSlot(slot.Date, slot.StartTime); err != nil {
		return Result{}, err
	}

	r, err := g.ledger.FindActiveReservation(ctx, slot)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Result{Available: true}, nil
		}
		return Result{}, fmt.Errorf("availability lookup: %w", err)
	}
	return Result{Available: false, ConflictingReservationID: r.ID}, nil
}

// DaySlot is one bookable start time on a resource's day.
type DaySlot struct {
	Start     string `json:"start"` // "18:00"
	End       string `json:"end"`   // "19:00"
	Available bool   `json:"available"`
}

// Hours describes a resource's bookable window.
type Hours struct {
	Opening     string // "09:00"
	Closing     string // "23:00"
	SlotMinutes int
}

// DaySlots lists the day's slots for a resource with their availability.
// Served from cache when one is configured; the cache TTL is short and the
// answer is advisory either way.
func (g *Guard) DaySlots(ctx context.Context, resourceID int64, date string, hours Hours) ([]DaySlot, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}

	cacheKey := fmt.Sprintf("slots:%d:%s", resourceID, date)
	var cached []DaySlot
	if g.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	reservations, err := g.ledger.ListActiveReservationsOnDate(ctx, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	taken := make(map[string]bool, len(reservations))
	for _, r := range reservations {
		taken[r.StartTime] = true
	}

	slots, err := generateDaySlots(hours, taken)
	if err != nil {
		return nil, err
	}

	g.writeCache(ctx, cacheKey, slots)
	return slots, nil
}

// Invalidate drops the cached day listing for a slot's resource and date.
// Called by the reconciler after a reservation commits.
func (g *Guard) Invalidate(ctx context.Context, slot models.Slot) {
	if g.redis == nil || g.cacheTTL <= 0 {
		return
	}
	key := fmt.Sprintf("slots:%d:%s", slot.ResourceID, slot.Date)
	if err := g.redis.Del(ctx, key).Err(); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
	}
}

func generateDaySlots(hours Hours, taken map[string]bool) ([]DaySlot, error) {
	if hours.SlotMinutes <= 0 {
		hours.SlotMinutes = 60
	}
	opening, err := time.Parse("15:04", hours.Opening)
	if err != nil {
		return nil, fmt.Errorf("parse opening time: %w", err)
	}
	closing, err := time.Parse("15:04", hours.Closing)
	if err != nil {
		return nil, fmt.Errorf("parse closing time: %w", err)
	}

	duration := time.Duration(hours.SlotMinutes) * time.Minute
	var slots []DaySlot
	for cursor := opening; !cursor.Add(duration).After(closing); cursor = cursor.Add(duration) {
		start := cursor.Format("15:04")
		slots = append(slots, DaySlot{
			Start:     start,
			End:       cursor.Add(duration).Format("15:04"),
			Available: !taken[start],
		})
	}
	return slots, nil
}

func (g *Guard) readCache(ctx context.Context, key string, out any) bool {
	if g.redis == nil || g.cacheTTL <= 0 {
		return false
	}
	val, err := g.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (g *Guard) writeCache(ctx context.Context, key string, val any) {
	if g.redis == nil || g.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = g.redis.Set(ctx, key, data, g.cacheTTL).Err()
}
