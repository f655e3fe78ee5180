// Package access decides whether premium content is unlocked by combining
// billing entitlements with a first-use grace period.
package access

import (
	"context"
	"log/slog"
	"time"
)

const (
	// GraceWindowDays is the length of the complimentary period after first launch.
	GraceWindowDays = 7

	FirstLaunchKey = "first_launch_at"

	day = 24 * time.Hour
)

// KeyValue is the small persisted store the access controller keeps its
// anchors and flags in.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type GraceStatus struct {
	InGrace       bool       `json:"in_grace"`
	DaysLeft      int        `json:"days_left"`
	FirstLaunchAt *time.Time `json:"first_launch_at"`
	EndsAt        *time.Time `json:"ends_at"`
}

// GracePeriod tracks the first-launch anchor.
type GracePeriod struct {
	kv     KeyValue
	logger *slog.Logger
}

func NewGracePeriod(kv KeyValue, logger *slog.Logger) *GracePeriod {
	if logger == nil {
		logger = slog.Default()
	}
	return &GracePeriod{kv: kv, logger: logger}
}

// Check reads the anchor, writing now if none exists yet. Storage and parse
// failures never lock the user out: they are logged and reported as a full
// grace window.
func (g *GracePeriod) Check(ctx context.Context, now time.Time) GraceStatus {
	raw, ok, err := g.kv.Get(ctx, FirstLaunchKey)
	if err != nil {
		g.logger.Warn("read first launch anchor failed, granting grace", "error", err)
		return fullGrace()
	}

	if !ok {
		raw = now.UTC().Format(time.RFC3339Nano)
		if err := g.kv.Set(ctx, FirstLaunchKey, raw); err != nil {
			g.logger.Warn("write first launch anchor failed, granting grace", "error", err)
			return fullGrace()
		}
		g.logger.Info("first launch recorded", "at", raw)
	}

	anchor, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		g.logger.Warn("parse first launch anchor failed, granting grace", "value", raw, "error", err)
		return fullGrace()
	}
	return GraceFor(anchor, now)
}

// Expire moves the anchor back far enough that the grace period is over.
func (g *GracePeriod) Expire(ctx context.Context, now time.Time) (GraceStatus, error) {
	anchor := now.Add(-(GraceWindowDays + 1) * day)
	if err := g.kv.Set(ctx, FirstLaunchKey, anchor.UTC().Format(time.RFC3339Nano)); err != nil {
		return GraceStatus{}, err
	}
	g.logger.Warn("grace period expired manually", "anchor", anchor.UTC())
	return GraceFor(anchor, now), nil
}

// GraceFor computes the grace status for an anchor. Only whole elapsed
// days count; an anchor in the future counts as zero days.
func GraceFor(anchor, now time.Time) GraceStatus {
	elapsed := int(now.Sub(anchor) / day)
	if elapsed < 0 {
		elapsed = 0
	}
	left := GraceWindowDays - elapsed
	if left < 0 {
		left = 0
	}

	a := anchor.UTC()
	end := a.Add(GraceWindowDays * day)
	return GraceStatus{
		InGrace:       left > 0,
		DaysLeft:      left,
		FirstLaunchAt: &a,
		EndsAt:        &end,
	}
}

func fullGrace() GraceStatus {
	return GraceStatus{InGrace: true, DaysLeft: GraceWindowDays}
}
