package repository

import (
	"time"

	"EthCast/internal/domain/models"
)

// Interval represents candle resolution buckets.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
)

// IsValidInterval returns true if iv is a supported candle interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default candle interval.
func DefaultInterval() Interval { return Interval1m }

// NormalizeInterval converts a raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// Duration returns the wall-clock span of one candle at this interval.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	default:
		return time.Minute
	}
}

// Resample aggregates candles from a finer interval into a coarser one
// (open=first, high=max, low=min, close=last, volume=sum). Buckets align to
// the target interval; a partial trailing bucket is kept, matching how
// fallback sources are stitched into the primary resolution.
func Resample(candles []models.Candle, target Interval) []models.Candle {
	if len(candles) == 0 {
		return nil
	}

	span := target.Duration()
	var out []models.Candle
	var cur *models.Candle
	var bucket time.Time

	for _, c := range candles {
		b := c.OpenTime.Truncate(span)
		if cur == nil || !b.Equal(bucket) {
			if cur != nil {
				out = append(out, *cur)
			}
			bucket = b
			cc := c
			cc.OpenTime = b
			cur = &cc
			continue
		}

		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}

	return out
}
