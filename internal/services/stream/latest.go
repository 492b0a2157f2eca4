package stream

import (
	"sync"
	"time"

	"EthCast/internal/domain/models"
)

// Latest retains the most recent tick seen on the stream. Out-of-order
// delivery never moves it backwards.
type Latest struct {
	mu   sync.RWMutex
	tick *models.Tick
}

func NewLatest() *Latest { return &Latest{} }

func (l *Latest) Set(t *models.Tick) {
	if t == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tick == nil || !t.EventTime.Before(l.tick.EventTime) {
		l.tick = t
	}
}

// Get returns the retained tick, nil before the first update.
func (l *Latest) Get() *models.Tick {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tick
}

// Fresh returns the retained tick only when it is within maxAge of now.
func (l *Latest) Fresh(now time.Time, maxAge time.Duration) *models.Tick {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.tick == nil || now.Sub(l.tick.EventTime) > maxAge {
		return nil
	}
	return l.tick
}
