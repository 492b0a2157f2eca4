package models

import "time"

// Tick is a live price update from the streaming feed.
type Tick struct {
	Symbol    string
	Price     float64
	EventTime time.Time
}
