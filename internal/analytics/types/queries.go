package types

import "time"

// EventCountsRequest selects the trailing window for the events report.
type EventCountsRequest struct {
	Start time.Time
	End   time.Time
}

// EventCount is the number of events of one type in the window.
type EventCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// EventCountsResponse wraps the events report.
type EventCountsResponse struct {
	Days   int          `json:"days"`
	From   time.Time    `json:"from"`
	To     time.Time    `json:"to"`
	Counts []EventCount `json:"counts"`
	Total  int64        `json:"total"`
}
