package domain

import "time"

// Reading is one timestamped sample of a single PID. Readings are immutable
// once created; downstream stages attach data by building new values, never
// by mutating the Reading itself.
type Reading struct {
	SessionID string    `json:"session_id"`
	PID       string    `json:"pid"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Session groups the readings and alert events of one pipeline run.
// EndTime is nil while the session is active and, once set, is never cleared.
type Session struct {
	ID          string     `json:"session_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	VehicleInfo string     `json:"vehicle_info,omitempty"`
}

// BroadcastPayload is the message fanned out to subscribers: the original
// reading plus the alert events it triggered, in evaluation order.
type BroadcastPayload struct {
	Reading
	Alerts []AlertEvent `json:"alerts"`
}

// EnrichReading builds the broadcast payload for a reading. The alerts slice
// may be empty but is never nil in the serialized form.
func EnrichReading(r Reading, alerts []AlertEvent) BroadcastPayload {
	if alerts == nil {
		alerts = []AlertEvent{}
	}
	return BroadcastPayload{Reading: r, Alerts: alerts}
}
