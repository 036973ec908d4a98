// Package events defines shared cross-service event payloads.
package events

import "time"

// ActivityCreated is emitted by the activity service when a workout is accepted.
// CaloriesBurned is optional on the wire; older producers omit it.
type ActivityCreated struct {
	ActivityID     string    `json:"activity_id"`
	TenantID       string    `json:"tenant_id,omitempty"`
	UserID         string    `json:"user_id"`
	ActivityType   string    `json:"activity_type"`
	StartedAt      time.Time `json:"started_at"`
	DurationMin    int       `json:"duration_min"`
	CaloriesBurned int       `json:"calories_burned,omitempty"`
	Source         string    `json:"source"`
	Version        string    `json:"version"`
}
