package models

import "time"

// RawReport is a single reporter note as stored in fetched_events.
// IsPosted is tri-state: nil (not yet taken), false (taken into review or rejected), true (published or reserved).
type RawReport struct {
	ID        string    `db:"event_id" json:"id"`
	GroupID   string    `db:"groupId" json:"groupId"`
	EventDate time.Time `db:"eventDate" json:"eventDate"`
	Report    string    `db:"report" json:"report"`
	IsPosted  *bool     `db:"isPosted" json:"isPosted"`
}

// NewsGroup is the chronologically ordered window of reports sharing a group id.
type NewsGroup struct {
	GroupID string
	Reports []RawReport
}

// Bodies returns report texts in group order.
func (g NewsGroup) Bodies() []string {
	bodies := make([]string, 0, len(g.Reports))
	for _, r := range g.Reports {
		bodies = append(bodies, r.Report)
	}
	return bodies
}

// ReportStats backs the /status command and the status endpoint.
type ReportStats struct {
	Total         int        `db:"total" json:"total"`
	Pending       int        `db:"pending" json:"pending"`
	Published     int        `db:"published" json:"published"`
	Rejected      int        `db:"rejected" json:"rejected"`
	LastPublished *time.Time `db:"last_published" json:"last_published,omitempty"`
}
