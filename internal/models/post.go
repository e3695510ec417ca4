package models

import "time"

// Post is what gets sent to the broadcast channel.
type Post struct {
	GroupID  string `json:"group_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url,omitempty"`
}

// Text renders the post the way it appears in the channel.
func (p Post) Text() string {
	if p.Title == "" {
		return p.Body
	}
	return p.Title + "\n\n" + p.Body
}

// ScheduledPost is a persisted intent to publish at ScheduledTime.
type ScheduledPost struct {
	ID            int64     `db:"id" json:"id"`
	GroupID       string    `db:"group_id" json:"group_id"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	Title         string    `db:"title" json:"title"`
	Body          string    `db:"body" json:"body"`
	ImageURL      string    `db:"image_url" json:"image_url,omitempty"`
	IsPosted      bool      `db:"is_posted" json:"is_posted"`
}

// Post returns the publishable payload of the scheduled row.
func (s ScheduledPost) Post() Post {
	return Post{GroupID: s.GroupID, Title: s.Title, Body: s.Body, ImageURL: s.ImageURL}
}
