package models

import "time"

// Comment is free-form commentary attached to an application.
type Comment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Content       string    `db:"content" json:"content"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
