package models

import "time"

// User is the local projection of the identity directory. Credentials and
// premium billing live with the identity service; this table only answers
// existence checks and supplies display names for read models.
type User struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	PhotoURL   string    `db:"photo_url" json:"photo_url,omitempty"`
	IsPremium  bool      `db:"is_premium" json:"is_premium"`
	LastActive time.Time `db:"last_active" json:"last_active"`
}
