// Package model defines the BookNest domain entities.
package model

import "time"

// User owns API keys. Its email is the identity used for lending.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
