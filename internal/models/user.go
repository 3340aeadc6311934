package models

import "time"

// User is an operator account. Only admins may run mutating maintenance
// operations.
type User struct {
	ID        string
	Email     string
	Name      string
	Admin     bool
	CreatedAt time.Time
}
