package models

import "time"

// User is an account allowed to store files. PasswordHash holds a bcrypt hash.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	CreatedAt    time.Time
}
