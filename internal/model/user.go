package model

import (
	"time"
)

type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	Role           Role      `db:"role" json:"role"`
	DisplayName    string    `db:"display_name" json:"displayName"`
	Specialization string    `db:"specialization" json:"specialization,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type CreateUserParams struct {
	Email          string
	PasswordHash   string
	Role           Role
	DisplayName    string
	Specialization string
}
