package user

import "time"

type Role struct {
	ID   int64
	Name string
}

type User struct {
	ID             int64
	Name           string
	Email          string
	PasswordHash   string
	MobileNumber   string
	RoleID         int64
	RoleName       string // populated on joined reads
	Specialization *string
	Hospital       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
