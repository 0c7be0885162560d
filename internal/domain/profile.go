package domain

import "time"

// Profile mirrors the user record kept by the hosted auth provider.
type Profile struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
}
