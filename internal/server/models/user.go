package models

// User is an authenticated operator. Role is a permission bitmask.
type User struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	PasswordHash string `json:"-"`
	Role         uint32 `json:"role"`
}
