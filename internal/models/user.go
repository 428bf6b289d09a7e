package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// User arrives pre-authenticated from the delivery layer; the engine never
// verifies credentials itself.
type User struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}

func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
