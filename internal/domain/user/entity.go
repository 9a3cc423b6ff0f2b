package user

// User represents a user entity in the system.
type User struct {
	ID   int64  `json:"id"`   // ID is assigned by the backend and never changes
	Name string `json:"name"` // Name is the only mutable attribute
}
