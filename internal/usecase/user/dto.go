package user

// CreateUserRequest carries the fields needed to create a user.
type CreateUserRequest struct {
	Name string
}

// UpdateUserRequest carries the target id and the new name.
type UpdateUserRequest struct {
	ID   int64
	Name string
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID int64
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID int64
}

// DeleteUserResponse reports how many rows the delete removed (0 or 1).
type DeleteUserResponse struct {
	Deleted int64
}

// User represents a user DTO (Data Transfer Object) for API responses.
type User struct {
	ID   int64
	Name string
}
