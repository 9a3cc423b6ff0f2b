package user

import (
	"context"

	"go.uber.org/zap"

	domain "user-service/internal/domain/user"
	"user-service/pkg/logger"
)

// Repository defines the interface for user data access operations.
// It abstracts the data layer so the plain database store and the
// cached decorator can be used interchangeably.
type Repository interface {
	Insert(ctx context.Context, name string) (*domain.User, error)                // Create a new user
	FindByID(ctx context.Context, id int64) (*domain.User, error)                 // Retrieve user by ID, nil when absent
	FindAll(ctx context.Context) ([]domain.User, error)                           // Retrieve every user
	UpdateName(ctx context.Context, id int64, name string) (*domain.User, error) // Rename an existing user
	DeleteByID(ctx context.Context, id int64) (int64, error)                      // Delete user by ID, returns rows affected
}

// Service implements the user operations on top of a Repository.
// It maps DTOs to records and back and performs no other logic.
type Service struct {
	repo Repository  // Repository for data access
	log  *zap.Logger // Logger for structured logging
}

var _ Usecase = (*Service)(nil)

// New creates a new Service backed by the given repository.
func New(r Repository, log *zap.Logger) *Service {
	return &Service{repo: r, log: log}
}

// CreateUser stores a new user and returns it with its assigned id.
func (s *Service) CreateUser(ctx context.Context, in CreateUserRequest) (*User, error) {
	log := logger.WithContext(ctx, s.log)
	log.Info("creating user", zap.String("name", in.Name))

	u, err := s.repo.Insert(ctx, in.Name)
	if err != nil {
		log.Error("failed to create user", zap.Error(err))
		return nil, err
	}
	return toDTO(u), nil
}

// GetUser returns the user with the given id, or nil when there is none.
func (s *Service) GetUser(ctx context.Context, in GetUserRequest) (*User, error) {
	log := logger.WithContext(ctx, s.log)

	u, err := s.repo.FindByID(ctx, in.ID)
	if err != nil {
		log.Error("failed to get user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}
	if u == nil {
		log.Debug("user not found", zap.Int64("id", in.ID))
		return nil, nil
	}
	return toDTO(u), nil
}

// ListUsers returns every stored user in backend order.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	log := logger.WithContext(ctx, s.log)

	domainUsers, err := s.repo.FindAll(ctx)
	if err != nil {
		log.Error("failed to list users", zap.Error(err))
		return nil, err
	}

	users := make([]User, len(domainUsers))
	for i, du := range domainUsers {
		users[i] = User{
			ID:   du.ID,
			Name: du.Name,
		}
	}

	log.Debug("listed users", zap.Int("count", len(users)))
	return users, nil
}

// UpdateUser renames an existing user. A missing id yields a NotFoundError.
func (s *Service) UpdateUser(ctx context.Context, in UpdateUserRequest) (*User, error) {
	log := logger.WithContext(ctx, s.log)
	log.Info("updating user", zap.Int64("id", in.ID), zap.String("name", in.Name))

	u, err := s.repo.UpdateName(ctx, in.ID, in.Name)
	if err != nil {
		log.Warn("failed to update user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}
	return toDTO(u), nil
}

// DeleteUser removes a user and reports how many rows were deleted.
func (s *Service) DeleteUser(ctx context.Context, in DeleteUserRequest) (*DeleteUserResponse, error) {
	log := logger.WithContext(ctx, s.log)
	log.Info("deleting user", zap.Int64("id", in.ID))

	n, err := s.repo.DeleteByID(ctx, in.ID)
	if err != nil {
		log.Error("failed to delete user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}
	return &DeleteUserResponse{Deleted: n}, nil
}

func toDTO(u *domain.User) *User {
	return &User{ID: u.ID, Name: u.Name}
}
