package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-service/internal/domain/user"
	pkgerrors "user-service/pkg/errors"
	"user-service/pkg/logger"
)

// UserRepoPG is the relational Record Store for users, built on GORM.
// The name reflects the production backend; any GORM dialector works.
type UserRepoPG struct {
	db  *gorm.DB    // GORM database connection
	log *zap.Logger // Structured logger for database operations
}

// NewUserRepoPG creates a new instance of UserRepoPG.
func NewUserRepoPG(db *gorm.DB, log *zap.Logger) *UserRepoPG {
	return &UserRepoPG{db: db, log: log}
}

// UserSchema represents the database schema for the users table.
type UserSchema struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"` // Unique identifier with auto-increment
	Name string `gorm:"type:text;not null"`       // Mutable display name
}

// TableName specifies the table name for the UserSchema model.
func (UserSchema) TableName() string {
	return "users"
}

func (m UserSchema) toDomain() *user.User {
	return &user.User{ID: m.ID, Name: m.Name}
}

// AutoMigrate creates the users table when it does not exist yet.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserSchema{})
}

// Insert creates a new row and returns it with the backend-assigned id.
func (r *UserRepoPG) Insert(ctx context.Context, name string) (*user.User, error) {
	log := logger.WithContext(ctx, r.log)

	model := UserSchema{Name: name}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		log.Error("failed to create user in db", zap.Error(err), zap.String("name", name))
		return nil, pkgerrors.NewStorageError("insert user", err)
	}

	log.Info("user created in db", zap.Int64("id", model.ID))
	return model.toDomain(), nil
}

// FindByID retrieves a user by id. It returns (nil, nil) when no row matches.
func (r *UserRepoPG) FindByID(ctx context.Context, id int64) (*user.User, error) {
	var model UserSchema
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithContext(ctx, r.log).Debug("user not found", zap.Int64("id", id))
			return nil, nil
		}
		logger.WithContext(ctx, r.log).Error("failed to get user from db", zap.Error(err), zap.Int64("id", id))
		return nil, pkgerrors.NewStorageError("find user", err)
	}

	return model.toDomain(), nil
}

// FindAll returns every user in backend order.
func (r *UserRepoPG) FindAll(ctx context.Context) ([]user.User, error) {
	var models []UserSchema
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		logger.WithContext(ctx, r.log).Error("failed to list users from db", zap.Error(err))
		return nil, pkgerrors.NewStorageError("list users", err)
	}

	users := make([]user.User, len(models))
	for i, model := range models {
		users[i] = *model.toDomain()
	}

	return users, nil
}

// UpdateName renames the user with the given id. The existence check and the
// write share one transaction; a missing id yields a *errors.NotFoundError.
func (r *UserRepoPG) UpdateName(ctx context.Context, id int64, name string) (*user.User, error) {
	log := logger.WithContext(ctx, r.log)

	var model UserSchema
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.NewNotFoundError("user", fmt.Sprintf("user not found: id=%d", id))
			}
			return pkgerrors.NewStorageError("load user", err)
		}

		if err := tx.Model(&model).Update("name", name).Error; err != nil {
			return pkgerrors.NewStorageError("update user", err)
		}
		model.Name = name
		return nil
	})
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			log.Warn("user not found for update", zap.Int64("id", id))
			return nil, err
		}
		log.Error("failed to update user in db", zap.Error(err), zap.Int64("id", id))
		if !pkgerrors.IsStorage(err) {
			err = pkgerrors.NewStorageError("update user", err)
		}
		return nil, err
	}

	log.Info("user updated in db", zap.Int64("id", model.ID))
	return model.toDomain(), nil
}

// DeleteByID hard-deletes a user and returns the number of rows removed.
func (r *UserRepoPG) DeleteByID(ctx context.Context, id int64) (int64, error) {
	log := logger.WithContext(ctx, r.log)

	res := r.db.WithContext(ctx).Delete(&UserSchema{}, id)
	if res.Error != nil {
		log.Error("failed to delete user in db", zap.Error(res.Error), zap.Int64("id", id))
		return 0, pkgerrors.NewStorageError("delete user", res.Error)
	}

	log.Info("user deleted in db", zap.Int64("id", id), zap.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}
