package cached

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"user-service/internal/adapter/cache"
	domain "user-service/internal/domain/user"
	"user-service/internal/usecase/user"
	pkgerrors "user-service/pkg/errors"
	"user-service/pkg/logger"
)

// UserRepository implements user.Repository with cache-aside reads.
// It wraps a persistent repository (DB) and a cache implementation;
// cache failures are logged and never change the result of an operation.
type UserRepository struct {
	dbRepo user.Repository
	cache  cache.UserCache
	log    *zap.Logger
	group  singleflight.Group
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a new cache-aside repository.
func NewUserRepository(dbRepo user.Repository, c cache.UserCache, log *zap.Logger) *UserRepository {
	return &UserRepository{
		dbRepo: dbRepo,
		cache:  c,
		log:    log,
	}
}

// Insert delegates to the DB repository. New rows are cached on first read.
func (r *UserRepository) Insert(ctx context.Context, name string) (*domain.User, error) {
	return r.dbRepo.Insert(ctx, name)
}

// FindByID retrieves a user by ID using the cache-aside pattern.
// Absent users are not cached. A fill racing an update or delete of the
// same id is dropped.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	log := logger.WithContext(ctx, r.log)

	if cachedUser, err := r.cache.Get(ctx, id); err != nil {
		log.Warn("cache get error, falling back to database", zap.Int64("id", id), zap.Error(err))
	} else if cachedUser != nil {
		return cachedUser, nil
	}

	// Concurrent misses for the same id share one database read. The read
	// is detached from the first caller's cancellation so one client going
	// away does not fail the others; each caller still honours its own ctx.
	ch := r.group.DoChan(cache.Key(id), func() (any, error) {
		flightCtx, cancel := detach(ctx)
		defer cancel()
		return r.load(flightCtx, id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("user read shared via single-flight", zap.Int64("id", id))
		}
		u, _ := res.Val.(*domain.User)
		if u == nil {
			return nil, nil
		}
		// Callers of a shared flight must not alias one another's record.
		cp := *u
		return &cp, nil
	case <-ctx.Done():
		return nil, pkgerrors.NewStorageError("find user", ctx.Err())
	}
}

// load reads the user from the database and fills the cache unless the id
// was invalidated while the read was in flight.
func (r *UserRepository) load(ctx context.Context, id int64) (*domain.User, error) {
	log := logger.WithContext(ctx, r.log)

	version, verErr := r.cache.Version(ctx, id)
	if verErr != nil {
		log.Warn("cache version error, skipping fill", zap.Int64("id", id), zap.Error(verErr))
	}

	u, err := r.dbRepo.FindByID(ctx, id)
	if err != nil || u == nil || verErr != nil {
		return u, err
	}

	if _, err := r.cache.Set(ctx, u, version); err != nil {
		log.Warn("failed to cache user", zap.Int64("id", id), zap.Error(err))
	}
	return u, nil
}

// detach returns a context that keeps ctx's values and deadline but not its
// cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

// FindAll delegates to the DB repository.
func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	return r.dbRepo.FindAll(ctx)
}

// UpdateName renames the user in the DB and invalidates the cached entry.
func (r *UserRepository) UpdateName(ctx context.Context, id int64, name string) (*domain.User, error) {
	u, err := r.dbRepo.UpdateName(ctx, id, name)
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, id, "update")
	return u, nil
}

// DeleteByID deletes the user from the DB and invalidates the cached entry.
func (r *UserRepository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	n, err := r.dbRepo.DeleteByID(ctx, id)
	if err != nil {
		return 0, err
	}

	r.invalidate(ctx, id, "delete")
	return n, nil
}

func (r *UserRepository) invalidate(ctx context.Context, id int64, op string) {
	// Readers already in flight must not hand the old record to new callers.
	r.group.Forget(cache.Key(id))
	if err := r.cache.Invalidate(ctx, id); err != nil {
		logger.WithContext(ctx, r.log).Warn("failed to invalidate cache",
			zap.String("op", op), zap.Int64("id", id), zap.Error(err))
	}
}
