package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"user-service/internal/adapter/cache"
	domain "user-service/internal/domain/user"
	pkgerrors "user-service/pkg/errors"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Insert(ctx context.Context, name string) (*domain.User, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *mockRepository) UpdateName(ctx context.Context, id int64, name string) (*domain.User, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockRepository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func setupCachedRepo(t *testing.T) (*UserRepository, *mockRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	log := zaptest.NewLogger(t)
	dbRepo := new(mockRepository)
	userCache := cache.NewRedisUserCache(client, time.Minute, log)

	return NewUserRepository(dbRepo, userCache, log), dbRepo, mr
}

func TestUserRepository_FindByID_MissThenHit(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()

	dbRepo.On("FindByID", mock.Anything, int64(1)).Return(&domain.User{ID: 1, Name: "alice"}, nil).Once()

	first, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &domain.User{ID: 1, Name: "alice"}, first)
	assert.True(t, mr.Exists(cache.Key(1)))

	second, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	dbRepo.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestUserRepository_FindByID_AbsentIsNotCached(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()

	dbRepo.On("FindByID", mock.Anything, int64(2)).Return(nil, nil)

	got, err := repo.FindByID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(cache.Key(2)))
}

func TestUserRepository_FindByID_DatabaseError(t *testing.T) {
	repo, dbRepo, _ := setupCachedRepo(t)
	ctx := context.Background()

	dbErr := pkgerrors.NewStorageError("find user", errors.New("connection reset"))
	dbRepo.On("FindByID", mock.Anything, int64(3)).Return(nil, dbErr)

	got, err := repo.FindByID(ctx, 3)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, dbErr)
}

func TestUserRepository_FindByID_CacheDownFallsBackToDatabase(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()
	mr.Close()

	dbRepo.On("FindByID", mock.Anything, int64(1)).Return(&domain.User{ID: 1, Name: "alice"}, nil)

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &domain.User{ID: 1, Name: "alice"}, got)
}

func TestUserRepository_UpdateNameInvalidates(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()

	dbRepo.On("FindByID", mock.Anything, int64(1)).Return(&domain.User{ID: 1, Name: "alice"}, nil).Once()
	dbRepo.On("UpdateName", ctx, int64(1), "bob").Return(&domain.User{ID: 1, Name: "bob"}, nil)

	_, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.Key(1)))

	updated, err := repo.UpdateName(ctx, 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", updated.Name)
	assert.False(t, mr.Exists(cache.Key(1)))
}

func TestUserRepository_UpdateNameNotFoundKeepsCache(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(cache.Key(9), `{"id":9,"name":"stale"}`))

	dbRepo.On("UpdateName", ctx, int64(9), "bob").Return(nil, pkgerrors.NewNotFoundError("user", ""))

	_, err := repo.UpdateName(ctx, 9, "bob")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, mr.Exists(cache.Key(9)))
}

func TestUserRepository_DeleteByIDInvalidates(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(cache.Key(1), `{"id":1,"name":"alice"}`))

	dbRepo.On("DeleteByID", ctx, int64(1)).Return(int64(1), nil)

	n, err := repo.DeleteByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, mr.Exists(cache.Key(1)))
}

func TestUserRepository_InsertAndFindAllDelegate(t *testing.T) {
	repo, dbRepo, _ := setupCachedRepo(t)
	ctx := context.Background()

	dbRepo.On("Insert", ctx, "alice").Return(&domain.User{ID: 1, Name: "alice"}, nil)
	dbRepo.On("FindAll", ctx).Return([]domain.User{{ID: 1, Name: "alice"}}, nil)

	created, err := repo.Insert(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	dbRepo.AssertExpectations(t)
}

// holdRead makes the next database read of id block until release is closed.
// started is closed once the read has begun.
func holdRead(dbRepo *mockRepository, id int64, u *domain.User) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	dbRepo.On("FindByID", mock.Anything, id).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(u, nil).Once()
	return started, release
}

func TestUserRepository_DeleteDuringMissDoesNotResurrect(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()

	started, release := holdRead(dbRepo, 1, &domain.User{ID: 1, Name: "alice"})
	dbRepo.On("DeleteByID", ctx, int64(1)).Return(int64(1), nil)
	dbRepo.On("FindByID", mock.Anything, int64(1)).Return(nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := repo.FindByID(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, "alice", got.Name, "read began before the delete")
	}()

	<-started
	n, err := repo.DeleteByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	close(release)
	<-done

	assert.False(t, mr.Exists(cache.Key(1)), "stale fill must be dropped")

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepository_UpdateDuringMissServesNewName(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)
	ctx := context.Background()

	started, release := holdRead(dbRepo, 1, &domain.User{ID: 1, Name: "alice"})
	dbRepo.On("UpdateName", ctx, int64(1), "bob").Return(&domain.User{ID: 1, Name: "bob"}, nil)
	dbRepo.On("FindByID", mock.Anything, int64(1)).Return(&domain.User{ID: 1, Name: "bob"}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := repo.FindByID(ctx, 1)
		assert.NoError(t, err)
	}()

	<-started
	_, err := repo.UpdateName(ctx, 1, "bob")
	require.NoError(t, err)
	close(release)
	<-done

	assert.False(t, mr.Exists(cache.Key(1)))

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)

	// The fresh read is cached.
	cachedUser, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", cachedUser.Name)
	assert.True(t, mr.Exists(cache.Key(1)))
}

func TestUserRepository_CanceledCallerDoesNotFailSharedRead(t *testing.T) {
	repo, dbRepo, mr := setupCachedRepo(t)

	started, release := holdRead(dbRepo, 1, &domain.User{ID: 1, Name: "alice"})
	dbRepo.On("FindByID", mock.Anything, int64(1)).Return(&domain.User{ID: 1, Name: "alice"}, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := repo.FindByID(leaderCtx, 1)
		leaderErr <- err
	}()
	<-started

	follower := make(chan *domain.User, 1)
	go func() {
		u, err := repo.FindByID(context.Background(), 1)
		assert.NoError(t, err)
		follower <- u
	}()

	cancelLeader()
	select {
	case err := <-leaderErr:
		assert.True(t, pkgerrors.IsStorage(err))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller kept waiting")
	}

	close(release)
	select {
	case u := <-follower:
		require.NotNil(t, u)
		assert.Equal(t, "alice", u.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not return")
	}
	assert.True(t, mr.Exists(cache.Key(1)), "detached read still fills the cache")
}
