package postgres

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"user-service/internal/domain/user"
	pkgerrors "user-service/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// Every pooled connection would get its own in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// Migrate the schema
	require.NoError(t, AutoMigrate(db))

	return db
}

func setupTestRepo(t *testing.T) (*UserRepoPG, *gorm.DB) {
	db := setupTestDB(t)
	return NewUserRepoPG(db, zaptest.NewLogger(t)), db
}

func TestUserRepoPG_Insert_AssignsUniqueIDs(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	names := []string{"alice", "bob", "", "alice"}
	seen := make(map[int64]bool)

	for _, name := range names {
		u, err := repo.Insert(ctx, name)
		require.NoError(t, err)
		require.NotNil(t, u)

		assert.Equal(t, name, u.Name)
		assert.Positive(t, u.ID)
		assert.False(t, seen[u.ID], "id %d assigned twice", u.ID)
		seen[u.ID] = true
	}
}

func TestUserRepoPG_FindByID(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.Insert(ctx, "alice")
	require.NoError(t, err)

	t.Run("existing", func(t *testing.T) {
		got, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)
	})

	t.Run("absent", func(t *testing.T) {
		got, err := repo.FindByID(ctx, created.ID+100)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestUserRepoPG_UpdateName(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.Insert(ctx, "alice")
	require.NoError(t, err)

	updated, err := repo.UpdateName(ctx, created.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, &user.User{ID: created.ID, Name: "bob"}, updated)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, &user.User{ID: created.ID, Name: "bob"}, got)
}

func TestUserRepoPG_UpdateName_NotFound(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	got, err := repo.UpdateName(ctx, 404, "bob")

	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "id=404")

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "a failed update must not insert a row")
}

func TestUserRepoPG_DeleteByID(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.Insert(ctx, "alice")
	require.NoError(t, err)

	n, err := repo.DeleteByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = repo.DeleteByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUserRepoPG_FindAll_AfterInsertsAndDeletes(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	var ids []int64
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		u, err := repo.Insert(ctx, name)
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	for _, id := range ids[:2] {
		n, err := repo.DeleteByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	}

	all, err = repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.ElementsMatch(t, []user.User{
		{ID: ids[2], Name: "c"},
		{ID: ids[3], Name: "d"},
		{ID: ids[4], Name: "e"},
	}, all)
}

func TestUserRepoPG_Scenario(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.Insert(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &user.User{ID: 1, Name: "alice"}, created)

	updated, err := repo.UpdateName(ctx, 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, &user.User{ID: 1, Name: "bob"}, updated)

	n, err := repo.DeleteByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepoPG_BackendFailureIsStorageError(t *testing.T) {
	repo, db := setupTestRepo(t)
	ctx := context.Background()

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	u, err := repo.Insert(ctx, "alice")
	assert.Nil(t, u, "a failed insert must not return a record")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsStorage(err))

	_, err = repo.FindByID(ctx, 1)
	assert.True(t, pkgerrors.IsStorage(err))

	_, err = repo.FindAll(ctx)
	assert.True(t, pkgerrors.IsStorage(err))

	_, err = repo.UpdateName(ctx, 1, "bob")
	assert.True(t, pkgerrors.IsStorage(err))

	_, err = repo.DeleteByID(ctx, 1)
	assert.True(t, pkgerrors.IsStorage(err))
}
