package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"bereal-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping test - TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func createUser(t *testing.T, repo *UserRepository) *models.User {
	t.Helper()
	id := uuid.New().String()
	user := &models.User{ID: id, Username: "user_" + id[:8], CreatedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)

	user := createUser(t, users)

	exists, err := users.UsernameExists(ctx, user.Username)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastPostedDate)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, users.UpdateLastPostedDate(ctx, user.ID, at))
	got, err = users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastPostedDate)
	assert.True(t, at.Equal(*got.LastPostedDate))

	token := "device-token"
	require.NoError(t, users.UpdatePushToken(ctx, user.ID, &token))
	tokens, err := users.ListPushTokens(ctx, "someone-else")
	require.NoError(t, err)
	assert.Contains(t, tokens, token)

	_, err = users.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, users.UpdateLastPostedDate(ctx, uuid.New().String(), at), ErrNotFound)
}

func TestPostRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	posts := NewPostRepository(pool)

	user := createUser(t, users)
	caption := "golden hour"
	post := &models.Post{
		ID:       uuid.New().String(),
		UserID:   user.ID,
		ImageKey: "posts/test.jpg",
		Caption:  &caption,
		Location: &models.Location{Latitude: 45.5, Longitude: -122.6},
		Place:    &models.Place{City: "Portland", Region: "Oregon"},
	}
	require.NoError(t, posts.Create(ctx, post))
	assert.False(t, post.CreatedAt.IsZero())

	got, err := posts.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)
	assert.Equal(t, caption, *got.Caption)
	assert.Equal(t, *post.Location, *got.Location)
	assert.Equal(t, *post.Place, *got.Place)

	bare := &models.Post{ID: uuid.New().String(), UserID: user.ID, ImageKey: "posts/bare.jpg"}
	require.NoError(t, posts.Create(ctx, bare))
	got, err = posts.GetByID(ctx, bare.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Caption)
	assert.Nil(t, got.Location)
	assert.Nil(t, got.Place)

	list, total, err := posts.List(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.GreaterOrEqual(t, total, 2)

	_, err = posts.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}
