package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/password"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
	assert.False(t, isUniqueViolation(nil))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "cassandra", "", false)
	assert.Error(t, err)
}

func TestSeedMemoryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	stores, err := Open(ctx, "memory", "", false)
	require.NoError(t, err)
	assert.True(t, stores.Healthy(ctx))
	assert.NoError(t, stores.Close())

	require.NoError(t, Seed(ctx, stores.Identity, stores.Courses))
	require.NoError(t, Seed(ctx, stores.Identity, stores.Courses))

	courses, err := stores.Courses.Courses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 2)

	st, err := stores.Identity.StudentByIndex(ctx, "ST001")
	require.NoError(t, err)
	assert.False(t, st.IsRegistered)
	assert.Nil(t, st.PasswordHash)

	reg, err := stores.Identity.StudentByIndex(ctx, "ST999")
	require.NoError(t, err)
	require.NotNil(t, reg.PasswordHash)
	ok, err := password.Verify(*reg.PasswordHash, "student123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedis(t *testing.T) {
	r, err := NewRedis("localhost:6379")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "localhost:6379", r.Client.Options().Addr)
	assert.Equal(t, "geoattend:events", r.Key("events"))
	assert.Equal(t, "geoattend:ratelimit:login", r.Key("ratelimit", "login"))

	u, err := NewRedis("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, "cache:6380", u.Client.Options().Addr)
	assert.Equal(t, 2, u.Client.Options().DB)
	assert.Equal(t, time.Second, u.Client.Options().ReadTimeout)

	_, err = NewRedis("http://cache:6379")
	assert.Error(t, err)

	var missing *Redis
	assert.False(t, missing.Healthy(context.Background()))
	assert.NoError(t, missing.Close())
}
