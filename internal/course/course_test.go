package course_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/apperr"
	"geoattend/internal/course"
	"geoattend/internal/store/memstore"
)

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	svc := course.NewService(memstore.New())

	c, err := svc.Create(ctx, 1, " cs101 ", "Intro to Computer Science")
	require.NoError(t, err)
	assert.Equal(t, "CS101", c.Code)

	_, err = svc.Create(ctx, 2, "CS101", "Another")
	assert.Equal(t, apperr.ValidationError, apperr.KindOf(err))

	_, err = svc.Create(ctx, 1, "", "Nameless")
	assert.Equal(t, apperr.ValidationError, apperr.KindOf(err))

	_, err = svc.Create(ctx, 2, "ENG202", "Engineering")
	require.NoError(t, err)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.ForLecturer(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "CS101", mine[0].Code)
}
