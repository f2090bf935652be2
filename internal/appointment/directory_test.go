package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedDirectoryMemoizesHits(t *testing.T) {
	ctx := context.Background()
	backing := newFakeDirectory()
	doc := backing.addDoctor("Dr. A", "Therapy")
	svc := backing.addService("Checkup", "Therapy")
	dir := NewCachedDirectory(backing, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := dir.GetDoctor(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, doc, *got)

		gotSvc, err := dir.GetService(ctx, svc.ID)
		require.NoError(t, err)
		assert.Equal(t, svc, *gotSvc)

		docs, err := dir.DoctorsBySpecialization(ctx, "Therapy")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	}
	assert.Equal(t, 3, backing.calls)
}

func TestCachedDirectoryDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	backing := newFakeDirectory()
	dir := NewCachedDirectory(backing, time.Minute)
	id := uuid.New()

	_, err := dir.GetDoctor(ctx, id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	_, err = dir.GetDoctor(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedDirectoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	backing := newFakeDirectory()
	doc := backing.addDoctor("Dr. A", "Therapy")
	dir := NewCachedDirectory(backing, time.Minute)

	first, err := dir.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := dir.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. A", second.Name)

	docs, err := dir.DoctorsBySpecialization(ctx, "Therapy")
	require.NoError(t, err)
	docs[0].Name = "mutated"
	again, err := dir.DoctorsBySpecialization(ctx, "Therapy")
	require.NoError(t, err)
	assert.Equal(t, "Dr. A", again[0].Name)
}
