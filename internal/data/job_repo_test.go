package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The malformed-id guards reject before any query runs, so these tests need
// no database.

func TestJobRepoGetByID_MalformedID(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobRepoCancel_MalformedID(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})

	ok, err := repo.Cancel(context.Background(), "42")
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestParticipantRepoGetByID_MalformedID(t *testing.T) {
	repo := NewParticipantRepo(nil, RepoConfig{})

	_, err := repo.GetByID(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}
