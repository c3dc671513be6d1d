package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/certserver/internal/db"
	"github.com/adamscao/certserver/internal/db/repository"
	certerrors "github.com/adamscao/certserver/internal/errors"
	"github.com/adamscao/certserver/internal/models"
	"github.com/adamscao/certserver/internal/testutil"
)

func newRepo(t *testing.T) *repository.CertRepository {
	t.Helper()
	database, err := db.New(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database))
	return repository.NewCertRepository(database.DB)
}

func issued(studentID string) *models.IssuedCertificate {
	rec := testutil.ScenarioRecord()
	rec.StudentID = studentID
	return &models.IssuedCertificate{Record: rec, Signature: "sig-" + studentID}
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	cert := issued("S123")
	require.NoError(t, repo.Upsert(ctx, cert))
	_, err := uuid.Parse(cert.ID)
	require.NoError(t, err)
	assert.False(t, cert.SignedAt.IsZero())

	got, err := repo.GetByRecipient(ctx, "ev1", "S123")
	require.NoError(t, err)
	assert.Equal(t, cert.ID, got.ID)
	assert.True(t, cert.Record.Equal(got.Record))
	assert.Equal(t, "sig-S123", got.Signature)
	assert.Empty(t, got.ContentDigest)
	assert.Nil(t, got.IssuedAt)
	assert.WithinDuration(t, cert.SignedAt, got.SignedAt, time.Millisecond)

	byID, err := repo.GetByID(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, "S123", byID.Record.StudentID)
}

func TestUpsertReplacesAndKeepsID(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first := issued("S123")
	require.NoError(t, repo.Upsert(ctx, first))

	issuedAt := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	second := issued("S123")
	second.Signature = "resigned"
	second.ContentDigest = "ab"
	second.FormatVersion = "1.0"
	second.IssuedAt = &issuedAt
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByRecipient(ctx, "ev1", "S123")
	require.NoError(t, err)
	assert.Equal(t, "resigned", got.Signature)
	assert.Equal(t, "ab", got.ContentDigest)
	require.NotNil(t, got.IssuedAt)
	assert.True(t, issuedAt.Equal(*got.IssuedAt))

	count, err := repo.CountByEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetNotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetByRecipient(context.Background(), "ev1", "nobody")
	assert.ErrorIs(t, err, certerrors.ErrNotFound)

	_, err = repo.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, certerrors.ErrNotFound)
}

func TestListByEvent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	for _, id := range []string{"S3", "S1", "S2"} {
		require.NoError(t, repo.Upsert(ctx, issued(id)))
	}
	other := issued("S9")
	other.Record.EventID = "ev2"
	require.NoError(t, repo.Upsert(ctx, other))

	certs, err := repo.ListByEvent(ctx, "ev1", 0)
	require.NoError(t, err)
	require.Len(t, certs, 3)
	assert.Equal(t, "S1", certs[0].Record.StudentID)
	assert.Equal(t, "S3", certs[2].Record.StudentID)

	limited, err := repo.ListByEvent(ctx, "ev1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	count, err := repo.CountByEvent(ctx, "ev2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	none, err := repo.ListByEvent(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
