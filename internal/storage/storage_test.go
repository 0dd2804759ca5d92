package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/ayo6706/delivery-marketplace/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKeyStripsDirectories(t *testing.T) {
	user, doc := uuid.New(), uuid.New()

	key := DocumentKey(user, doc, "../../etc/passwd")
	assert.Equal(t, "documents/"+user.String()+"/"+doc.String()+"/passwd", key)

	key = DocumentKey(user, doc, `C:\scans\id.pdf`)
	assert.True(t, strings.HasSuffix(key, "/id.pdf"))

	key = DocumentKey(user, doc, "")
	assert.True(t, strings.HasSuffix(key, "/file"))
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.Upload(ctx, "documents/a/b/id.pdf", []byte("scan"), "application/pdf"))

	data, contentType, ok := s.Object("documents/a/b/id.pdf")
	require.True(t, ok)
	assert.Equal(t, []byte("scan"), data)
	assert.Equal(t, "application/pdf", contentType)

	url, expires, err := s.DownloadURL(ctx, "documents/a/b/id.pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "documents/a/b/id.pdf")
	assert.False(t, expires.IsZero())

	require.NoError(t, s.Delete(ctx, "documents/a/b/id.pdf"))
	_, _, err = s.DownloadURL(ctx, "documents/a/b/id.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStorageRejectsEmptyKey(t *testing.T) {
	assert.Error(t, NewMemoryStorage().Upload(context.Background(), "", nil, "text/plain"))
}

func TestNormalizeEndpoint(t *testing.T) {
	got, err := normalizeEndpoint("minio:9000", false)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000", got)

	got, err = normalizeEndpoint("s3.eu-west-1.amazonaws.com", true)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.eu-west-1.amazonaws.com", got)

	got, err = normalizeEndpoint("", false)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", got)
}

func TestNewS3ObjectStorageValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ObjectStorage(ctx, config.StorageConfig{})
	assert.ErrorContains(t, err, "bucket")

	_, err = NewS3ObjectStorage(ctx, config.StorageConfig{Bucket: "docs"})
	assert.ErrorContains(t, err, "keys")

	s, err := NewS3ObjectStorage(ctx, config.StorageConfig{
		Bucket:       "docs",
		AccessKey:    "access",
		SecretKey:    "secret",
		Endpoint:     "localhost:9000",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	url, _, err := s.DownloadURL(ctx, "documents/x/y/id.pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "localhost:9000/docs/documents/x/y/id.pdf")
}
