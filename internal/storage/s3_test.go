package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zen-accounts/internal/domain"
	"zen-accounts/internal/repository"
)

type fakeObject struct {
	body []byte
	etag string
}

// fakeS3 emulates conditional GetObject/PutObject on a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	seq     int
	getErr  error
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(obj.body)),
		ETag: aws.String(obj.etag),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++

	key := aws.ToString(in.Key)
	existing, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}
	if in.IfMatch != nil && (!exists || existing.etag != aws.ToString(in.IfMatch)) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.seq++
	etag := fmt.Sprintf("\"etag-%d\"", f.seq)
	f.objects[key] = fakeObject{body: body, etag: etag}
	return &s3.PutObjectOutput{ETag: aws.String(etag)}, nil
}

func TestOptions_ObjectKey(t *testing.T) {
	assert.Equal(t, "data.json", Options{}.ObjectKey())
	assert.Equal(t, "zen/accounts/data.json", Options{KeyPrefix: "/zen/accounts/"}.ObjectKey())
}

func TestNewS3DirectoryRepository_RequiresBucket(t *testing.T) {
	_, err := NewS3DirectoryRepository(newFakeS3(), Options{})
	assert.Error(t, err)
}

func TestS3DirectoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	repo, err := NewS3DirectoryRepository(client, Options{Bucket: "b", KeyPrefix: "zen"})
	require.NoError(t, err)

	_, err = repo.Load(ctx)
	require.ErrorIs(t, err, repository.ErrNotInitialized)

	require.NoError(t, repo.Init(ctx))
	require.NoError(t, repo.Init(ctx), "second init must not overwrite")

	dir, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, dir.Users)
	assert.Equal(t, "\"etag-1\"", dir.Revision)

	dir.Add(domain.UserRecord{Name: "df", Username: "zen", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, repo.Save(ctx, dir))
	assert.Equal(t, "\"etag-2\"", dir.Revision)

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, dir.Users, got.Users)
	assert.Equal(t, int64(1), got.TotalCount)
}

func TestS3DirectoryRepository_StaleSaveConflicts(t *testing.T) {
	ctx := context.Background()
	repo, err := NewS3DirectoryRepository(newFakeS3(), Options{Bucket: "b"})
	require.NoError(t, err)
	require.NoError(t, repo.Init(ctx))

	a, err := repo.Load(ctx)
	require.NoError(t, err)
	b, err := repo.Load(ctx)
	require.NoError(t, err)

	a.Add(domain.UserRecord{Email: "a@x.com"})
	require.NoError(t, repo.Save(ctx, a))

	b.Add(domain.UserRecord{Email: "b@x.com"})
	assert.ErrorIs(t, repo.Save(ctx, b), repository.ErrRevisionConflict)
	assert.ErrorIs(t, repo.Save(ctx, &domain.UserDirectory{}), repository.ErrRevisionConflict)
}

func TestS3DirectoryRepository_LoadError(t *testing.T) {
	client := newFakeS3()
	client.getErr = errors.New("network down")
	repo, err := NewS3DirectoryRepository(client, Options{Bucket: "b"})
	require.NoError(t, err)

	_, err = repo.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotInitialized)
}
