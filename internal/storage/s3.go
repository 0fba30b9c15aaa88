package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"zen-accounts/internal/domain"
	"zen-accounts/internal/repository"
)

// S3DirectoryRepository keeps the user directory snapshot as a single JSON object
// in Amazon S3 (or a compatible API). The object ETag is used as the revision and
// writes are conditional on it.
type S3DirectoryRepository struct {
	client ObjectAPI
	opts   Options
}

func NewS3DirectoryRepository(client ObjectAPI, opts Options) (*S3DirectoryRepository, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	return &S3DirectoryRepository{client: client, opts: opts}, nil
}

func (r *S3DirectoryRepository) Init(ctx context.Context) error {
	body, err := json.Marshal(domain.NewUserDirectory())
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.opts.Bucket),
		Key:         aws.String(r.opts.ObjectKey()),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		if isPreconditionFailure(err) {
			return nil
		}
		return fmt.Errorf("bootstrap directory object: %w", err)
	}
	return nil
}

func (r *S3DirectoryRepository) Load(ctx context.Context) (*domain.UserDirectory, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(r.opts.ObjectKey()),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, repository.ErrNotInitialized
		}
		return nil, fmt.Errorf("get directory object: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read directory object: %w", err)
	}

	var dir domain.UserDirectory
	if err := json.Unmarshal(body, &dir); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}
	dir.Revision = aws.ToString(out.ETag)
	return &dir, nil
}

func (r *S3DirectoryRepository) Save(ctx context.Context, dir *domain.UserDirectory) error {
	if dir.Revision == "" {
		return fmt.Errorf("%w: missing etag", repository.ErrRevisionConflict)
	}

	body, err := json.Marshal(dir)
	if err != nil {
		return fmt.Errorf("encode directory: %w", err)
	}

	out, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.opts.Bucket),
		Key:         aws.String(r.opts.ObjectKey()),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfMatch:     aws.String(dir.Revision),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		if isPreconditionFailure(err) {
			return repository.ErrRevisionConflict
		}
		return fmt.Errorf("put directory object: %w", err)
	}

	dir.Revision = aws.ToString(out.ETag)
	return nil
}

// isPreconditionFailure reports whether S3 rejected a conditional write.
func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

var _ repository.DirectoryRepository = (*S3DirectoryRepository)(nil)
