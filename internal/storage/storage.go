package storage

import (
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"zen-accounts/internal/repository"
)

// ObjectAPI is the subset of the S3 client used to persist the directory snapshot.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options conveys the snapshot object location.
type Options struct {
	Bucket    string
	KeyPrefix string
}

// ObjectKey returns the key of the snapshot object under the configured prefix.
func (o Options) ObjectKey() string {
	prefix := strings.Trim(o.KeyPrefix, "/")
	name := repository.DirectoryKey + ".json"
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
