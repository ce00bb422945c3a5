// Package sthree implements the storage.Store capability interface on
// top of an S3 bucket.
package sthree

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/tarpack/tarpack/pkg/errors"
	"github.com/tarpack/tarpack/pkg/storage"
	"github.com/tarpack/tarpack/pkg/storage/status"
)

const pageSize = 1000

// Option configures an S3 backed store
type Option func(*s3FS)

// Bucket sets the bucket for this store
func Bucket(bucket string) Option {
	return func(fs *s3FS) {
		fs.bucket = bucket
	}
}

// AWSConfig sets the AWS client configuration (region, credentials, endpoint)
func AWSConfig(cfg *aws.Config) Option {
	return func(fs *s3FS) {
		fs.awsConfig = cfg
	}
}

// New creates an S3 backed object store
func New(opts ...Option) storage.Store {
	fs := new(s3FS)
	for _, apply := range opts {
		apply(fs)
	}
	fs.s3 = s3.New(session.Must(session.NewSession(fs.awsConfig)))
	fs.uploader = s3manager.NewUploaderWithClient(fs.s3)
	return fs
}

type s3FS struct {
	bucket    string
	awsConfig *aws.Config
	s3        *s3.S3
	uploader  *s3manager.Uploader
}

// classify maps AWS SDK failures onto the storage status taxonomy so the
// executor can decide what is worth retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if request.IsErrorThrottle(err) || request.IsErrorRetryable(err) {
		return status.ErrTransient.Wrap(err)
	}
	if rerr, ok := err.(awserr.RequestFailure); ok {
		switch {
		case rerr.StatusCode() == 404:
			return status.ErrNotExists.Wrap(err)
		case rerr.StatusCode() == 403:
			return status.ErrForbidden.Wrap(err)
		case rerr.StatusCode() >= 500:
			return status.ErrTransient.Wrap(err)
		}
	}
	return status.ErrStorageAPI.Wrap(err)
}

func (s *s3FS) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cerr := classify(err)
		if errors.Is(cerr, status.ErrNotExists) {
			return false, nil
		}
		return false, cerr
	}
	return true, nil
}

func (s *s3FS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	return obj.Body, nil
}

// Put uploads an object. S3 has no compare-and-swap primitive in this API
// generation, so exclusive puts degrade to a Has probe followed by the
// upload; the manifest layer's drift check covers the remaining window.
func (s *s3FS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if exclusive {
		has, err := s.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists
		}
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   source,
	})
	return classify(err)
}

func (s *s3FS) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return classify(err)
}

func (s *s3FS) Keys(ctx context.Context) ([]string, error) {
	return storage.AllKeysPrefix(ctx, s, "")
}

func (s *s3FS) KeysPrefix(ctx context.Context, token, prefix, delimiter string, count int) ([]string, string, error) {
	if count <= 0 || count > pageSize {
		count = pageSize
	}
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int64(int64(count)),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	out, err := s.s3.ListObjectsV2WithContext(ctx, in)
	if err != nil {
		return nil, "", classify(err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.StringValue(obj.Key))
	}
	return keys, aws.StringValue(out.NextContinuationToken), nil
}

func (s *s3FS) Size(ctx context.Context, key string) (int64, error) {
	head, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classify(err)
	}
	return aws.Int64Value(head.ContentLength), nil
}

func (s *s3FS) String() string {
	return fmt.Sprintf("s3@%s", s.bucket)
}
