package payload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client is the subset of the S3 API used by S3Arena.
type S3Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Arena serves reads from an S3 object using ranged GET requests, so that a
// random access query only transfers the bytes it addresses.
type S3Arena struct {
	ctx    context.Context //nolint:containedctx // io.ReaderAt has no context parameter
	client S3Client
	bucket string
	key    string
	size   int64
}

var _ Arena = (*S3Arena)(nil)

// NewS3Arena resolves the object size with HeadObject and returns an arena over it.
//
// The context is used for every subsequent ReadAt call.
func NewS3Arena(ctx context.Context, client S3Client, bucket, key string) (*S3Arena, error) {
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}

	size := aws.ToInt64(out.ContentLength)
	if size < 0 {
		return nil, fmt.Errorf("head s3://%s/%s: negative content length %d", bucket, key, size)
	}

	return &S3Arena{ctx: ctx, client: client, bucket: bucket, key: key, size: size}, nil
}

// OpenS3 loads the default AWS configuration and opens an arena over s3://bucket/key.
func OpenS3(ctx context.Context, bucket, key string, optFns ...func(*s3.Options)) (*S3Arena, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3Arena(ctx, s3.NewFromConfig(cfg, optFns...), bucket, key)
}

// Size returns the object length.
func (a *S3Arena) Size() int64 {
	return a.size
}

// ReadAt fetches len(p) bytes starting at off with a single ranged GET.
func (a *S3Arena) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("payload: negative offset %d", off)
	}
	if off >= a.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	want := p
	if rem := a.size - off; int64(len(p)) > rem {
		want = p[:rem]
	}

	out, err := a.client.GetObject(a.ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+int64(len(want))-1)),
	})
	if err != nil {
		return 0, fmt.Errorf("get s3://%s/%s at %d: %w", a.bucket, a.key, off, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, want)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}
