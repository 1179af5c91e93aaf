package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements Store on AWS S3.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3 client from the default AWS credential chain.
// Static keys and a custom endpoint (path-style) are applied when set.
func NewS3Store(ctx context.Context, region, endpoint, accessKey, secretKey, bucket string) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, bucket), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentType:        meta.ContentType,
		ContentLanguage:    meta.ContentLanguage,
		ContentDisposition: meta.ContentDisposition,
		ContentEncoding:    meta.ContentEncoding,
		CacheControl:       meta.CacheControl,
		Expires:            meta.CacheExpiry,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	meta := Metadata{
		ContentType:        out.ContentType,
		ContentLanguage:    out.ContentLanguage,
		ContentDisposition: out.ContentDisposition,
		ContentEncoding:    out.ContentEncoding,
		CacheControl:       out.CacheControl,
	}
	if out.ExpiresString != nil {
		if t, err := http.ParseTime(*out.ExpiresString); err == nil {
			meta.CacheExpiry = &t
		}
	}

	return &Object{
		Key:        key,
		Body:       out.Body,
		Size:       aws.ToInt64(out.ContentLength),
		Metadata:   meta,
		ETag:       trimETag(aws.ToString(out.ETag)),
		UploadedAt: aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Summary, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var results []Summary
	pager := s3.NewListObjectsV2Paginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			results = append(results, Summary{
				Key:        aws.ToString(obj.Key),
				Size:       aws.ToInt64(obj.Size),
				UploadedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return results, nil
}

// Delete is idempotent on S3: removing a missing key succeeds.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

var _ Store = (*S3Store)(nil)
