// Package attachment stores task attachment images in an S3 bucket.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"todoapi/internal/config"
)

// ErrMalformedObjectURL is returned when an attachment URL carries no object id.
var ErrMalformedObjectURL = errors.New("malformed object url")

// S3Store issues pre-signed upload URLs for and deletes objects in one bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expires time.Duration
}

// New creates an S3Store from the default AWS credential chain. Requests are
// attempted once. When cfg.Endpoint is set the client uses it with path style
// addressing.
func New(ctx context.Context, cfg config.Attachments) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, cfg.Bucket, cfg.URLExpiration), nil
}

// NewS3Store creates an S3Store over an existing client.
func NewS3Store(client *s3.Client, bucket string, expires time.Duration) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		expires: expires,
	}
}

// UploadURL returns a URL that permits a single PUT of objectID until it
// expires.
func (s *S3Store) UploadURL(ctx context.Context, objectID string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", objectID, err)
	}
	return req.URL, nil
}

// ObjectURL returns the canonical public URL of objectID.
func (s *S3Store) ObjectURL(objectID string) string {
	return "https://" + s.bucket + ".s3.amazonaws.com/" + objectID
}

// Delete removes the object referenced by objectURL. A missing object is not
// an error.
func (s *S3Store) Delete(ctx context.Context, objectURL string) error {
	objectID, err := ObjectID(objectURL)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", objectID, err)
	}
	return nil
}

// ObjectID extracts the object id from a URL of the form
// https://<bucket>.s3.amazonaws.com/<objectId>. The id is the first path
// segment; the host is not checked.
func ObjectID(objectURL string) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedObjectURL, err)
	}
	id, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedObjectURL, objectURL)
	}
	return id, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
