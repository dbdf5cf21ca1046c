package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"rapidphoto/internal/config"
)

// Signer issues time-limited URLs that let clients talk to object storage
// directly. Pure and stateless beyond the signing call itself; the
// coordinator never hands it anything but keys and filenames.
type Signer interface {
	// SignUploadURL returns a presigned PUT URL for the given key
	SignUploadURL(ctx context.Context, key, contentType string) (string, error)

	// SignDownloadURL returns a presigned GET URL for the given key
	SignDownloadURL(ctx context.Context, key string) (string, error)

	// Exists checks whether an object is present at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at the given key
	Delete(ctx context.Context, key string) error

	// BuildKey derives the storage key for a photo
	BuildKey(ownerID, photoID, filename string) string

	TestConnection() error
}

type s3Signer struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func NewSigner(cfg config.S3Config) (Signer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)

	return &s3Signer{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     time.Duration(cfg.PresignTTLMinutes) * time.Minute,
	}, nil
}

func (s *s3Signer) SignUploadURL(ctx context.Context, key, contentType string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign PUT object: %w", err)
	}

	return req.URL, nil
}

func (s *s3Signer) SignDownloadURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign GET object: %w", err)
	}

	return req.URL, nil
}

func (s *s3Signer) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// HeadObject on a missing key surfaces as an error; treat any
		// failure as "not there" the way the upstream service does
		log.Debug().Err(err).Str("key", key).Msg("HeadObject miss")
		return false, nil
	}

	return true, nil
}

func (s *s3Signer) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to delete object")
		return err
	}

	log.Debug().Str("key", key).Msg("Deleted object")
	return nil
}

// BuildKey follows the pattern uploads/{ownerId}/{photoId}-{filename},
// sanitizing the filename to prevent path traversal
func (s *s3Signer) BuildKey(ownerID, photoID, filename string) string {
	sanitized := unsafeKeyChars.ReplaceAllString(filename, "_")
	return fmt.Sprintf("uploads/%s/%s-%s", ownerID, photoID, sanitized)
}

func (s *s3Signer) TestConnection() error {
	// List a single key to verify credentials and bucket access
	_, err := s.client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Msg("AWS S3 Test Connection")

	return err
}
