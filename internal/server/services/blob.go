package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/emezins/carevault/internal/server/config"
)

const presignValidity = 15 * time.Minute

// BlobService hands out presigned S3 URLs for encrypted attachment
// blobs. Clients encrypt before uploading and reference the storage key
// from a property value, so the blob store holds ciphertext only.
type BlobService struct {
	config *config.Config
}

func NewBlobService(cfg *config.Config) *BlobService {
	return &BlobService{config: cfg}
}

// RandomStorageKey produces a date-partitioned key for a new blob.
func RandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("entities/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *BlobService) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return s3.NewPresignClient(client), nil
}

// PresignedPutURL returns a fresh storage key and a URL the client may
// upload one encrypted blob to.
func (s *BlobService) PresignedPutURL(ctx context.Context) (string, string, error) {
	presignClient, err := s.presignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := RandomStorageKey()

	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// PresignedGetURL returns a download URL for an existing blob.
func (s *BlobService) PresignedGetURL(ctx context.Context, key string) (string, error) {
	presignClient, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
