package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	appcfg "github.com/vibast-solutions/ms-go-user/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MediaUploader is the third-party media-host collaborator: it stores an
// uploaded asset and returns its public URL.
type MediaUploader interface {
	Upload(ctx context.Context, file io.Reader, filename string) (string, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(client *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return client.PutObject(ctx, in)
	}
)

// S3MediaUploader stores assets in an S3-compatible bucket (MinIO in
// development) under a random per-upload key.
type S3MediaUploader struct {
	client *s3.Client
	media  appcfg.MediaConfig
}

func NewS3MediaUploader(ctx context.Context, media appcfg.MediaConfig) (*S3MediaUploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(media.Region),
	}
	if media.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(media.AccessKeyID, media.SecretAccessKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if media.Endpoint != "" {
			o.BaseEndpoint = aws.String(media.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3MediaUploader{client: client, media: media}, nil
}

func (u *S3MediaUploader) Upload(ctx context.Context, file io.Reader, filename string) (string, error) {
	key := randomObjectKey(filename)

	_, err := putObject(u.client, ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.media.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", err
	}

	return u.publicURL(key), nil
}

func (u *S3MediaUploader) publicURL(key string) string {
	if u.media.PublicBaseURL != "" {
		return strings.TrimRight(u.media.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.media.Bucket, u.media.Region, key)
}

func randomObjectKey(filename string) string {
	d := time.Now()
	return fmt.Sprintf("media/%d/%02d/%v%s", d.Year(), d.Month(), uuid.New(), path.Ext(filename))
}
