package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	bucketName string
	key        string
	client     S3Client
}

func NewS3Uploader(dstPath string, cfg aws.Config) (*S3Uploader, error) {
	// Remove the "s3://" prefix if it exists.
	dstPath = strings.TrimPrefix(dstPath, "s3://")

	// Separate the bucket name and key
	index := strings.Index(dstPath, "/")
	if index == -1 {
		return nil, fmt.Errorf("invalid S3 path: %s", dstPath)
	}
	bucketName := dstPath[:index]
	key := strings.TrimSuffix(dstPath[index+1:], "/")

	return &S3Uploader{
		client:     s3.NewFromConfig(cfg),
		bucketName: bucketName,
		key:        key,
	}, nil
}

// Upload streams the file at localPath to key/<file name>.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucketName),
		Key:           aws.String(u.objectKey(localPath)),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3, %w", err)
	}

	return nil
}

func (u *S3Uploader) objectKey(localPath string) string {
	name := filepath.Base(localPath)
	if u.key == "" {
		return name
	}

	return path.Join(u.key, name)
}

func contentType(localPath string) string {
	if filepath.Ext(localPath) == ".csv" {
		return "text/csv"
	}

	return "application/octet-stream"
}
