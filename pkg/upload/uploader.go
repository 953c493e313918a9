// Package upload ships finished export files to their destination.
package upload

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/tabexport/pkg/destinations"
	"github.com/block/tabexport/pkg/export"
)

type ConfigLoader func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error)

// NewUploader returns the uploader of a destination type. A local destination
// without a destination path needs no uploader and returns nil.
func NewUploader(ctx context.Context, tp string, dstPath string, loader ConfigLoader) (export.Uploader, error) {
	switch tp {
	case destinations.LocalFile.String(), "":
		if dstPath == "" {
			return nil, nil //nolint:nilnil
		}

		return NewFileUploader(dstPath), nil
	case destinations.S3File.String():
		cfg, err := loader(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS SDK config, %w", err)
		}
		s3up, err := NewS3Uploader(dstPath, cfg)
		if err != nil {
			return nil, err
		}

		return s3up, nil
	}

	return nil, fmt.Errorf("unsupported destination type: %s", tp)
}
