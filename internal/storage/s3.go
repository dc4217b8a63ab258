package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for the S3 artifact mirror.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
	KeyPrefix       string // Optional: prefix for all uploaded keys
}

// S3Store wraps LocalStore and mirrors finished job directories to S3.
// Local writes remain the source of truth; the mirror is best effort and
// callers decide whether a mirror failure fails the job.
type S3Store struct {
	*LocalStore
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewS3Store creates an S3Store over the given artifact root.
func NewS3Store(root string, cfg S3Config) (*S3Store, error) {
	local, err := NewLocalStore(root)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		LocalStore: local,
		client:     s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:     cfg.Bucket,
		keyPrefix:  strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

// MirrorDir uploads every regular file under dir to S3, keyed by the path
// relative to root. Upload order follows the directory walk; the first
// failure aborts the mirror.
func (s *S3Store) MirrorDir(ctx context.Context, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		key := filepath.ToSlash(rel)
		if s.keyPrefix != "" {
			key = s.keyPrefix + "/" + key
		}

		f, err := os.Open(path) // #nosec G304 - path comes from our own walk
		if err != nil {
			return fmt.Errorf("open artifact %s: %w", rel, err)
		}
		defer func() { _ = f.Close() }()

		if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("upload %s to S3: %w", key, err)
		}
		return nil
	})
}
