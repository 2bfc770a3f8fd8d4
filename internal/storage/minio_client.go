package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dae2blend/internal/config"
)

const ProjectContentType = "application/x-blender"

// NewMinioClient initializes a MinIO client and ensures the bucket exists.
func NewMinioClient(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*minio.Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create minio client")
	}
	exists, err := minioClient.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "could not check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "could not create bucket %s", cfg.Bucket)
		}
		if logger != nil {
			logger.Info("created bucket", zap.String("bucket", cfg.Bucket))
		}
	}
	return minioClient, nil
}

// ObjectKey is <prefix>/<conversion id>/<file name>.
func ObjectKey(prefix, conversionID, file string) string {
	prefix = strings.Trim(prefix, "/")
	return path.Join(prefix, conversionID, filepath.Base(file))
}

// Publisher uploads finished project files.
type Publisher struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

func NewPublisher(client *minio.Client, cfg config.StorageConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With(zap.String("component", "publisher")),
	}
}

// Publish uploads the project at file and returns its object key.
func (p *Publisher) Publish(ctx context.Context, conversionID, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", errors.Wrap(err, "could not open project file")
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return "", errors.Wrap(err, "could not stat project file")
	}

	key := ObjectKey(p.prefix, conversionID, file)
	body := newCountingReader(f)
	start := time.Now()
	info, err := p.client.PutObject(ctx, p.bucket, key, body, stat.Size(), minio.PutObjectOptions{
		ContentType:  ProjectContentType,
		UserMetadata: map[string]string{"conversion-id": conversionID},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to upload to MinIO")
	}
	read, readTime := body.Stats()
	p.logger.Info("project published",
		zap.String("bucket", p.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size),
		zap.Int64("read_bytes", read),
		zap.Duration("read_time", readTime),
		zap.Duration("elapsed", time.Since(start)),
	)
	return key, nil
}
