// Package objstore uploads the enriched table to an S3-compatible bucket.
package objstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"actpipe/internal/export"
	"actpipe/internal/model"
)

var contentTypes = map[string]string{
	export.FormatJSON:    "application/json",
	export.FormatCSV:     "text/csv",
	export.FormatParquet: "application/octet-stream",
}

// objectClient is the subset of *minio.Client used here.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object name.
	Prefix string
}

type Uploader struct {
	client    objectClient
	bucket    string
	prefix    string
	log       *slog.Logger
	removeAll func(string) error
}

func New(cfg Config, log *slog.Logger) (*Uploader, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return NewWith(mc, cfg.Bucket, cfg.Prefix, log), nil
}

// NewWith is only for tests to inject a fake client.
func NewWith(c objectClient, bucket, prefix string, log *slog.Logger) *Uploader {
	return &Uploader{client: c, bucket: bucket, prefix: prefix, log: log, removeAll: os.RemoveAll}
}

// EnsureBucket creates the bucket when it does not exist.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	ok, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", u.bucket, err)
	}
	if ok {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", u.bucket, err)
	}
	u.log.Info("created bucket", "bucket", u.bucket)
	return nil
}

// Upload serializes records with each writer into a temporary directory and puts
// the files into the bucket. The temporary directory is always removed; a failed
// removal is logged and never replaces the upload error.
func (u *Uploader) Upload(ctx context.Context, records []model.EnrichedRecord, writers []export.Writer) ([]string, error) {
	if err := u.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "actpipe-upload-")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	var objects []string
	defer func() {
		if rerr := u.removeAll(tmp); rerr != nil {
			u.log.Warn("temp dir cleanup failed", "dir", tmp, "error", rerr)
		}
	}()

	for _, w := range writers {
		name := export.FileName(w)
		path := filepath.Join(tmp, name)
		if err := w.Write(ctx, path, records); err != nil {
			return objects, fmt.Errorf("serialize %s: %w", w.Format(), err)
		}
		object := u.prefix + name
		ct, ok := contentTypes[w.Format()]
		if !ok {
			ct = "application/octet-stream"
		}
		info, err := u.client.FPutObject(ctx, u.bucket, object, path, minio.PutObjectOptions{ContentType: ct})
		if err != nil {
			return objects, fmt.Errorf("upload %s: %w", object, err)
		}
		u.log.Info("uploaded object", "bucket", u.bucket, "object", object, "bytes", info.Size)
		objects = append(objects, object)
	}
	return objects, nil
}
