package archive

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/pkg/errors"
)

// Uploader stores a local file under an object key
type Uploader interface {
	Upload(ctx context.Context, file, key string) error
}

// NewUploader builds the uploader for the configured provider, nil when archiving is off
func NewUploader(ctx context.Context, conf config.Archive) (Uploader, error) {
	switch strings.ToLower(conf.Provider) {
	case "":
		return nil, nil
	case "minio":
		up, err := NewMinioUploader(conf)
		if err != nil {
			return nil, err
		}
		return up, nil
	case "s3":
		up, err := NewS3Uploader(ctx, conf)
		if err != nil {
			return nil, err
		}
		return up, nil
	}
	return nil, errors.Errorf("unknown archive provider %q", conf.Provider)
}

// NewRunID returns a unique identifier for one generator run
func NewRunID() string {
	return uuid.New().String()
}

// ObjectKey lays out <prefix>/<format>/yyyy/mm/dd/<runid>-<file>
func ObjectKey(prefix, format, runID, file string, t time.Time) string {
	return path.Join(strings.Trim(prefix, "/"), format, t.UTC().Format("2006/01/02"), runID+"-"+filepath.Base(file))
}

// Publish uploads file and removes it unless keepLocal is set
func Publish(ctx context.Context, up Uploader, file, key string, keepLocal bool) error {
	if err := up.Upload(ctx, file, key); err != nil {
		return err
	}
	log.Infof("uploaded %s to %s", file, key)
	if !keepLocal {
		if err := os.Remove(file); err != nil {
			log.Warnf("failed to remove %s: %v", file, err)
		}
	}
	return nil
}

func contentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(file, ".parquet"):
		return "application/octet-stream"
	}
	return "text/plain"
}

// MinioUploader writes to any S3 compatible endpoint
type MinioUploader struct {
	client *minio.Client
	bucket string
}

func NewMinioUploader(conf config.Archive) (*MinioUploader, error) {
	if conf.Endpoint == "" || conf.Bucket == "" {
		return nil, errors.New("minio archive needs endpoint and bucket")
	}
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.Ssl,
		Region: conf.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create minio client")
	}
	return &MinioUploader{client: client, bucket: conf.Bucket}, nil
}

func (m *MinioUploader) Upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", file)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", file)
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, f, stat.Size(), minio.PutObjectOptions{ContentType: contentType(file)})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s", key)
	}
	return nil
}

// S3Uploader writes to AWS S3 through the AWS SDK
type S3Uploader struct {
	client *s3.Client
	bucket string
}

func NewS3Uploader(ctx context.Context, conf config.Archive) (*S3Uploader, error) {
	if conf.Bucket == "" {
		return nil, errors.New("s3 archive needs a bucket")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(conf.Region)}
	// without static keys the default chain (env, profile, role) applies
	if conf.AccessKey != "" && conf.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awscredentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load aws config")
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg), bucket: conf.Bucket}, nil
}

func (s *S3Uploader) Upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", file)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", file)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to upload %s to %s", key, s.bucket)
	}
	return nil
}
