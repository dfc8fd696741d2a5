package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ Target = (*S3)(nil)

// S3 stores snapshots in an S3-compatible bucket (AWS S3 or MinIO). Single
// bucket, keys prefixed so one bucket can hold unrelated data.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds explicit construction parameters (mostly for tests). For
// production the default credentials chain applies.
type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string // key prefix, default "labstock/"
	Endpoint        string // optional; enables a custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	PathStyle       bool
}

// NewS3 creates an S3 backup target from config.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "labstock/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// OpenS3FromEnv constructs an S3 target from process environment:
//
//	LABSTOCK_BACKUP_S3_BUCKET=<bucket> (required)
//	LABSTOCK_BACKUP_S3_REGION=<region> (default us-east-1)
//	LABSTOCK_BACKUP_S3_PREFIX=<key prefix> (default labstock/)
//	LABSTOCK_BACKUP_S3_ENDPOINT=<url> (optional, for MinIO)
//	LABSTOCK_BACKUP_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY (optional)
func OpenS3FromEnv(ctx context.Context) (*S3, error) {
	bucket := os.Getenv("LABSTOCK_BACKUP_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("LABSTOCK_BACKUP_S3_BUCKET required for s3 driver")
	}
	return NewS3(ctx, S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("LABSTOCK_BACKUP_S3_REGION"),
		Prefix:    os.Getenv("LABSTOCK_BACKUP_S3_PREFIX"),
		Endpoint:  os.Getenv("LABSTOCK_BACKUP_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("LABSTOCK_BACKUP_S3_PATH_STYLE"), "true"),
	})
}

// Driver identifies the backend.
func (t *S3) Driver() Driver { return DriverS3 }

func (t *S3) objectKey(key string) string { return t.prefix + key }

// Write stores a snapshot object. Emulates create-only via a Head check.
func (t *S3) Write(ctx context.Context, key string, data []byte, metadata map[string]string) (SnapshotInfo, error) {
	if _, err := sanitizeKey(key); err != nil {
		return SnapshotInfo{}, err
	}
	obj := t.objectKey(key)
	if _, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &t.bucket, Key: &obj}); err == nil {
		return SnapshotInfo{}, fmt.Errorf("snapshot %s already exists", key)
	}
	contentType := "text/csv"
	input := &s3.PutObjectInput{
		Bucket:      &t.bucket,
		Key:         &obj,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}
	if _, err := t.client.PutObject(ctx, input); err != nil {
		return SnapshotInfo{}, err
	}
	out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &t.bucket, Key: &obj})
	if err != nil {
		return SnapshotInfo{}, err
	}
	info := SnapshotInfo{Key: key, Size: int64(len(data)), Metadata: out.Metadata}
	if out.LastModified != nil {
		info.CreatedAt = out.LastModified.UTC()
	}
	return info, nil
}

// Fetch returns the snapshot contents.
func (t *S3) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj := t.objectKey(key)
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &t.bucket, Key: &obj})
	if err != nil {
		return nil, ErrNotFound
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// List returns stored snapshots in ascending key order.
func (t *S3) List(ctx context.Context) ([]SnapshotInfo, error) {
	var infos []SnapshotInfo
	var token *string
	for {
		out, err := t.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &t.bucket,
			Prefix:            &t.prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			info := SnapshotInfo{Key: strings.TrimPrefix(aws.ToString(obj.Key), t.prefix)}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			info.CreatedAt = aws.ToTime(obj.LastModified)
			infos = append(infos, info)
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Remove deletes a snapshot. S3 deletes are idempotent, so a Head check
// decides the returned existence flag.
func (t *S3) Remove(ctx context.Context, key string) (bool, error) {
	obj := t.objectKey(key)
	existed := true
	if _, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &t.bucket, Key: &obj}); err != nil {
		existed = false
	}
	if _, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &t.bucket, Key: &obj}); err != nil {
		return false, err
	}
	return existed, nil
}
