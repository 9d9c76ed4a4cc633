// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package s3 adapts the teacher's CSV-export multipart uploader into the
// engine's two S3 use sites: uploading a dry-run report artifact (Uploader)
// and streaming a CSV-from-S3 source's object body (Downloader, satisfying
// internal/source's S3Downloader). Retries use internal/retry's
// backoff-based policy instead of the teacher's hand-rolled doubling loops.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/dataforge/migrator/internal/config"
	"github.com/dataforge/migrator/internal/retry"
)

// newAWSConfig loads the AWS SDK config for conn, honoring AWS_ENDPOINT_URL
// for LocalStack-style testing the way the teacher's uploader did.
func newAWSConfig(ctx context.Context, conn config.ConnectionConfig, log *zap.Logger) (awsSDKConfig, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(conn.AWSRegion)}
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(endpoint))
		log.Info("using custom S3 endpoint", zap.String("endpoint", endpoint))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awsSDKConfig{}, fmt.Errorf("s3: load AWS config: %w", err)
	}
	usePathStyle := os.Getenv("AWS_ENDPOINT_URL") != ""
	return awsSDKConfig{cfg: cfg, usePathStyle: usePathStyle}, nil
}

type awsSDKConfig struct {
	cfg          aws.Config
	usePathStyle bool
}

func (a awsSDKConfig) client() *s3.Client {
	return s3.NewFromConfig(a.cfg, func(o *s3.Options) { o.UsePathStyle = a.usePathStyle })
}

// Uploader uploads dry-run report artifacts and staged CSV output to conn's
// bucket, with automatic multipart handling for large bodies.
type Uploader struct {
	client *s3.Client
	mgr    *manager.Uploader
	bucket string
	log    *zap.Logger
	policy retry.Policy
}

// NewUploader builds an Uploader for conn (ConnCSVS3 or any connection
// carrying an S3Bucket).
func NewUploader(ctx context.Context, conn config.ConnectionConfig, log *zap.Logger) (*Uploader, error) {
	sdkCfg, err := newAWSConfig(ctx, conn, log)
	if err != nil {
		return nil, err
	}
	client := sdkCfg.client()
	mgr := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 3
	})
	return &Uploader{client: client, mgr: mgr, bucket: conn.S3Bucket, log: log, policy: retry.DefaultPolicy()}, nil
}

// UploadFile uploads a local file to key, retrying transient failures per
// internal/retry's default policy.
func (u *Uploader) UploadFile(ctx context.Context, path, key string) error {
	return retry.Do(ctx, u.policy, u.log, "s3.upload_file", func(ctx context.Context) error {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("s3: open %s: %w", path, err)
		}
		defer file.Close()

		_, err = u.mgr.Upload(ctx, &s3.PutObjectInput{Bucket: aws.String(u.bucket), Key: aws.String(key), Body: file})
		if err != nil {
			return fmt.Errorf("s3: upload %s: %w", key, err)
		}
		return nil
	})
}

// UploadBytes uploads an in-memory artifact (e.g. a DryRunReport's JSON
// encoding) to key.
func (u *Uploader) UploadBytes(ctx context.Context, data []byte, key string) error {
	return retry.Do(ctx, u.policy, u.log, "s3.upload_bytes", func(ctx context.Context) error {
		_, err := u.mgr.Upload(ctx, &s3.PutObjectInput{Bucket: aws.String(u.bucket), Key: aws.String(key), Body: bytes.NewReader(data)})
		if err != nil {
			return fmt.Errorf("s3: upload %s: %w", key, err)
		}
		return nil
	})
}

func (u *Uploader) abortMultipartUpload(ctx context.Context, key string, uploadID *string) {
	if uploadID == nil {
		return
	}
	if _, err := u.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket: aws.String(u.bucket), Key: aws.String(key), UploadId: uploadID,
	}); err != nil {
		u.log.Error("failed to abort multipart upload", zap.String("upload_id", *uploadID), zap.Error(err))
	}
}

// MultipartUploadStream streams a part at a time to S3, one part per
// migration batch, so a hash-partitioned item's CSV output never needs to
// be buffered in full before upload.
type MultipartUploadStream struct {
	uploader   *Uploader
	key        string
	uploadID   *string
	parts      []types.CompletedPart
	partNumber int32
	log        *zap.Logger
}

// NewMultipartUploadStream initiates a streaming multipart upload to key.
func (u *Uploader) NewMultipartUploadStream(ctx context.Context, key string) (*MultipartUploadStream, error) {
	out, err := u.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.bucket), Key: aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create multipart upload %s: %w", key, err)
	}
	u.log.Info("initiated multipart upload stream", zap.String("key", key), zap.String("upload_id", *out.UploadId))
	return &MultipartUploadStream{uploader: u, key: key, uploadID: out.UploadId, partNumber: 1, log: u.log}, nil
}

// UploadPart uploads one batch's serialized rows as the stream's next part.
func (m *MultipartUploadStream) UploadPart(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var out *s3.UploadPartOutput
	err := retry.Do(ctx, m.uploader.policy, m.log, "s3.upload_part", func(ctx context.Context) error {
		var uploadErr error
		out, uploadErr = m.uploader.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket: aws.String(m.uploader.bucket), Key: aws.String(m.key),
			PartNumber: aws.Int32(m.partNumber), UploadId: m.uploadID, Body: bytes.NewReader(data),
		})
		return uploadErr
	})
	if err != nil {
		m.uploader.abortMultipartUpload(ctx, m.key, m.uploadID)
		return fmt.Errorf("s3: upload part %d of %s: %w", m.partNumber, m.key, err)
	}
	m.parts = append(m.parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(m.partNumber)})
	m.partNumber++
	return nil
}

// Complete finalizes the multipart upload after every part has landed.
func (m *MultipartUploadStream) Complete(ctx context.Context) error {
	if len(m.parts) == 0 {
		m.uploader.abortMultipartUpload(ctx, m.key, m.uploadID)
		return fmt.Errorf("s3: no parts uploaded for %s", m.key)
	}
	_, err := m.uploader.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket: aws.String(m.uploader.bucket), Key: aws.String(m.key), UploadId: m.uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: m.parts},
	})
	if err != nil {
		m.uploader.abortMultipartUpload(ctx, m.key, m.uploadID)
		return fmt.Errorf("s3: complete multipart upload %s: %w", m.key, err)
	}
	m.log.Info("completed multipart upload", zap.String("key", m.key), zap.Int32("parts", m.partNumber-1))
	return nil
}

// Abort cancels the multipart upload, e.g. on a canceled run.
func (m *MultipartUploadStream) Abort(ctx context.Context) { m.uploader.abortMultipartUpload(ctx, m.key, m.uploadID) }

// Downloader streams an S3 object's body for internal/source's CSVSource,
// the inverse of Uploader: instead of pushing parts up, Fetch reads
// whatever io.Reader S3 hands back and lets CSVSource's own row-by-row
// pagination throttle how much is consumed.
type Downloader struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
	policy retry.Policy
}

// NewDownloader builds a Downloader for conn.
func NewDownloader(ctx context.Context, conn config.ConnectionConfig, log *zap.Logger) (*Downloader, error) {
	sdkCfg, err := newAWSConfig(ctx, conn, log)
	if err != nil {
		return nil, err
	}
	return &Downloader{client: sdkCfg.client(), bucket: conn.S3Bucket, log: log, policy: retry.DefaultPolicy()}, nil
}

// Download implements internal/source's S3Downloader, retrying transient
// GetObject failures before the body stream is ever handed to the caller.
func (d *Downloader) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := retry.Do(ctx, d.policy, d.log, "s3.download", func(ctx context.Context) error {
		out, err := d.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(key)})
		if err != nil {
			return fmt.Errorf("s3: get object %s: %w", key, err)
		}
		body = out.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
