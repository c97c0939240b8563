package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/caremesh/medledger/internal/model"
)

// objectStore is the slice of the MinIO API the archive needs; it exists so
// tests can run without a server.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type clientWrapper struct{ c *minio.Client }

func (w clientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}
func (w clientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}
func (w clientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}
func (w clientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}
func (w clientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}
func (w clientWrapper) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return w.c.StatObject(ctx, bucketName, objectName, opts)
}

var _ model.Archive = (*Archive)(nil)

// Archive keeps the full JSON payloads of anchored documents off the ledger,
// keyed by document hash. Contracts only carry hashes; the archive is where
// the documents themselves live.
type Archive struct {
	api    objectStore
	bucket string
}

// NewArchive creates an archive on top of a real MinIO client.
func NewArchive(ctx context.Context, client *minio.Client, bucket string) (*Archive, error) {
	return NewArchiveWithStore(ctx, clientWrapper{c: client}, bucket)
}

// NewArchiveWithStore allows injecting a fake object store (used in tests).
func NewArchiveWithStore(ctx context.Context, api objectStore, bucket string) (*Archive, error) {
	a := &Archive{
		api:    api,
		bucket: bucket,
	}

	if err := a.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return a, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.api.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := a.api.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// objectKey maps a document hash to its location in the bucket.
func objectKey(hash string) string {
	return "payloads/" + hash + ".json"
}

// Upload stores the payload under its document hash. Re-anchoring the same
// document overwrites the object with identical content, so uploads are
// idempotent.
func (a *Archive) Upload(ctx context.Context, hash string, reader io.Reader) error {
	_, err := a.api.PutObject(ctx, a.bucket, objectKey(hash), reader, -1, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload payload: %w", err)
	}
	return nil
}

// Download returns the archived payload for a document hash.
func (a *Archive) Download(ctx context.Context, hash string) (io.ReadCloser, error) {
	obj, err := a.api.GetObject(ctx, a.bucket, objectKey(hash), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}
	return obj, nil
}

// Delete removes the archived payload for a document hash.
func (a *Archive) Delete(ctx context.Context, hash string) error {
	if err := a.api.RemoveObject(ctx, a.bucket, objectKey(hash), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete payload: %w", err)
	}
	return nil
}

// Exists reports whether a payload is archived for the document hash.
func (a *Archive) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := a.api.StatObject(ctx, a.bucket, objectKey(hash), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat payload: %w", err)
	}
	return true, nil
}
