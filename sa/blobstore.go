package sa

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// NewS3Client loads the default AWS credential chain (environment,
// shared config, EC2/ECS role) for region and returns a ready-to-use S3
// client for NewBlobStore.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, pkderrors.ConfigError("loading AWS config: %s", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// BlobStore archives the raw bytes of every file the ingest pipeline
// (C3) accepts, keyed by content hash, so a later audit or reprocessing
// pass can retrieve exactly what was uploaded without depending on the
// operator's own filesystem retention. core.UploadedFile.BlobKey points
// back into this store.
type BlobStore struct {
	client *s3.Client
	bucket string
}

// NewBlobStore constructs a BlobStore over an already-configured S3
// client and bucket.
func NewBlobStore(client *s3.Client, bucket string) *BlobStore {
	return &BlobStore{client: client, bucket: bucket}
}

// Put uploads data under a key derived from contentHash and returns that
// key for storage in UploadedFile.BlobKey.
func (b *BlobStore) Put(ctx context.Context, contentHash string, data []byte) (string, error) {
	key := blobKey(contentHash)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", pkderrors.NetworkError("archiving upload %s to object storage: %s", contentHash, err)
	}
	return key, nil
}

// Get retrieves the raw bytes previously archived under key.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, pkderrors.NotFoundError("blob %s not found in object storage: %s", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, pkderrors.NetworkError("reading blob %s from object storage: %s", key, err)
	}
	return data, nil
}

func blobKey(contentHash string) string {
	return fmt.Sprintf("uploads/%s/%s", contentHash[:2], contentHash)
}
