package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/ledgerline/ledgerline/models"
)

// S3Store persists bundle records as JSON objects under:
//
//	s3://<bucket>/<prefix>/cache/<group>/<buster>-<fingerprint>.json
//
// Saves are conditional on the key not existing, so the first writer wins
// and a concurrent duplicate save is ignored.
type S3Store struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Store creates an S3Store. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)

	return &S3Store{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (s *S3Store) objectKey(key models.CacheKey) string {
	name := fmt.Sprintf("%s-%s.json", key.Buster, key.Fingerprint)
	return path.Join(s.prefix, "cache", string(key.Group), name)
}

// Lookup implements Store.
func (s *S3Store) Lookup(ctx context.Context, key models.CacheKey) (*models.ArtifactBundle, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "looking up cache key %s", key)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cache object for key %s", key)
	}

	var bundle models.ArtifactBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, false, errors.Wrapf(err, "decoding cache object for key %s", key)
	}
	return &bundle, true, nil
}

// Save implements Store. The conditional put enforces save-if-absent: an
// existing key fails the precondition and the save is a no-op.
func (s *S3Store) Save(ctx context.Context, bundle *models.ArtifactBundle) error {
	body, err := json.Marshal(bundle)
	if err != nil {
		return errors.Wrap(err, "encoding bundle")
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(bundle.Key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if isPreconditionFailed(err) {
		return nil
	}
	return errors.Wrapf(err, "saving cache key %s", bundle.Key)
}

// isPreconditionFailed reports whether the error is S3 rejecting the
// if-none-match condition, i.e. the key already exists.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
