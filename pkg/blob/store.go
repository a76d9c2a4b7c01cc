// Package blob provides key-addressed storage of JSON artifacts in a
// single S3 bucket. Keys are case-sensitive and slash-delimited; callers
// own the naming scheme. No caching, no versioning.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Sentinel errors for blob operations.
var (
	// ErrNotFound indicates the key does not exist in the bucket.
	ErrNotFound = errors.New("artifact not found")

	// ErrCorruptArtifact indicates the stored object is not valid JSON.
	ErrCorruptArtifact = errors.New("corrupt artifact")

	// ErrStorageUnavailable indicates a transport-level failure talking
	// to the object store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSerialization indicates the value could not be encoded as JSON.
	ErrSerialization = errors.New("serialization error")
)

// ObjectAPI is the subset of the S3 client used by Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store is the blob store adapter over a single bucket.
type Store struct {
	client ObjectAPI
	bucket string
}

// NewStore creates a blob store for the given bucket.
func NewStore(client ObjectAPI, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Put serializes value to JSON and stores it under key, returning the key.
func (s *Store) Put(ctx context.Context, key string, value any) (string, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %v", ErrStorageUnavailable, key, err)
	}
	return key, nil
}

// Get fetches and parses the JSON object stored under key.
func (s *Store) Get(ctx context.Context, key string) (map[string]any, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrStorageUnavailable, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, key, err)
	}

	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArtifact, key, err)
	}
	return value, nil
}

// isNotFound classifies S3 missing-key errors (NoSuchKey from GetObject,
// NotFound from HeadObject-style responses).
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
