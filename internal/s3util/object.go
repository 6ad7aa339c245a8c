// Package s3util implements the intake object store on top of S3: reading
// landing objects and moving them into the valid or invalid archive.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/fpang/doc-intake/internal/intake"
)

// S3API is the subset of the S3 client used by ObjectStore.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ObjectStore implements intake.ObjectStore.
type ObjectStore struct {
	client S3API
}

// NewObjectStore wraps an S3 client.
func NewObjectStore(client S3API) *ObjectStore {
	return &ObjectStore{client: client}
}

// Read downloads the whole object into memory. A missing object yields
// intake.ErrObjectNotFound.
func (s *ObjectStore) Read(ctx context.Context, ref intake.ObjectRef) ([]byte, error) {
	log.Debug().Str("bucket", ref.Bucket).Str("key", ref.Key).Msg("Reading from S3")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ref, intake.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

// Move copies src to dst, tagging the copy with the decision, then deletes
// src. The two calls are not atomic: a failed delete leaves both copies.
func (s *ObjectStore) Move(ctx context.Context, src, dst intake.ObjectRef, decision intake.Decision) error {
	start := time.Now()
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:           aws.String(dst.Bucket),
		Key:              aws.String(dst.Key),
		CopySource:       aws.String(copySource(src)),
		Tagging:          aws.String(Tagging(decision)),
		TaggingDirective: s3types.TaggingDirectiveReplace,
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", src, intake.ErrObjectNotFound)
		}
		return fmt.Errorf("S3 CopyObject %s -> %s: %w", src, dst, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	}); err != nil {
		return fmt.Errorf("S3 DeleteObject %s: %w", src, err)
	}

	log.Info().
		Str("from", src.String()).
		Str("to", dst.String()).
		Str("decision", string(decision)).
		Dur("duration", time.Since(start)).
		Msg("Object moved")
	return nil
}

// copySource builds the CopySource value: bucket name followed by the
// URL-encoded key, with path separators preserved.
func copySource(ref intake.ObjectRef) string {
	segments := strings.Split(ref.Key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return ref.Bucket + "/" + strings.Join(segments, "/")
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
