package s3util

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fpang/doc-intake/internal/intake"
)

type fakeS3 struct {
	objects   map[string]string
	copyIn    *s3.CopyObjectInput
	deleted   []string
	copyErr   error
	deleteErr error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copyIn = in
	return &s3.CopyObjectOutput{}, f.copyErr
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

func TestRead(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{"landing/scan1.png": "png-bytes"}}
	store := NewObjectStore(fake)

	data, err := store.Read(context.Background(), intake.ObjectRef{Bucket: "landing", Key: "scan1.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("unexpected body %q", data)
	}

	_, err = store.Read(context.Background(), intake.ObjectRef{Bucket: "landing", Key: "gone.png"})
	if !errors.Is(err, intake.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMove(t *testing.T) {
	fake := &fakeS3{}
	store := NewObjectStore(fake)
	src := intake.ObjectRef{Bucket: "landing", Key: "uploads/my scan.png"}
	dst := intake.ObjectRef{Bucket: "valid", Key: "valid-docs-folder/my scan.png"}

	if err := store.Move(context.Background(), src, dst, intake.DecisionValidGeneric); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := aws.ToString(fake.copyIn.CopySource); got != "landing/uploads/my%20scan.png" {
		t.Errorf("unexpected CopySource %q", got)
	}
	if aws.ToString(fake.copyIn.Bucket) != "valid" || aws.ToString(fake.copyIn.Key) != dst.Key {
		t.Errorf("unexpected destination %s/%s", aws.ToString(fake.copyIn.Bucket), aws.ToString(fake.copyIn.Key))
	}
	if fake.copyIn.TaggingDirective != s3types.TaggingDirectiveReplace {
		t.Errorf("expected REPLACE tagging directive, got %s", fake.copyIn.TaggingDirective)
	}
	if got := aws.ToString(fake.copyIn.Tagging); got != "Decision=VALID_GENERIC&Project=doc-intake" {
		t.Errorf("unexpected tagging %q", got)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "landing/uploads/my scan.png" {
		t.Errorf("expected source deleted, got %v", fake.deleted)
	}
}

func TestMove_SourceGone(t *testing.T) {
	fake := &fakeS3{copyErr: &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}}
	err := NewObjectStore(fake).Move(context.Background(),
		intake.ObjectRef{Bucket: "landing", Key: "a.png"},
		intake.ObjectRef{Bucket: "invalid", Key: "invalid-docs-folder/a.png"},
		intake.DecisionInvalid)

	if !errors.Is(err, intake.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if len(fake.deleted) != 0 {
		t.Error("delete must not run when copy fails")
	}
}

func TestMove_DeleteFails(t *testing.T) {
	fake := &fakeS3{deleteErr: errors.New("access denied")}
	err := NewObjectStore(fake).Move(context.Background(),
		intake.ObjectRef{Bucket: "landing", Key: "a.png"},
		intake.ObjectRef{Bucket: "invalid", Key: "invalid-docs-folder/a.png"},
		intake.DecisionInvalid)

	if err == nil || errors.Is(err, intake.ErrObjectNotFound) {
		t.Errorf("expected delete error, got %v", err)
	}
}

func TestTagging(t *testing.T) {
	if got := Tagging(""); got != "Project=doc-intake" {
		t.Errorf("unexpected tagging %q", got)
	}
	if got := Tagging(intake.DecisionValidPassport); got != "Decision=VALID_PASSPORT&Project=doc-intake" {
		t.Errorf("unexpected tagging %q", got)
	}
}
