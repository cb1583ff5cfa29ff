package config

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeGetter struct {
	calls     int
	body      string
	etag      string
	err       error
	lastMatch string
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	f.lastMatch = aws.ToString(in.IfNoneMatch)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(f.body)),
		ETag: aws.String(`"` + f.etag + `"`),
	}, nil
}

// ========================================
// S3Loader Tests
// ========================================

func TestS3Loader_Disabled(t *testing.T) {
	l := NewS3Loader(S3LoaderConfig{})
	if l.IsEnabled() {
		t.Error("IsEnabled() = true with no client")
	}
	res, err := l.Fetch(context.Background())
	if res != nil || err != nil {
		t.Errorf("Fetch() = %v, %v, want nil, nil", res, err)
	}
}

func TestS3Loader_FetchCachesByTTL(t *testing.T) {
	f := &fakeGetter{body: `[{"type":"level"}]`, etag: "abc"}
	l := NewS3Loader(S3LoaderConfig{Client: f, Bucket: "b", Key: "k", CacheTTL: time.Hour})

	res, err := l.Fetch(context.Background())
	if err != nil || res == nil {
		t.Fatalf("Fetch() = %v, %v", res, err)
	}
	if res.Etag != "abc" {
		t.Errorf("Etag = %q, want abc", res.Etag)
	}
	if string(res.Data) != `[{"type":"level"}]` {
		t.Errorf("Data = %s", res.Data)
	}

	res, _ = l.Fetch(context.Background())
	if res != nil || f.calls != 1 {
		t.Errorf("second Fetch() within TTL = %v after %d calls, want skipped", res, f.calls)
	}
}

func TestS3Loader_SendsEtag(t *testing.T) {
	f := &fakeGetter{body: `{}`, etag: "v1"}
	l := NewS3Loader(S3LoaderConfig{Client: f, Bucket: "b", Key: "k", CacheTTL: time.Nanosecond})

	_, _ = l.Fetch(context.Background())
	time.Sleep(time.Millisecond)
	_, _ = l.Fetch(context.Background())

	if f.lastMatch != `"v1"` {
		t.Errorf("If-None-Match = %q, want \"v1\"", f.lastMatch)
	}
}

func TestS3Loader_NoSuchKey(t *testing.T) {
	f := &fakeGetter{err: &types.NoSuchKey{}}
	l := NewS3Loader(S3LoaderConfig{Client: f, Bucket: "b", Key: "k"})

	res, err := l.Fetch(context.Background())
	if res != nil || err != nil {
		t.Errorf("Fetch() = %v, %v, want nil, nil", res, err)
	}
}

func TestS3Loader_ErrorBackoff(t *testing.T) {
	f := &fakeGetter{err: errors.New("boom")}
	l := NewS3Loader(S3LoaderConfig{Client: f, Bucket: "b", Key: "k", CacheTTL: time.Nanosecond, ErrorBackoff: time.Hour})

	if _, err := l.Fetch(context.Background()); err == nil {
		t.Fatal("Fetch() error = nil, want boom")
	}
	time.Sleep(time.Millisecond)
	if _, err := l.Fetch(context.Background()); err != nil || f.calls != 1 {
		t.Errorf("Fetch() in backoff = %v after %d calls, want skipped", err, f.calls)
	}
}
