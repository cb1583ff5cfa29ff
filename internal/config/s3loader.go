package config

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectGetter is the slice of the S3 client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3LoaderConfig configures an S3Loader.
type S3LoaderConfig struct {
	Client       ObjectGetter
	Bucket       string
	Key          string
	CacheTTL     time.Duration // Default: 5m
	ErrorBackoff time.Duration // Default: 1m
	Logger       *slog.Logger
}

// S3LoadResult is the outcome of a successful fetch.
type S3LoadResult struct {
	Data       json.RawMessage
	Etag       string
	NotChanged bool // the stored etag still matches
}

// S3Loader fetches a JSON document from object storage with ETag caching and error backoff.
type S3Loader struct {
	client ObjectGetter
	bucket string
	key    string

	mu           sync.Mutex
	etag         string
	lastCheck    time.Time
	lastError    time.Time
	initialized  bool
	fetching     bool
	cacheTTL     time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
}

// NewS3Loader creates a loader.
func NewS3Loader(cfg S3LoaderConfig) *S3Loader {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &S3Loader{
		client:       cfg.Client,
		bucket:       cfg.Bucket,
		key:          cfg.Key,
		cacheTTL:     cfg.CacheTTL,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
	}
}

// IsEnabled reports whether an S3 client is configured.
func (l *S3Loader) IsEnabled() bool {
	return l.client != nil
}

// CacheTTL returns the refresh interval.
func (l *S3Loader) CacheTTL() time.Duration {
	return l.cacheTTL
}

// Fetch downloads the document if it changed. It returns (nil, nil) when the
// check is skipped (fresh cache, error backoff, another fetch in flight) or the
// object does not exist.
func (l *S3Loader) Fetch(ctx context.Context) (*S3LoadResult, error) {
	if l.client == nil {
		return nil, nil
	}

	l.mu.Lock()
	fresh := l.initialized && time.Since(l.lastCheck) < l.cacheTTL
	backoff := !l.lastError.IsZero() && time.Since(l.lastError) < l.errorBackoff
	if l.fetching || fresh || backoff {
		l.mu.Unlock()
		return nil, nil
	}
	l.fetching = true
	etag := l.etag
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.fetching = false
		l.mu.Unlock()
	}()

	input := &s3.GetObjectInput{Bucket: &l.bucket, Key: &l.key}
	if etag != "" {
		quoted := `"` + etag + `"`
		input.IfNoneMatch = &quoted
	}

	resp, err := l.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			l.markChecked(false)
			l.logger.Debug("config object not found, using defaults", "bucket", l.bucket, "key", l.key)
			return nil, nil
		}
		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) && coded.ErrorCode() == "NotModified" {
			l.markChecked(false)
			return &S3LoadResult{Etag: etag, NotChanged: true}, nil
		}
		l.markChecked(true)
		l.logger.Error("failed to fetch config object",
			"bucket", l.bucket,
			"key", l.key,
			"error", err,
			"next_retry", time.Now().Add(l.errorBackoff).Format(time.RFC3339),
		)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		l.markChecked(true)
		l.logger.Error("failed to parse config object", "key", l.key, "error", err)
		return nil, err
	}

	newEtag := ""
	if resp.ETag != nil {
		newEtag = strings.Trim(*resp.ETag, `"`)
	}
	l.mu.Lock()
	l.etag = newEtag
	l.mu.Unlock()
	l.markChecked(false)

	return &S3LoadResult{Data: raw, Etag: newEtag}, nil
}

func (l *S3Loader) markChecked(failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.initialized = true
	l.lastCheck = now
	if failed {
		l.lastError = now
	} else {
		l.lastError = time.Time{}
	}
}
