package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/leadscout-api/internal/config"
	"github.com/jmylchreest/leadscout-api/internal/models"
)

// memoryObjects is an in-memory ObjectStore.
type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (m *memoryObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// ========================================
// StorageService Tests
// ========================================

func TestNewStorageService_Disabled(t *testing.T) {
	svc, err := NewStorageService(&appconfig.Config{StorageEnabled: false}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.IsEnabled() {
		t.Error("expected storage to be disabled")
	}
	if svc.Bucket() != "" {
		t.Error("expected bucket to be empty when disabled")
	}

	ctx := context.Background()
	run := models.NewDiscoveryRun("r1", "alice", "query:x", "x", models.DefaultThresholds(), time.Now())
	if err := svc.ArchiveDiscoveryRun(ctx, run); err != nil {
		t.Errorf("ArchiveDiscoveryRun() error = %v, want nil when disabled", err)
	}
	if err := svc.DeleteArchive(ctx, ArchiveKindDiscovery, "r1"); err != nil {
		t.Errorf("DeleteArchive() error = %v, want nil when disabled", err)
	}
}

func TestStorageService_NilIsDisabled(t *testing.T) {
	var svc *StorageService
	if svc.IsEnabled() {
		t.Error("nil service reports enabled")
	}
	if err := svc.ArchiveSellerRun(context.Background(), &models.SellerRun{ID: "s1"}); err != nil {
		t.Errorf("ArchiveSellerRun() error = %v", err)
	}
}

func TestStorageService_ArchiveRoundTrip(t *testing.T) {
	objects := newMemoryObjects()
	svc := NewStorageServiceWithClient(objects, "leads", testLogger())
	ctx := context.Background()

	run := models.NewDiscoveryRun("r1", "alice", "query:scarpe", "scarpe", models.DefaultThresholds(), time.Now().UTC())
	run.AppendCandidate(models.NewCandidate("https://shop.it", "shop.it", "Shop", "", 1))
	run.Complete(time.Now().UTC())

	if err := svc.ArchiveDiscoveryRun(ctx, run); err != nil {
		t.Fatalf("ArchiveDiscoveryRun() error = %v", err)
	}
	data, ok := objects.objects["leads/runs/discovery/r1.json"]
	if !ok {
		t.Fatalf("objects = %v, want runs/discovery/r1.json", objects.objects)
	}

	var got models.DiscoveryRun
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("archive is not a run document: %v", err)
	}
	if got.ID != "r1" || len(got.Items) != 1 || got.Status != models.RunStatusCompleted {
		t.Errorf("archive = %+v", got)
	}

	if err := svc.DeleteArchive(ctx, ArchiveKindDiscovery, "r1"); err != nil {
		t.Fatalf("DeleteArchive() error = %v", err)
	}
	if len(objects.objects) != 0 {
		t.Errorf("objects after delete = %d, want 0", len(objects.objects))
	}
}

func TestStorageService_PutError(t *testing.T) {
	objects := newMemoryObjects()
	objects.putErr = errors.New("AccessDenied")
	svc := NewStorageServiceWithClient(objects, "leads", testLogger())

	err := svc.ArchiveSellerRun(context.Background(), models.NewSellerRun("s1", "alice", "https://amazon.it/s?k=x", "amazon.it", "x", time.Now()))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey(ArchiveKindSeller, "01ABC"); got != "runs/seller/01ABC.json" {
		t.Errorf("ArchiveKey() = %q", got)
	}
}
