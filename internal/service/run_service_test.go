package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/leadscout-api/internal/models"
	"github.com/jmylchreest/leadscout-api/internal/source"
)

func int64Ptr(v int64) *int64 { return &v }

// ========================================
// RunService.Create Tests
// ========================================

func TestRunService_Create_QueuesPipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.searcher.byPage[1] = []source.SearchResult{result("https://shop-one.it", 1, 1)}
	env.traffic.reports["shop-one.it"] = shipments(150, 0)

	res, err := env.runs.Create(ctx, bdrAlice, CreateRunInput{Seed: Seed{Query: `  "Scarpe Running"  `}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.FromCache {
		t.Error("expected a fresh run")
	}
	run := res.Run
	if run.Status != models.RunStatusProcessing {
		t.Errorf("Status = %s, want processing", run.Status)
	}
	if run.SearchQuery != "Scarpe Running" {
		t.Errorf("SearchQuery = %q, want %q", run.SearchQuery, "Scarpe Running")
	}
	if run.SeedReference != "query:scarpe running" {
		t.Errorf("SeedReference = %q", run.SeedReference)
	}
	if run.Thresholds != models.DefaultThresholds() {
		t.Errorf("Thresholds = %+v, want defaults", run.Thresholds)
	}
	if names := env.tasks.submitted(); len(names) != 1 || names[0] != "discovery:"+run.ID {
		t.Errorf("submitted = %v", names)
	}

	env.tasks.drain(ctx)
	got := env.mustGet(t, run.ID)
	if got.Status != models.RunStatusCompleted || got.Counters.Qualified != 1 {
		t.Errorf("after drain: %s %+v", got.Status, got.Counters)
	}
}

func TestRunService_Create_RecentRunReuse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.searcher.byPage[1] = []source.SearchResult{result("https://shop-one.it", 1, 1)}
	env.traffic.reports["shop-one.it"] = shipments(150, 0)

	first, err := env.runs.Create(ctx, bdrAlice, CreateRunInput{Seed: Seed{Query: "scarpe"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	env.tasks.drain(ctx)

	tests := []struct {
		name      string
		actor     Actor
		input     CreateRunInput
		fromCache bool
	}{
		{"same owner same seed", bdrAlice, CreateRunInput{Seed: Seed{Query: "SCARPE"}}, true},
		{"manager may reuse", manager, CreateRunInput{Seed: Seed{Query: "scarpe"}}, true},
		{"other bdr gets a new run", bdrBob, CreateRunInput{Seed: Seed{Query: "scarpe"}}, false},
		{"different thresholds", bdrAlice, CreateRunInput{Seed: Seed{Query: "scarpe"}, Thresholds: &ThresholdOverrides{MinAbroad: int64Ptr(5)}}, false},
		{"different seed", bdrAlice, CreateRunInput{Seed: Seed{Query: "borse"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.runs.Create(ctx, tt.actor, tt.input)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if res.FromCache != tt.fromCache {
				t.Errorf("FromCache = %v, want %v", res.FromCache, tt.fromCache)
			}
			if tt.fromCache && res.Run.ID != first.Run.ID {
				t.Errorf("reused run = %s, want %s", res.Run.ID, first.Run.ID)
			}
		})
	}
}

func TestRunService_Create_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.runs.Create(ctx, bdrAlice, CreateRunInput{}); !errors.Is(err, ErrInvalidSeed) {
		t.Errorf("empty seed error = %v, want ErrInvalidSeed", err)
	}
	in := CreateRunInput{Seed: Seed{Query: "scarpe"}, Thresholds: &ThresholdOverrides{MinDomestic: int64Ptr(500), MaxDomestic: int64Ptr(100)}}
	if _, err := env.runs.Create(ctx, bdrAlice, in); !errors.Is(err, ErrInvalidThresholds) {
		t.Errorf("inverted thresholds error = %v, want ErrInvalidThresholds", err)
	}
	if _, err := env.runs.Create(ctx, bdrAlice, CreateRunInput{Seed: Seed{AnalysisID: "nope"}}); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("unknown analysis error = %v, want ErrAnalysisNotFound", err)
	}
}

func TestRunService_Create_ScheduleFailureFailsRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.tasks.failErr = errors.New("worker queue full")

	if _, err := env.runs.Create(ctx, bdrAlice, CreateRunInput{Seed: Seed{Query: "scarpe"}}); err == nil {
		t.Fatal("expected schedule error")
	}

	list, err := env.runs.List(ctx, bdrAlice, "", 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Total != 1 || list.Runs[0].Status != models.RunStatusFailed {
		t.Errorf("List() = %+v, want one failed run", list.Runs)
	}
}

// ========================================
// Access Tests
// ========================================

func TestRunService_Get_Access(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.createRun(t, "alice", "scarpe")

	tests := []struct {
		name    string
		actor   Actor
		id      string
		wantErr error
	}{
		{"owner", bdrAlice, run.ID, nil},
		{"manager", manager, run.ID, nil},
		{"other bdr", bdrBob, run.ID, ErrForbidden},
		{"missing", bdrAlice, "missing", ErrRunNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.runs.Get(ctx, tt.actor, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunService_List_Scope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createRun(t, "alice", "scarpe")
	env.createRun(t, "alice", "borse")
	env.createRun(t, "bob", "cinture")

	own, err := env.runs.List(ctx, bdrAlice, "", 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if own.Total != 2 || len(own.Runs) != 2 {
		t.Errorf("bdr List() total = %d, len = %d, want 2", own.Total, len(own.Runs))
	}

	all, err := env.runs.List(ctx, manager, "", 1, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Runs) != 2 || all.Pages != 2 {
		t.Errorf("manager List() = total %d len %d pages %d, want 3/2/2", all.Total, len(all.Runs), all.Pages)
	}

	done, err := env.runs.List(ctx, manager, models.RunStatusCompleted, 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if done.Total != 0 {
		t.Errorf("completed total = %d, want 0", done.Total)
	}
}

func TestRunService_Delete_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	run := env.createRun(t, "alice", "scarpe")

	if err := env.runs.Delete(ctx, manager, run.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("manager Delete() error = %v, want ErrForbidden", err)
	}
	if err := env.runs.Delete(ctx, bdrAlice, run.ID); err != nil {
		t.Fatalf("owner Delete() error = %v", err)
	}
	if _, err := env.runs.Get(ctx, bdrAlice, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRunNotFound", err)
	}
	if err := env.runs.Delete(ctx, bdrAlice, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRunNotFound", err)
	}
}

// ========================================
// Expand / Enrich Tests
// ========================================

func TestRunService_Expand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.searcher.byPage[1] = []source.SearchResult{result("https://shop-one.it", 1, 1)}
	env.searcher.byPage[2] = []source.SearchResult{result("https://shop-two.it", 2, 1)}
	env.traffic.reports["shop-one.it"] = shipments(150, 0)
	env.traffic.reports["shop-two.it"] = shipments(150, 0)

	run := env.createRun(t, "alice", "scarpe")
	if _, err := env.runs.Expand(ctx, bdrAlice, run.ID); !errors.Is(err, ErrRunProcessing) {
		t.Errorf("Expand(processing) error = %v, want ErrRunProcessing", err)
	}

	env.leads.Run(ctx, run.ID)
	if _, err := env.runs.Expand(ctx, bdrBob, run.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expand(other bdr) error = %v, want ErrForbidden", err)
	}

	reopened, err := env.runs.Expand(ctx, bdrAlice, run.ID)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if reopened.Status != models.RunStatusProcessing || reopened.Timing.CompletedAt != nil {
		t.Errorf("reopened = %s completed_at %v, want processing with fresh timing", reopened.Status, reopened.Timing.CompletedAt)
	}

	env.tasks.drain(ctx)
	got := env.mustGet(t, run.ID)
	if got.Status != models.RunStatusCompleted || len(got.Items) != 2 || got.Counters.SearchPageBookmark != 2 {
		t.Errorf("after expand: %s items=%d bookmark=%d", got.Status, len(got.Items), got.Counters.SearchPageBookmark)
	}
	checkCounters(t, got)
}

func TestRunService_Enrich_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.searcher.byPage[1] = []source.SearchResult{
		result("https://shop-one.it", 1, 1),
		result("https://shop-two.it", 1, 2),
	}
	env.traffic.reports["shop-one.it"] = shipments(150, 0)
	env.traffic.reports["shop-two.it"] = shipments(0, 0)

	run := env.createRun(t, "alice", "scarpe")
	env.leads.Run(ctx, run.ID)
	env.tasks.drain(ctx)

	tests := []struct {
		name    string
		actor   Actor
		index   int
		wantErr error
	}{
		{"analyzed", bdrAlice, 0, nil},
		{"rejected", bdrAlice, 1, ErrNotEnrichable},
		{"out of range", bdrAlice, 5, ErrItemNotFound},
		{"negative", bdrAlice, -1, ErrItemNotFound},
		{"other bdr", bdrBob, 0, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.runs.Enrich(ctx, tt.actor, run.ID, tt.index)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Enrich() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	names := env.tasks.submitted()
	if last := names[len(names)-1]; last != "enrich:"+run.ID+"/0" {
		t.Errorf("last task = %s, want enrichment of item 0", last)
	}
}

// ========================================
// Recovery Tests
// ========================================

func TestRunService_RecoverStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Interrupted moments before the restart: no task will ever finish it.
	stale := env.createRun(t, "alice", "scarpe")
	startedAt := time.Now().UTC().Add(time.Millisecond)

	ids, err := env.runs.RecoverStale(ctx, startedAt)
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("RecoverStale() = %v, want [%s]", ids, stale.ID)
	}
	got := env.mustGet(t, stale.ID)
	if got.Status != models.RunStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if len(got.ErrorLog) == 0 || !strings.Contains(got.ErrorLog[len(got.ErrorLog)-1].Message, "server restart") {
		t.Errorf("ErrorLog = %+v", got.ErrorLog)
	}

	// The recovered run is no longer stuck and can be expanded again.
	if _, err := env.runs.Expand(ctx, bdrAlice, stale.ID); err != nil {
		t.Errorf("Expand() after recovery error = %v", err)
	}
}

func TestRunService_RecoverStale_KeepsCurrentProcessRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	startedAt := time.Now().UTC().Add(-time.Minute)
	run := env.createRun(t, "alice", "borse")

	ids, err := env.runs.RecoverStale(ctx, startedAt)
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("RecoverStale() = %v, want none", ids)
	}
	if got := env.mustGet(t, run.ID); got.Status != models.RunStatusProcessing {
		t.Errorf("Status = %s, want processing", got.Status)
	}
}

// ========================================
// Helper Tests
// ========================================

func TestThresholdOverrides_Apply(t *testing.T) {
	base := models.DefaultThresholds()
	tests := []struct {
		name    string
		o       *ThresholdOverrides
		want    models.Thresholds
		wantErr bool
	}{
		{"nil keeps defaults", nil, base, false},
		{"partial", &ThresholdOverrides{MinAbroad: int64Ptr(10)}, models.Thresholds{MinDomestic: 100, MinAbroad: 10, MaxDomestic: 10000}, false},
		{"max equals min", &ThresholdOverrides{MinDomestic: int64Ptr(50), MaxDomestic: int64Ptr(50)}, models.Thresholds{MinDomestic: 50, MinAbroad: 30, MaxDomestic: 50}, false},
		{"negative", &ThresholdOverrides{MinAbroad: int64Ptr(-1)}, models.Thresholds{}, true},
		{"max below min", &ThresholdOverrides{MaxDomestic: int64Ptr(99)}, models.Thresholds{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.o.Apply(base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Apply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizePaging(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 20},
		{3, 50, 3, 50},
		{-2, 500, 1, 100},
	}
	for _, tt := range tests {
		p, l := normalizePaging(tt.page, tt.limit)
		if p != tt.wantPage || l != tt.wantLimit {
			t.Errorf("normalizePaging(%d, %d) = %d, %d, want %d, %d", tt.page, tt.limit, p, l, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestActor_CanRead(t *testing.T) {
	if !bdrAlice.CanRead("alice") {
		t.Error("owner should read own run")
	}
	if bdrAlice.CanRead("bob") {
		t.Error("bdr should not read another bdr's run")
	}
	if !manager.CanRead("bob") {
		t.Error("manager should read any run")
	}
}
