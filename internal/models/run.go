// Package models defines the domain models for the application.
package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a discovery or seller run.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// IsValid reports whether s is a known run status.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusProcessing, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// ========================================
// Shared run parts
// ========================================

// Thresholds are the shipment limits a lead must satisfy. They are fixed on the run at creation.
type Thresholds struct {
	MinDomestic int64 `json:"min_domestic"`
	MinAbroad   int64 `json:"min_abroad"`
	MaxDomestic int64 `json:"max_domestic"`
}

// DefaultThresholds returns the stock shipment thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{MinDomestic: 100, MinAbroad: 30, MaxDomestic: 10000}
}

// RunTiming records when a run (or its latest expansion pass) started and finished.
type RunTiming struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
}

func (t *RunTiming) finish(now time.Time) {
	t.CompletedAt = &now
	t.DurationMs = now.Sub(t.StartedAt).Milliseconds()
}

// ErrorEntry is one diagnostic line in a run's error log.
type ErrorEntry struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ========================================
// Discovery Run
// ========================================

// RunCounters are the discovery run aggregates. Analyzed counts every candidate whose
// analysis finished (qualified or rejected); Qualified counts analyzed candidates only.
type RunCounters struct {
	Found              int `json:"found"`
	Analyzed           int `json:"analyzed"`
	Qualified          int `json:"qualified"`
	Failed             int `json:"failed"`
	SearchPageBookmark int `json:"search_page_bookmark"`
}

// DiscoveryRun is one lead discovery invocation and its full result set.
type DiscoveryRun struct {
	ID            string       `json:"id"`
	Owner         string       `json:"owner"`
	SeedReference string       `json:"seed_reference"`
	SearchQuery   string       `json:"search_query"`
	Status        RunStatus    `json:"status"`
	Thresholds    Thresholds   `json:"thresholds"`
	Counters      RunCounters  `json:"counters"`
	Items         []Candidate  `json:"items"`
	Timing        RunTiming    `json:"timing"`
	ErrorLog      []ErrorEntry `json:"error_log"`
	Version       int          `json:"-"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewDiscoveryRun returns a processing run with no items.
func NewDiscoveryRun(id, owner, seedRef, query string, thresholds Thresholds, now time.Time) *DiscoveryRun {
	return &DiscoveryRun{
		ID:            id,
		Owner:         owner,
		SeedReference: seedRef,
		SearchQuery:   query,
		Status:        RunStatusProcessing,
		Thresholds:    thresholds,
		Items:         []Candidate{},
		Timing:        RunTiming{StartedAt: now},
		ErrorLog:      []ErrorEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AppendError adds a diagnostic line to the error log.
func (r *DiscoveryRun) AppendError(msg string, now time.Time) {
	r.ErrorLog = append(r.ErrorLog, ErrorEntry{Message: msg, Timestamp: now})
}

// Complete marks the run completed and stamps the timing.
func (r *DiscoveryRun) Complete(now time.Time) {
	r.Status = RunStatusCompleted
	r.Timing.finish(now)
}

// Fail marks the run failed, logs msg and stamps the timing.
func (r *DiscoveryRun) Fail(msg string, now time.Time) {
	r.Status = RunStatusFailed
	r.AppendError(msg, now)
	r.Timing.finish(now)
}

// Reopen puts a finished run back into processing for an expansion pass.
func (r *DiscoveryRun) Reopen(now time.Time) {
	r.Status = RunStatusProcessing
	r.Timing = RunTiming{StartedAt: now}
}

// IsProcessing reports whether the run is in flight.
func (r *DiscoveryRun) IsProcessing() bool {
	return r.Status == RunStatusProcessing
}

// AppendCandidate adds c to the end of items and returns its index.
func (r *DiscoveryRun) AppendCandidate(c Candidate) int {
	r.Items = append(r.Items, c)
	return len(r.Items) - 1
}

// HasDomain reports whether any item carries domainKey.
func (r *DiscoveryRun) HasDomain(domainKey string) bool {
	for i := range r.Items {
		if r.Items[i].DomainKey == domainKey {
			return true
		}
	}
	return false
}

// PriorTerminal returns the index of the earliest terminal item before index
// that shares its domain key, or -1.
func (r *DiscoveryRun) PriorTerminal(index int) int {
	key := r.Items[index].DomainKey
	for i := 0; i < index; i++ {
		if r.Items[i].DomainKey == key && r.Items[i].IsTerminal() {
			return i
		}
	}
	return -1
}

// DuplicatesOf returns the indexes of later analyzed items that copied their
// outcome from the item at index. A duplicate has no duplicates of its own.
func (r *DiscoveryRun) DuplicatesOf(index int) []int {
	if index < 0 || index >= len(r.Items) || r.Items[index].IsDuplicate {
		return nil
	}
	key := r.Items[index].DomainKey
	var dups []int
	for i := index + 1; i < len(r.Items); i++ {
		c := &r.Items[i]
		if c.IsDuplicate && c.DomainKey == key && c.Status() == CandidateAnalyzed {
			dups = append(dups, i)
		}
	}
	return dups
}

// AllTerminal reports whether every item has reached a terminal stage.
func (r *DiscoveryRun) AllTerminal() bool {
	for i := range r.Items {
		if !r.Items[i].IsTerminal() {
			return false
		}
	}
	return true
}

// Transition applies fn to the item at index and bumps the counters once if the item
// became terminal as a result.
func (r *DiscoveryRun) Transition(index int, fn func(c *Candidate) error) error {
	if index < 0 || index >= len(r.Items) {
		return fmt.Errorf("item index %d out of range", index)
	}
	c := &r.Items[index]
	wasTerminal := c.IsTerminal()
	if err := fn(c); err != nil {
		return err
	}
	if !wasTerminal && c.IsTerminal() {
		switch c.Status() {
		case CandidateAnalyzed:
			r.Counters.Analyzed++
			r.Counters.Qualified++
		case CandidateRejected:
			r.Counters.Analyzed++
		case CandidateFailed:
			r.Counters.Failed++
		}
	}
	return nil
}

// ReconcileCounters recomputes analyzed, qualified and failed from items.
// Found and the search bookmark are carried over unchanged.
func (r *DiscoveryRun) ReconcileCounters() RunCounters {
	c := RunCounters{Found: r.Counters.Found, SearchPageBookmark: r.Counters.SearchPageBookmark}
	for i := range r.Items {
		switch r.Items[i].Status() {
		case CandidateAnalyzed:
			c.Analyzed++
			c.Qualified++
		case CandidateRejected:
			c.Analyzed++
		case CandidateFailed:
			c.Failed++
		}
	}
	return c
}

// Summary is the list projection of a discovery run.
func (r *DiscoveryRun) Summary() RunSummary {
	return RunSummary{
		ID:             r.ID,
		Query:          r.SearchQuery,
		Status:         r.Status,
		Counters:       r.Counters,
		QualifiedCount: r.Counters.Qualified,
		CreatedAt:      r.CreatedAt,
	}
}

// RunSummary is the compact form returned by list endpoints.
type RunSummary struct {
	ID             string      `json:"id"`
	Query          string      `json:"query"`
	Status         RunStatus   `json:"status"`
	Counters       RunCounters `json:"counters"`
	QualifiedCount int         `json:"qualified_count"`
	CreatedAt      time.Time   `json:"created_at"`
}

// RunFilter narrows list queries.
type RunFilter struct {
	Owner  string // empty = all owners
	Status RunStatus
	Limit  int
	Offset int
}
