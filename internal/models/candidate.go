package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrIllegalTransition is returned when a stage change is not allowed from the current stage.
var ErrIllegalTransition = errors.New("illegal stage transition")

// CandidateStatus is the wire name of a candidate's stage.
type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateAnalyzing CandidateStatus = "analyzing"
	CandidateAnalyzed  CandidateStatus = "analyzed" // qualified
	CandidateRejected  CandidateStatus = "rejected"
	CandidateFailed    CandidateStatus = "failed"
)

// ========================================
// Stages
// ========================================

// CandidateStage is the per-candidate state. Exactly one of the stage
// types below is held at a time.
type CandidateStage interface {
	Status() CandidateStatus
	candidateStage()
}

// Pending is a candidate that has been appended but not yet looked at.
type Pending struct{}

// Analyzing is a candidate whose platform check or traffic analysis is in flight.
type Analyzing struct {
	StartedAt time.Time
}

// Analyzed is a candidate that passed qualification.
type Analyzed struct {
	Metrics    TrafficMetrics
	Platform   *PlatformCheck
	Contact    *ContactInfo
	Enrichment Enrichment
	AnalyzedAt time.Time
}

// Rejected is a candidate that was looked at and turned down. It cannot carry contact data.
type Rejected struct {
	Reason     string
	Metrics    *TrafficMetrics
	Platform   *PlatformCheck
	RejectedAt time.Time
}

// Failed is a candidate whose adapter calls errored out.
type Failed struct {
	Error    string
	FailedAt time.Time
}

func (Pending) Status() CandidateStatus   { return CandidatePending }
func (Analyzing) Status() CandidateStatus { return CandidateAnalyzing }
func (Analyzed) Status() CandidateStatus  { return CandidateAnalyzed }
func (Rejected) Status() CandidateStatus  { return CandidateRejected }
func (Failed) Status() CandidateStatus    { return CandidateFailed }

func (Pending) candidateStage()   {}
func (Analyzing) candidateStage() {}
func (Analyzed) candidateStage()  {}
func (Rejected) candidateStage()  {}
func (Failed) candidateStage()    {}

// ========================================
// Candidate
// ========================================

// Candidate is one discovered site within a discovery run.
type Candidate struct {
	SourceURL   string // verbatim from the search result
	DomainKey   string
	Title       string
	Snippet     string
	Position    int
	IsDuplicate bool
	Notes       []string
	Stage       CandidateStage
}

// NewCandidate returns a pending candidate.
func NewCandidate(sourceURL, domainKey, title, snippet string, position int) Candidate {
	return Candidate{
		SourceURL: sourceURL,
		DomainKey: domainKey,
		Title:     title,
		Snippet:   snippet,
		Position:  position,
		Stage:     Pending{},
	}
}

// Status returns the wire status of the current stage.
func (c *Candidate) Status() CandidateStatus {
	if c.Stage == nil {
		return CandidatePending
	}
	return c.Stage.Status()
}

// IsTerminal reports whether the candidate has reached analyzed, rejected or failed.
func (c *Candidate) IsTerminal() bool {
	switch c.Status() {
	case CandidateAnalyzed, CandidateRejected, CandidateFailed:
		return true
	}
	return false
}

// AddNote appends a provenance note.
func (c *Candidate) AddNote(note string) {
	c.Notes = append(c.Notes, note)
}

func (c *Candidate) illegal(to CandidateStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.Status(), to)
}

// StartAnalysis moves pending to analyzing.
func (c *Candidate) StartAnalysis(now time.Time) error {
	if c.Status() != CandidatePending {
		return c.illegal(CandidateAnalyzing)
	}
	c.Stage = Analyzing{StartedAt: now}
	return nil
}

// MarkAnalyzed moves analyzing to analyzed (qualified).
func (c *Candidate) MarkAnalyzed(metrics TrafficMetrics, platform *PlatformCheck, now time.Time) error {
	if c.Status() != CandidateAnalyzing {
		return c.illegal(CandidateAnalyzed)
	}
	c.Stage = Analyzed{
		Metrics:    metrics,
		Platform:   platform,
		Enrichment: Enrichment{Status: EnrichmentNotEnriched},
		AnalyzedAt: now,
	}
	return nil
}

// MarkRejected moves a non-terminal candidate to rejected.
func (c *Candidate) MarkRejected(reason string, metrics *TrafficMetrics, platform *PlatformCheck, now time.Time) error {
	if c.IsTerminal() {
		return c.illegal(CandidateRejected)
	}
	c.Stage = Rejected{Reason: reason, Metrics: metrics, Platform: platform, RejectedAt: now}
	return nil
}

// MarkFailed moves a non-terminal candidate to failed.
func (c *Candidate) MarkFailed(errMsg string, now time.Time) error {
	if c.IsTerminal() {
		return c.illegal(CandidateFailed)
	}
	c.Stage = Failed{Error: errMsg, FailedAt: now}
	return nil
}

// CopyOutcome gives a non-terminal candidate the terminal stage of an earlier
// candidate sharing its domain and flags it as a duplicate.
func (c *Candidate) CopyOutcome(from *Candidate, now time.Time) error {
	if c.IsTerminal() || !from.IsTerminal() {
		return c.illegal(from.Status())
	}
	switch s := from.Stage.(type) {
	case Analyzed:
		s.AnalyzedAt = now
		if s.Contact != nil {
			contact := *s.Contact
			s.Contact = &contact
		}
		c.Stage = s
	case Rejected:
		s.RejectedAt = now
		c.Stage = s
	case Failed:
		s.FailedAt = now
		c.Stage = s
	}
	c.IsDuplicate = true
	return nil
}

// UpdateEnrichment applies fn to the enrichment and contact of an analyzed candidate.
// Qualification is left untouched.
func (c *Candidate) UpdateEnrichment(fn func(a *Analyzed)) error {
	a, ok := c.Stage.(Analyzed)
	if !ok {
		return fmt.Errorf("%w: enrichment requires analyzed, have %s", ErrIllegalTransition, c.Status())
	}
	fn(&a)
	c.Stage = a
	return nil
}

// Metrics returns the traffic metrics attached to the current stage, if any.
func (c *Candidate) Metrics() *TrafficMetrics {
	switch s := c.Stage.(type) {
	case Analyzed:
		m := s.Metrics
		return &m
	case Rejected:
		return s.Metrics
	}
	return nil
}

// ========================================
// JSON
// ========================================

type candidateJSON struct {
	Status      CandidateStatus `json:"status"`
	SourceURL   string          `json:"source_url"`
	DomainKey   string          `json:"domain_key"`
	Title       string          `json:"title,omitempty"`
	Snippet     string          `json:"snippet,omitempty"`
	Position    int             `json:"position,omitempty"`
	IsDuplicate bool            `json:"is_duplicate"`
	Notes       []string        `json:"notes,omitempty"`

	StartedAt     *time.Time      `json:"started_at,omitempty"`
	Metrics       *TrafficMetrics `json:"metrics,omitempty"`
	PlatformCheck *PlatformCheck  `json:"platform_check,omitempty"`
	Contact       *ContactInfo    `json:"contact,omitempty"`
	Enrichment    *Enrichment     `json:"enrichment,omitempty"`
	AnalyzedAt    *time.Time      `json:"analyzed_at,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	RejectedAt    *time.Time      `json:"rejected_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
}

// MarshalJSON flattens the stage into a single object keyed by "status".
func (c Candidate) MarshalJSON() ([]byte, error) {
	w := candidateJSON{
		Status:      c.Status(),
		SourceURL:   c.SourceURL,
		DomainKey:   c.DomainKey,
		Title:       c.Title,
		Snippet:     c.Snippet,
		Position:    c.Position,
		IsDuplicate: c.IsDuplicate,
		Notes:       c.Notes,
	}
	switch s := c.Stage.(type) {
	case Analyzing:
		w.StartedAt = &s.StartedAt
	case Analyzed:
		w.Metrics = &s.Metrics
		w.PlatformCheck = s.Platform
		w.Contact = s.Contact
		w.Enrichment = &s.Enrichment
		w.AnalyzedAt = &s.AnalyzedAt
	case Rejected:
		w.Reason = s.Reason
		w.Metrics = s.Metrics
		w.PlatformCheck = s.Platform
		w.RejectedAt = &s.RejectedAt
	case Failed:
		w.Error = s.Error
		w.FailedAt = &s.FailedAt
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the stage from the "status" discriminator.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var w candidateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.SourceURL = w.SourceURL
	c.DomainKey = w.DomainKey
	c.Title = w.Title
	c.Snippet = w.Snippet
	c.Position = w.Position
	c.IsDuplicate = w.IsDuplicate
	c.Notes = w.Notes

	switch w.Status {
	case CandidatePending, "":
		c.Stage = Pending{}
	case CandidateAnalyzing:
		c.Stage = Analyzing{StartedAt: deref(w.StartedAt)}
	case CandidateAnalyzed:
		a := Analyzed{
			Platform:   w.PlatformCheck,
			Contact:    w.Contact,
			Enrichment: Enrichment{Status: EnrichmentNotEnriched},
			AnalyzedAt: deref(w.AnalyzedAt),
		}
		if w.Metrics != nil {
			a.Metrics = *w.Metrics
		}
		if w.Enrichment != nil {
			a.Enrichment = *w.Enrichment
		}
		c.Stage = a
	case CandidateRejected:
		c.Stage = Rejected{Reason: w.Reason, Metrics: w.Metrics, Platform: w.PlatformCheck, RejectedAt: deref(w.RejectedAt)}
	case CandidateFailed:
		c.Stage = Failed{Error: w.Error, FailedAt: deref(w.FailedAt)}
	default:
		return fmt.Errorf("unknown candidate status %q", w.Status)
	}
	return nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
