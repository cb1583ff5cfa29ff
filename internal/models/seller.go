package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SellerStatus is the wire name of a seller's stage.
type SellerStatus string

const (
	SellerPending   SellerStatus = "pending"
	SellerCrawling  SellerStatus = "crawling"
	SellerAnalyzing SellerStatus = "analyzing"
	SellerCompleted SellerStatus = "completed" // qualified
	SellerRejected  SellerStatus = "rejected"
	SellerFailed    SellerStatus = "failed"
)

// ========================================
// Seller stages
// ========================================

// SellerStage is the per-seller state.
type SellerStage interface {
	Status() SellerStatus
	sellerStage()
}

// SellerPendingStage is a seller collected from the product listing but not yet visited.
type SellerPendingStage struct{}

// SellerCrawlingStage is a seller whose profile page is being fetched.
type SellerCrawlingStage struct {
	StartedAt time.Time
}

// SellerAnalyzingStage is a seller whose crawled profile is being sent for compliance extraction.
type SellerAnalyzingStage struct {
	PagesCrawled int
}

// SellerCompletedStage is a seller whose compliance data passed the phone policy.
type SellerCompletedStage struct {
	Compliance ComplianceInfo
	AnalyzedAt time.Time
}

// SellerRejectedStage is a seller that was checked and turned down. Compliance holds what was extracted, if anything.
type SellerRejectedStage struct {
	Reason     string
	Compliance *ComplianceInfo
	RejectedAt time.Time
}

// SellerFailedStage is a seller whose crawl or extraction errored out.
type SellerFailedStage struct {
	Error    string
	FailedAt time.Time
}

func (SellerPendingStage) Status() SellerStatus   { return SellerPending }
func (SellerCrawlingStage) Status() SellerStatus  { return SellerCrawling }
func (SellerAnalyzingStage) Status() SellerStatus { return SellerAnalyzing }
func (SellerCompletedStage) Status() SellerStatus { return SellerCompleted }
func (SellerRejectedStage) Status() SellerStatus  { return SellerRejected }
func (SellerFailedStage) Status() SellerStatus    { return SellerFailed }

func (SellerPendingStage) sellerStage()   {}
func (SellerCrawlingStage) sellerStage()  {}
func (SellerAnalyzingStage) sellerStage() {}
func (SellerCompletedStage) sellerStage() {}
func (SellerRejectedStage) sellerStage()  {}
func (SellerFailedStage) sellerStage()    {}

// ComplianceInfo holds the legal fields extracted from a seller's public profile page.
type ComplianceInfo struct {
	SellerType          string    `json:"seller_type,omitempty"`
	VATNumber           string    `json:"vat_number,omitempty"`
	PhoneNumber         string    `json:"phone_number,omitempty"`
	EmailAddress        string    `json:"email_address,omitempty"`
	Address             string    `json:"address,omitempty"`
	ComplianceStatement string    `json:"compliance_statement,omitempty"`
	Marketplace         string    `json:"marketplace,omitempty"`
	LanguageDetected    string    `json:"language_detected,omitempty"`
	RawText             string    `json:"raw_text,omitempty"`
	ExtractedAt         time.Time `json:"extracted_at"`
}

// ========================================
// Seller
// ========================================

// Seller is one unique marketplace seller within a seller run.
type Seller struct {
	SellerID     string
	SellerName   string
	SellerURL    string
	ProductASIN  string // first product the seller was seen on
	ProductTitle string
	ProductURL   string
	IsDuplicate  bool
	Notes        []string
	Stage        SellerStage
}

// Status returns the wire status of the current stage.
func (s *Seller) Status() SellerStatus {
	if s.Stage == nil {
		return SellerPending
	}
	return s.Stage.Status()
}

// IsTerminal reports whether the seller has reached completed, rejected or failed.
func (s *Seller) IsTerminal() bool {
	switch s.Status() {
	case SellerCompleted, SellerRejected, SellerFailed:
		return true
	}
	return false
}

func (s *Seller) illegal(to SellerStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status(), to)
}

// StartCrawl moves pending to crawling.
func (s *Seller) StartCrawl(now time.Time) error {
	if s.Status() != SellerPending {
		return s.illegal(SellerCrawling)
	}
	s.Stage = SellerCrawlingStage{StartedAt: now}
	return nil
}

// StartAnalysis moves crawling to analyzing.
func (s *Seller) StartAnalysis(pagesCrawled int) error {
	if s.Status() != SellerCrawling {
		return s.illegal(SellerAnalyzing)
	}
	s.Stage = SellerAnalyzingStage{PagesCrawled: pagesCrawled}
	return nil
}

// Complete moves analyzing to completed.
func (s *Seller) Complete(info ComplianceInfo, now time.Time) error {
	if s.Status() != SellerAnalyzing {
		return s.illegal(SellerCompleted)
	}
	s.Stage = SellerCompletedStage{Compliance: info, AnalyzedAt: now}
	return nil
}

// Reject moves a non-terminal seller to rejected.
func (s *Seller) Reject(reason string, info *ComplianceInfo, now time.Time) error {
	if s.IsTerminal() {
		return s.illegal(SellerRejected)
	}
	s.Stage = SellerRejectedStage{Reason: reason, Compliance: info, RejectedAt: now}
	return nil
}

// Fail moves a non-terminal seller to failed.
func (s *Seller) Fail(errMsg string, now time.Time) error {
	if s.IsTerminal() {
		return s.illegal(SellerFailed)
	}
	s.Stage = SellerFailedStage{Error: errMsg, FailedAt: now}
	return nil
}

// Compliance returns the compliance data attached to the current stage, if any.
func (s *Seller) Compliance() *ComplianceInfo {
	switch st := s.Stage.(type) {
	case SellerCompletedStage:
		c := st.Compliance
		return &c
	case SellerRejectedStage:
		return st.Compliance
	}
	return nil
}

type sellerJSON struct {
	Status       SellerStatus    `json:"status"`
	SellerID     string          `json:"seller_id"`
	SellerName   string          `json:"seller_name,omitempty"`
	SellerURL    string          `json:"seller_url,omitempty"`
	ProductASIN  string          `json:"product_asin,omitempty"`
	ProductTitle string          `json:"product_title,omitempty"`
	ProductURL   string          `json:"product_url,omitempty"`
	IsDuplicate  bool            `json:"is_duplicate"`
	Notes        []string        `json:"notes,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	PagesCrawled int             `json:"pages_crawled,omitempty"`
	Compliance   *ComplianceInfo `json:"compliance,omitempty"`
	AnalyzedAt   *time.Time      `json:"analyzed_at,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	RejectedAt   *time.Time      `json:"rejected_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	FailedAt     *time.Time      `json:"failed_at,omitempty"`
}

// MarshalJSON flattens the stage into a single object keyed by "status".
func (s Seller) MarshalJSON() ([]byte, error) {
	w := sellerJSON{
		Status:       s.Status(),
		SellerID:     s.SellerID,
		SellerName:   s.SellerName,
		SellerURL:    s.SellerURL,
		ProductASIN:  s.ProductASIN,
		ProductTitle: s.ProductTitle,
		ProductURL:   s.ProductURL,
		IsDuplicate:  s.IsDuplicate,
		Notes:        s.Notes,
	}
	switch st := s.Stage.(type) {
	case SellerCrawlingStage:
		w.StartedAt = &st.StartedAt
	case SellerAnalyzingStage:
		w.PagesCrawled = st.PagesCrawled
	case SellerCompletedStage:
		w.Compliance = &st.Compliance
		w.AnalyzedAt = &st.AnalyzedAt
	case SellerRejectedStage:
		w.Reason = st.Reason
		w.Compliance = st.Compliance
		w.RejectedAt = &st.RejectedAt
	case SellerFailedStage:
		w.Error = st.Error
		w.FailedAt = &st.FailedAt
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the stage from the "status" discriminator.
func (s *Seller) UnmarshalJSON(data []byte) error {
	var w sellerJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.SellerID = w.SellerID
	s.SellerName = w.SellerName
	s.SellerURL = w.SellerURL
	s.ProductASIN = w.ProductASIN
	s.ProductTitle = w.ProductTitle
	s.ProductURL = w.ProductURL
	s.IsDuplicate = w.IsDuplicate
	s.Notes = w.Notes

	switch w.Status {
	case SellerPending, "":
		s.Stage = SellerPendingStage{}
	case SellerCrawling:
		s.Stage = SellerCrawlingStage{StartedAt: deref(w.StartedAt)}
	case SellerAnalyzing:
		s.Stage = SellerAnalyzingStage{PagesCrawled: w.PagesCrawled}
	case SellerCompleted:
		st := SellerCompletedStage{AnalyzedAt: deref(w.AnalyzedAt)}
		if w.Compliance != nil {
			st.Compliance = *w.Compliance
		}
		s.Stage = st
	case SellerRejected:
		s.Stage = SellerRejectedStage{Reason: w.Reason, Compliance: w.Compliance, RejectedAt: deref(w.RejectedAt)}
	case SellerFailed:
		s.Stage = SellerFailedStage{Error: w.Error, FailedAt: deref(w.FailedAt)}
	default:
		return fmt.Errorf("unknown seller status %q", w.Status)
	}
	return nil
}

// ========================================
// Seller Run
// ========================================

// SellerCounters are the seller run aggregates.
type SellerCounters struct {
	ProductsScraped int `json:"products_scraped"`
	SellersFound    int `json:"sellers_found"`
	SellersUnique   int `json:"sellers_unique"`
	Analyzed        int `json:"analyzed"` // completed + rejected
	Qualified       int `json:"qualified"`
	Rejected        int `json:"rejected"`
	Failed          int `json:"failed"`
}

// SellerRun is one marketplace seller discovery invocation.
type SellerRun struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	SourceURL   string         `json:"source_url"`
	Marketplace string         `json:"marketplace"`
	SearchQuery string         `json:"search_query,omitempty"`
	Status      RunStatus      `json:"status"`
	Counters    SellerCounters `json:"counters"`
	Sellers     []Seller       `json:"sellers"`
	Timing      RunTiming      `json:"timing"`
	ErrorLog    []ErrorEntry   `json:"error_log"`
	Version     int            `json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewSellerRun returns a processing seller run.
func NewSellerRun(id, owner, sourceURL, marketplace, query string, now time.Time) *SellerRun {
	return &SellerRun{
		ID:          id,
		Owner:       owner,
		SourceURL:   sourceURL,
		Marketplace: marketplace,
		SearchQuery: query,
		Status:      RunStatusProcessing,
		Sellers:     []Seller{},
		Timing:      RunTiming{StartedAt: now},
		ErrorLog:    []ErrorEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Complete marks the run completed and stamps the timing.
func (r *SellerRun) Complete(now time.Time) {
	r.Status = RunStatusCompleted
	r.Timing.finish(now)
}

// Fail marks the run failed, logs msg and stamps the timing.
func (r *SellerRun) Fail(msg string, now time.Time) {
	r.Status = RunStatusFailed
	r.ErrorLog = append(r.ErrorLog, ErrorEntry{Message: msg, Timestamp: now})
	r.Timing.finish(now)
}

// PriorTerminal returns the index of the earliest terminal seller before index with
// the same seller id, or -1.
func (r *SellerRun) PriorTerminal(index int) int {
	id := r.Sellers[index].SellerID
	for i := 0; i < index; i++ {
		if r.Sellers[i].SellerID == id && r.Sellers[i].IsTerminal() {
			return i
		}
	}
	return -1
}

// Transition applies fn to the seller at index and bumps the counters once if the
// seller became terminal as a result.
func (r *SellerRun) Transition(index int, fn func(s *Seller) error) error {
	if index < 0 || index >= len(r.Sellers) {
		return fmt.Errorf("seller index %d out of range", index)
	}
	s := &r.Sellers[index]
	wasTerminal := s.IsTerminal()
	if err := fn(s); err != nil {
		return err
	}
	if !wasTerminal && s.IsTerminal() {
		switch s.Status() {
		case SellerCompleted:
			r.Counters.Analyzed++
			r.Counters.Qualified++
		case SellerRejected:
			r.Counters.Analyzed++
			r.Counters.Rejected++
		case SellerFailed:
			r.Counters.Failed++
		}
	}
	return nil
}

// QualifiedSellers returns the sellers that passed the phone check.
func (r *SellerRun) QualifiedSellers() []Seller {
	out := []Seller{}
	for _, s := range r.Sellers {
		if s.Status() == SellerCompleted {
			out = append(out, s)
		}
	}
	return out
}

// Summary is the list projection of a seller run.
func (r *SellerRun) Summary() SellerRunSummary {
	return SellerRunSummary{
		ID:             r.ID,
		SourceURL:      r.SourceURL,
		Marketplace:    r.Marketplace,
		Query:          r.SearchQuery,
		Status:         r.Status,
		Counters:       r.Counters,
		QualifiedCount: r.Counters.Qualified,
		CreatedAt:      r.CreatedAt,
	}
}

// SellerRunSummary is the compact form returned by the seller list endpoint.
type SellerRunSummary struct {
	ID             string         `json:"id"`
	SourceURL      string         `json:"source_url"`
	Marketplace    string         `json:"marketplace"`
	Query          string         `json:"query,omitempty"`
	Status         RunStatus      `json:"status"`
	Counters       SellerCounters `json:"counters"`
	QualifiedCount int            `json:"qualified_count"`
	CreatedAt      time.Time      `json:"created_at"`
}
