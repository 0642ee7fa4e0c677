package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/posting"
	"github.com/mhall-io/jobscout/internal/scoring"
	"github.com/mhall-io/jobscout/internal/state"
	"github.com/mhall-io/jobscout/internal/triage"
)

type stubScorer struct {
	results map[string]*scoring.Result
	errs    map[string][]error
	calls   int
}

func (s *stubScorer) Score(_ context.Context, req *scoring.Request) (*scoring.Result, error) {
	s.calls++
	if queued := s.errs[req.Identity]; len(queued) > 0 {
		err := queued[0]
		s.errs[req.Identity] = queued[1:]
		return nil, err
	}
	if res, ok := s.results[req.Identity]; ok {
		return res, nil
	}
	return &scoring.Result{Score: 50, Reasoning: "default"}, nil
}

func newTestPipeline(t *testing.T, scorer scoring.Scorer) *Pipeline {
	t.Helper()

	logger := zap.NewNop()
	ledger, err := state.OpenLedger(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	tracker, err := state.OpenTracker(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}

	minScore := 1
	rules := &triage.Rules{
		PositiveKeywords: []string{"go", "kubernetes", "distributed"},
		NegativeKeywords: []string{"clearance"},
		MinScore:         &minScore,
	}
	if err := rules.Normalize(); err != nil {
		t.Fatalf("normalize rules: %v", err)
	}

	p := New(ledger, tracker, rules, nil, scorer, Config{
		MaxScoreAttempts:   2,
		RetryDeadline:      time.Minute,
		ScoreRatePerSecond: 1000,
	}, logger)
	p.retryInterval = time.Millisecond
	return p
}

func remotePosting(title, employer, url, query, desc string) *posting.Posting {
	return &posting.Posting{
		Title:       title,
		Employer:    employer,
		URL:         url,
		IsRemote:    true,
		Description: desc,
		Source:      "greenhouse",
		SourceQuery: query,
	}
}

func TestCollectRoutesPostings(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, nil)

	seen := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	seenID, err := posting.Identity(seen)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	p.ledger.Record(seenID, seen.Source, state.StatusScored)

	postings := &posting.Postings{Items: []*posting.Posting{
		seen,
		remotePosting("Go Engineer", "Beta", "https://beta.io/jobs/2", "golang", "go and kubernetes"),
		remotePosting("Analyst", "Gamma", "https://gamma.io/jobs/3", "golang", "spreadsheets all day"),
		{Title: "", Employer: "", Description: "no identity fields at all"},
	}}

	run := p.Collect(postings)

	if run.Summary.Discovered != 4 {
		t.Errorf("Discovered = %d, want 4", run.Summary.Discovered)
	}
	if run.Summary.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", run.Summary.Duplicates)
	}
	if run.Summary.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", run.Summary.Malformed)
	}
	if run.Summary.TriagedOut != 1 {
		t.Errorf("TriagedOut = %d, want 1", run.Summary.TriagedOut)
	}
	if run.Summary.Passed != 1 {
		t.Errorf("Passed = %d, want 1", run.Summary.Passed)
	}
	if len(run.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(run.Candidates))
	}
	if run.Candidates[0].Posting.Employer != "Beta" {
		t.Errorf("candidate employer = %q, want Beta", run.Candidates[0].Posting.Employer)
	}

	rejectedID, err := posting.Identity(postings.Items[2])
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	entry := p.ledger.Get(rejectedID)
	if entry == nil {
		t.Fatal("triaged-out posting not recorded in ledger")
	}
	if entry.Status != state.StatusTriagedOut {
		t.Errorf("status = %q, want %q", entry.Status, state.StatusTriagedOut)
	}
	if entry.Title != "Analyst" {
		t.Errorf("annotated title = %q, want Analyst", entry.Title)
	}
}

func TestCollectOrdersCandidatesByTriageScore(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, nil)

	postings := &posting.Postings{Items: []*posting.Posting{
		remotePosting("One Hit", "A", "https://a.io/1", "golang", "go shop"),
		remotePosting("Three Hits", "B", "https://b.io/2", "golang", "go kubernetes distributed systems"),
		remotePosting("Two Hits", "C", "https://c.io/3", "golang", "go and kubernetes"),
	}}

	run := p.Collect(postings)
	if len(run.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(run.Candidates))
	}

	got := []string{
		run.Candidates[0].Posting.Title,
		run.Candidates[1].Posting.Title,
		run.Candidates[2].Posting.Title,
	}
	want := []string{"Three Hits", "Two Hits", "One Hit"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollectRecordsQueryStats(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, nil)

	postings := &posting.Postings{Items: []*posting.Posting{
		remotePosting("Go Engineer", "A", "https://a.io/1", "golang remote", "go"),
		remotePosting("Analyst", "B", "https://b.io/2", "golang remote", "nothing relevant"),
		remotePosting("SRE", "C", "https://c.io/3", "sre remote", "kubernetes"),
	}}

	p.Collect(postings)

	runs, found, passed := p.tracker.Totals()
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
	if found != 3 {
		t.Errorf("found = %d, want 3", found)
	}
	if passed != 2 {
		t.Errorf("passed = %d, want 2", passed)
	}
}

func TestCollectDuplicatesLeaveQueryStatsUntouched(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, nil)

	postings := &posting.Postings{Items: []*posting.Posting{
		remotePosting("Go Engineer", "A", "https://a.io/1", "golang remote", "go services"),
		remotePosting("Platform Engineer", "B", "https://b.io/2", "golang remote", "go and kubernetes"),
	}}

	first := p.Collect(postings)
	for _, c := range first.Candidates {
		p.ledger.Record(c.Identity, c.Posting.Source, state.StatusScored)
	}

	second := p.Collect(postings)
	if second.Summary.Duplicates != 2 {
		t.Fatalf("Duplicates = %d, want 2", second.Summary.Duplicates)
	}

	_, found, passed := p.tracker.Totals()
	if found != 2 {
		t.Errorf("found = %d, want 2 (re-discovered postings must not inflate found)", found)
	}
	if passed != 2 {
		t.Errorf("passed = %d, want 2", passed)
	}
}

func TestScoreRecordsResults(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{results: map[string]*scoring.Result{}}
	p := newTestPipeline(t, scorer)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})
	if len(run.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(run.Candidates))
	}
	id := run.Candidates[0].Identity
	scorer.results[id] = &scoring.Result{Score: 84, Reasoning: "strong fit"}

	if err := p.Score(context.Background(), run); err != nil {
		t.Fatalf("Score: %v", err)
	}

	if run.Summary.Scored != 1 {
		t.Errorf("Scored = %d, want 1", run.Summary.Scored)
	}
	if run.Candidates[0].Fit == nil || run.Candidates[0].Fit.Score != 84 {
		t.Fatalf("Fit = %+v, want score 84", run.Candidates[0].Fit)
	}

	entry := p.ledger.Get(id)
	if entry == nil {
		t.Fatal("scored posting missing from ledger")
	}
	if entry.Status != state.StatusScored {
		t.Errorf("status = %q, want %q", entry.Status, state.StatusScored)
	}
	if entry.LastScore == nil || *entry.LastScore != 84 {
		t.Errorf("LastScore = %v, want 84", entry.LastScore)
	}
}

func TestScoreRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{errs: map[string][]error{}}
	p := newTestPipeline(t, scorer)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})
	id := run.Candidates[0].Identity
	scorer.errs[id] = []error{
		&scoring.TransientError{Err: errors.New("429 resource exhausted")},
	}

	if err := p.Score(context.Background(), run); err != nil {
		t.Fatalf("Score: %v", err)
	}

	if scorer.calls != 2 {
		t.Errorf("scorer calls = %d, want 2", scorer.calls)
	}
	if run.Summary.Scored != 1 {
		t.Errorf("Scored = %d, want 1", run.Summary.Scored)
	}
}

func TestScoreExhaustionLeavesPostingUnrecorded(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{errs: map[string][]error{}}
	p := newTestPipeline(t, scorer)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})
	id := run.Candidates[0].Identity
	scorer.errs[id] = []error{
		&scoring.TransientError{Err: errors.New("503")},
		&scoring.TransientError{Err: errors.New("503")},
		&scoring.TransientError{Err: errors.New("503")},
	}

	if err := p.Score(context.Background(), run); err != nil {
		t.Fatalf("Score: %v", err)
	}

	if run.Summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1", run.Summary.Errors)
	}
	if run.Summary.Scored != 0 {
		t.Errorf("Scored = %d, want 0", run.Summary.Scored)
	}
	if p.ledger.HasSeen(id) {
		t.Error("exhausted posting recorded in ledger, should be retried next run")
	}
}

func TestScorePermanentErrorDoesNotRetry(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{errs: map[string][]error{}}
	p := newTestPipeline(t, scorer)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})
	id := run.Candidates[0].Identity
	scorer.errs[id] = []error{errors.New("invalid api key")}

	if err := p.Score(context.Background(), run); err != nil {
		t.Fatalf("Score: %v", err)
	}

	if scorer.calls != 1 {
		t.Errorf("scorer calls = %d, want 1", scorer.calls)
	}
	if run.Summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1", run.Summary.Errors)
	}
}

func TestScoreWithoutScorerMarksReported(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, nil)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})
	id := run.Candidates[0].Identity

	if err := p.Score(context.Background(), run); err != nil {
		t.Fatalf("Score: %v", err)
	}

	entry := p.ledger.Get(id)
	if entry == nil {
		t.Fatal("candidate missing from ledger")
	}
	if entry.Status != state.StatusReported {
		t.Errorf("status = %q, want %q", entry.Status, state.StatusReported)
	}
}

func TestScoreHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{}
	p := newTestPipeline(t, scorer)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Score(ctx, run); !errors.Is(err, context.Canceled) {
		t.Fatalf("Score err = %v, want context.Canceled", err)
	}
}

func TestMarkReportedAdvancesScored(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{}
	p := newTestPipeline(t, scorer)

	pp := remotePosting("Go Engineer", "Acme", "https://acme.com/jobs/1", "golang", "go services")
	run := p.Collect(&posting.Postings{Items: []*posting.Posting{pp}})
	id := run.Candidates[0].Identity

	if err := p.Score(context.Background(), run); err != nil {
		t.Fatalf("Score: %v", err)
	}
	p.MarkReported(run)

	entry := p.ledger.Get(id)
	if entry.Status != state.StatusReported {
		t.Errorf("status = %q, want %q", entry.Status, state.StatusReported)
	}
	if entry.LastScore == nil || *entry.LastScore != 50 {
		t.Errorf("LastScore = %v, want 50", entry.LastScore)
	}
}
