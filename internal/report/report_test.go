package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/network"
	"github.com/mhall-io/jobscout/internal/pipeline"
	"github.com/mhall-io/jobscout/internal/posting"
	"github.com/mhall-io/jobscout/internal/scoring"
	"github.com/mhall-io/jobscout/internal/state"
	"github.com/mhall-io/jobscout/internal/triage"
)

func fixedGenerator(t *testing.T) (*Generator, string) {
	t.Helper()
	dir := t.TempDir()
	g := NewGenerator(dir, zap.NewNop())
	g.now = func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	}
	return g, dir
}

func TestGenerateOrdersByFitScore(t *testing.T) {
	t.Parallel()

	g, _ := fixedGenerator(t)

	run := &pipeline.Run{
		Summary: pipeline.Summary{Discovered: 12, Scored: 2},
		Candidates: []*pipeline.Candidate{
			{
				Posting: &posting.Posting{Title: "Okay Role", Employer: "Acme", URL: "https://acme.com/1"},
				Triage:  &triage.Result{Score: 6},
				Fit:     &scoring.Result{Score: 55, Reasoning: "Moderate overlap."},
			},
			{
				Posting: &posting.Posting{Title: "Unscored Role", Employer: "Gamma"},
				Triage:  &triage.Result{Score: 9},
			},
			{
				Posting: &posting.Posting{Title: "Great Role", Employer: "Beta", URL: "https://beta.io/2", IsRemote: true},
				Triage:  &triage.Result{Score: 7},
				Fit:     &scoring.Result{Score: 91, Reasoning: "Strong overlap."},
			},
		},
	}

	path, err := g.Generate(run, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	content := string(raw)

	great := strings.Index(content, "## 1. Great Role at Beta")
	okay := strings.Index(content, "## 2. Okay Role at Acme")
	unscored := strings.Index(content, "## 3. Unscored Role at Gamma")
	if great < 0 || okay < 0 || unscored < 0 {
		t.Fatalf("candidate headers missing or misordered:\n%s", content)
	}
	if !(great < okay && okay < unscored) {
		t.Error("candidates not ordered scored-by-fit first")
	}
	if !strings.Contains(content, "**Fit:** 91/100") {
		t.Error("fit score line missing")
	}
	if !strings.Contains(content, "**Fit:** not scored") {
		t.Error("unscored candidate line missing")
	}
	if !strings.Contains(content, "Strong overlap.") {
		t.Error("reasoning missing")
	}
	if !strings.Contains(content, "**[Apply](https://beta.io/2)**") {
		t.Error("apply link missing")
	}
	if !strings.HasSuffix(path, "2026-03-10.md") {
		t.Errorf("path = %q, want date-stamped filename", path)
	}
}

func TestGenerateEmptyRun(t *testing.T) {
	t.Parallel()

	g, _ := fixedGenerator(t)

	run := &pipeline.Run{Summary: pipeline.Summary{Discovered: 40}}
	path, err := g.Generate(run, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(raw), "No new candidates today. 40 postings were scanned.") {
		t.Errorf("empty-run message missing:\n%s", raw)
	}
}

func TestGenerateIncludesConnectionsAndQueries(t *testing.T) {
	t.Parallel()

	g, _ := fixedGenerator(t)

	run := &pipeline.Run{
		Candidates: []*pipeline.Candidate{
			{
				Posting: &posting.Posting{Title: "Enablement Lead", Employer: "Stripe"},
				Triage:  &triage.Result{Score: 8},
				Fit:     &scoring.Result{Score: 80, Reasoning: "Good."},
				Matches: []*network.Match{
					{
						Connection: &network.Connection{FullName: "Dana Smith", Company: "Stripe", Title: "Staff PM"},
						Kind:       network.MatchExact,
						Similarity: 1.0,
					},
				},
			},
		},
	}
	queries := []state.RankedQuery{
		{
			Query: "ai enablement remote",
			Stat:  &state.QueryStat{RunsExecuted: 3, FoundTotal: 30, PassedTotal: 9},
			Yield: 0.3,
		},
	}

	path, err := g.Generate(run, queries)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	content := string(raw)

	if !strings.Contains(content, "**Connections at Stripe:**") {
		t.Error("connections section missing")
	}
	if !strings.Contains(content, "Dana Smith -- Staff PM (exact, similarity 1.00)") {
		t.Errorf("connection line missing:\n%s", content)
	}
	if !strings.Contains(content, "## Query performance") {
		t.Error("query performance section missing")
	}
	if !strings.Contains(content, "| ai enablement remote | 3 | 30 | 9 | 0.30 |") {
		t.Errorf("query row missing:\n%s", content)
	}
}
