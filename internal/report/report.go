// Package report renders the run outcome as a markdown file so candidates
// can be reviewed outside the terminal.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mhall-io/jobscout/internal/pipeline"
	"github.com/mhall-io/jobscout/internal/state"
)

// Generator writes one report per day into <dataDir>/reports.
type Generator struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

func NewGenerator(dataDir string, logger *zap.Logger) *Generator {
	return &Generator{
		dir:    filepath.Join(dataDir, "reports"),
		logger: logger,
		now:    time.Now,
	}
}

// Generate writes the markdown report for a finished run and returns its
// path. Candidates are listed best fit first; unscored candidates follow,
// ordered by triage score.
func (g *Generator) Generate(run *pipeline.Run, topQueries []state.RankedQuery) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", err
	}

	day := g.now().UTC().Format("2006-01-02")
	path := filepath.Join(g.dir, day+".md")

	var b strings.Builder
	fmt.Fprintf(&b, "# Job Search Report -- %s\n\n", day)
	fmt.Fprintf(&b, "**Discovered:** %d | **Duplicates:** %d | **Triaged out:** %d | **Candidates:** %d | **Scored:** %d | **Errors:** %d\n\n",
		run.Summary.Discovered,
		run.Summary.Duplicates,
		run.Summary.TriagedOut,
		len(run.Candidates),
		run.Summary.Scored,
		run.Summary.Errors,
	)
	b.WriteString("---\n")

	candidates := orderForReport(run.Candidates)
	if len(candidates) == 0 {
		fmt.Fprintf(&b, "\nNo new candidates today. %d postings were scanned.\n", run.Summary.Discovered)
	}
	for i, c := range candidates {
		b.WriteString("\n")
		writeCandidate(&b, i+1, c)
		b.WriteString("---\n")
	}

	if len(topQueries) > 0 {
		b.WriteString("\n## Query performance\n\n")
		b.WriteString("| Query | Runs | Found | Passed | Yield |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, q := range topQueries {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %.2f |\n",
				q.Query, q.Stat.RunsExecuted, q.Stat.FoundTotal, q.Stat.PassedTotal, q.Yield)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}

	g.logger.Info("report written", zap.String("path", path), zap.Int("candidates", len(candidates)))
	return path, nil
}

// orderForReport puts scored candidates first by fit score descending, then
// the unscored ones in their triage order.
func orderForReport(candidates []*pipeline.Candidate) []*pipeline.Candidate {
	out := append([]*pipeline.Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := out[i].Fit, out[j].Fit
		switch {
		case fi != nil && fj != nil:
			return fi.Score > fj.Score
		case fi != nil:
			return true
		default:
			return false
		}
	})
	return out
}

func writeCandidate(b *strings.Builder, number int, c *pipeline.Candidate) {
	p := c.Posting

	fmt.Fprintf(b, "## %d. %s at %s\n\n", number, p.Title, p.Employer)

	if c.Fit != nil {
		fmt.Fprintf(b, "**Fit:** %d/100 | **Triage:** %d\n\n", c.Fit.Score, c.Triage.Score)
	} else {
		fmt.Fprintf(b, "**Fit:** not scored | **Triage:** %d\n\n", c.Triage.Score)
	}

	location := p.LocationText
	if location == "" {
		location = "Unknown"
	}
	remote := "Unknown"
	if p.IsRemote {
		remote = "Yes"
	}
	fmt.Fprintf(b, "**Location:** %s | **Remote:** %s\n", location, remote)

	posted := p.PostedAt
	if posted == "" {
		posted = "Unknown"
	}
	fmt.Fprintf(b, "**Posted:** %s | **Source:** %s\n", posted, p.Source)

	if c.Fit != nil && c.Fit.Reasoning != "" {
		fmt.Fprintf(b, "\n**Why this fits:** %s\n", c.Fit.Reasoning)
	}

	if len(c.Matches) > 0 {
		fmt.Fprintf(b, "\n**Connections at %s:**\n", p.Employer)
		for _, m := range c.Matches {
			fmt.Fprintf(b, "- %s -- %s (%s, similarity %.2f)\n",
				m.Connection.FullName, m.Connection.Title, m.Kind, m.Similarity)
		}
	}

	if p.URL != "" {
		fmt.Fprintf(b, "\n**[Apply](%s)**\n", p.URL)
	}
	b.WriteString("\n")
}
