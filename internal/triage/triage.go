// Package triage implements the free keyword/location pre-filter that gates
// which postings proceed to paid semantic scoring. It is deterministic and
// performs no I/O.
package triage

import (
	"fmt"
	"strings"

	"github.com/mhall-io/jobscout/internal/posting"
)

const (
	defaultPositiveCap = 10
	defaultMinScore    = 4
)

// Rules configures the triage filter. All matching is case-insensitive
// substring matching.
type Rules struct {
	// PositiveKeywords each contribute +1 when found in title or
	// description, up to PositiveCap.
	PositiveKeywords []string
	// NegativeKeywords are exclusionary: any match forces score 0 and
	// failure, they are not merely subtractive.
	NegativeKeywords []string
	// AcceptedRegions gate by location. A posting passes the gate when it
	// is remote or its location contains any accepted region.
	AcceptedRegions []string
	// MinScore is the inclusive pass threshold. Nil means the default;
	// an explicit zero lets every posting past the keyword stage.
	MinScore *int
	// PositiveCap bounds the positive keyword contribution.
	PositiveCap int
}

// Normalize fills defaults and validates the rules.
func (r *Rules) Normalize() error {
	if r.PositiveCap == 0 {
		r.PositiveCap = defaultPositiveCap
	}
	if r.MinScore == nil {
		min := defaultMinScore
		r.MinScore = &min
	}
	if r.PositiveCap < 0 {
		return fmt.Errorf("triage: positive cap must be positive, got %d", r.PositiveCap)
	}
	if *r.MinScore < 0 {
		return fmt.Errorf("triage: minimum score must not be negative, got %d", *r.MinScore)
	}
	return nil
}

// Result is the outcome of triaging one posting. It is not persisted beyond
// the run, only summarized.
type Result struct {
	Identity string
	Score    int
	Passed   bool
	// Reasons lists matched and violated rule names in evaluation order.
	Reasons []string
}

// Run scores a posting against the rules. The location gate is a hard
// filter: failing it short-circuits to score 0 regardless of keywords.
// A missing description degrades gracefully to title-only scoring.
func Run(p *posting.Posting, identity string, rules *Rules) *Result {
	res := &Result{Identity: identity}

	if !locationPasses(p, rules.AcceptedRegions) {
		res.Reasons = append(res.Reasons, "location:rejected")
		return res
	}
	res.Reasons = append(res.Reasons, "location:accepted")

	title := strings.ToLower(p.Title)
	description := strings.ToLower(p.Description)

	for _, kw := range rules.NegativeKeywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(title, needle) || strings.Contains(description, needle) {
			res.Score = 0
			res.Passed = false
			res.Reasons = append(res.Reasons, "negative:"+needle)
			return res
		}
	}

	score := 0
	for _, kw := range rules.PositiveKeywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(title, needle) || strings.Contains(description, needle) {
			res.Reasons = append(res.Reasons, "keyword:"+needle)
			if score < rules.PositiveCap {
				score++
			}
		}
	}

	min := defaultMinScore
	if rules.MinScore != nil {
		min = *rules.MinScore
	}
	res.Score = score
	res.Passed = score >= min
	return res
}

// locationPasses implements the hard location gate: remote postings always
// pass, otherwise the location text must contain an accepted region.
// No configured regions means no gate.
func locationPasses(p *posting.Posting, regions []string) bool {
	if p.IsRemote {
		return true
	}
	if len(regions) == 0 {
		return true
	}

	location := strings.ToLower(p.LocationText)
	for _, region := range regions {
		needle := strings.ToLower(strings.TrimSpace(region))
		if needle == "" {
			continue
		}
		if strings.Contains(location, needle) {
			return true
		}
	}
	return false
}
