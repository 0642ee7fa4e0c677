// Package scoring defines the boundary to the paid semantic fit scorer.
// Everything on this side of the boundary is free and deterministic; the
// Scorer implementation is the one expensive, fallible call in a run.
package scoring

import (
	"context"
	"fmt"

	"github.com/mhall-io/jobscout/internal/network"
	"github.com/mhall-io/jobscout/internal/posting"
	"github.com/mhall-io/jobscout/internal/triage"
)

// Request bundles everything the scorer sees for one surviving candidate.
type Request struct {
	Posting  *posting.Posting
	Identity string
	Triage   *triage.Result
	Matches  []*network.Match
}

// Result is the scorer's verdict, treated as opaque by the pipeline.
type Result struct {
	// Score is the numeric fit score on a 0-100 scale.
	Score int
	// Reasoning is free-text explanation from the provider.
	Reasoning string
	// Raw preserves the unparsed provider response for reports.
	Raw string
}

// Scorer evaluates a candidate posting against the configured profile.
type Scorer interface {
	Score(ctx context.Context, req *Request) (*Result, error)
}

// TransientError wraps provider failures that are worth retrying with
// backoff (rate limits, server errors). Anything else is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient scoring failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }
