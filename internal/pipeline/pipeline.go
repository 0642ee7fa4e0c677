// Package pipeline sequences the discovery-to-candidate flow: identity
// normalization, dedup against the seen-job ledger, keyword triage, network
// matching, the paid scoring boundary, and the write-back of ledger and
// query statistics.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhall-io/jobscout/internal/network"
	"github.com/mhall-io/jobscout/internal/posting"
	"github.com/mhall-io/jobscout/internal/scoring"
	"github.com/mhall-io/jobscout/internal/state"
	"github.com/mhall-io/jobscout/internal/triage"
)

const (
	defaultMaxScoreAttempts = 3
	defaultRetryDeadline    = 2 * time.Minute
	defaultScoreRate        = 2.0
)

// Summary counts every outcome of a run. It is reported whether or not the
// run completed.
type Summary struct {
	Discovered int
	Malformed  int
	Duplicates int
	TriagedOut int
	Passed     int
	Scored     int
	Errors     int
}

// Candidate is a posting that survived dedup and triage, enriched with
// network matches and, after scoring, the fit result.
type Candidate struct {
	Posting  *posting.Posting
	Identity string
	Triage   *triage.Result
	Matches  []*network.Match
	Fit      *scoring.Result
}

// Run holds the state of one pipeline invocation between the collect and
// score phases.
type Run struct {
	Summary    Summary
	Candidates []*Candidate
}

// Config tunes the scoring boundary. Zero values get defaults.
type Config struct {
	// MaxScoreAttempts bounds retries per candidate at the scoring
	// boundary.
	MaxScoreAttempts uint64
	// RetryDeadline is the hard per-candidate deadline across retries so
	// run duration stays predictable.
	RetryDeadline time.Duration
	// ScoreRatePerSecond paces calls to the scoring provider.
	ScoreRatePerSecond float64
}

// Pipeline wires the core components together. The ledger and tracker are
// run-local single-writer stores: the pipeline mutates them in memory and
// the caller flushes them once at run end.
type Pipeline struct {
	ledger  *state.Ledger
	tracker *state.Tracker
	rules   *triage.Rules
	matcher *network.Matcher
	scorer  scoring.Scorer
	logger  *zap.Logger

	limiter       *rate.Limiter
	maxAttempts   uint64
	retryDeadline time.Duration
	retryInterval time.Duration
}

// New builds a pipeline. The matcher may be nil (no connections imported)
// and the scorer may be nil (scoring disabled); both degrade gracefully.
func New(ledger *state.Ledger, tracker *state.Tracker, rules *triage.Rules, matcher *network.Matcher, scorer scoring.Scorer, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.MaxScoreAttempts == 0 {
		cfg.MaxScoreAttempts = defaultMaxScoreAttempts
	}
	if cfg.RetryDeadline == 0 {
		cfg.RetryDeadline = defaultRetryDeadline
	}
	if cfg.ScoreRatePerSecond <= 0 {
		cfg.ScoreRatePerSecond = defaultScoreRate
	}

	return &Pipeline{
		ledger:        ledger,
		tracker:       tracker,
		rules:         rules,
		matcher:       matcher,
		scorer:        scorer,
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Limit(cfg.ScoreRatePerSecond), 1),
		maxAttempts:   cfg.MaxScoreAttempts,
		retryDeadline: cfg.RetryDeadline,
		retryInterval: time.Second,
	}
}

// Collect runs the free half of the pipeline over the discovered postings:
// identity, dedup, triage, and network matching. Candidates come back
// sorted by triage score descending so the most promising are scored first.
// Query statistics are recorded here since yield depends only on triage.
func (p *Pipeline) Collect(postings *posting.Postings) *Run {
	run := &Run{}
	queryFound := make(map[string]int)
	queryPassed := make(map[string]int)

	if postings == nil {
		postings = &posting.Postings{}
	}

	for _, pp := range postings.Items {
		run.Summary.Discovered++

		identity, err := posting.Identity(pp)
		if err != nil {
			run.Summary.Malformed++
			p.logger.Warn("skipping unusable posting",
				zap.String("title", pp.Title),
				zap.String("source", pp.Source),
				zap.Error(err),
			)
			continue
		}

		// Dedup is side-effect free: a seen posting must not touch query
		// statistics, or re-discovering old hits would decay a query's
		// yield run over run.
		if p.ledger.HasSeen(identity) {
			run.Summary.Duplicates++
			continue
		}

		if pp.SourceQuery != "" {
			queryFound[pp.SourceQuery]++
		}

		result := triage.Run(pp, identity, p.rules)
		if !result.Passed {
			p.ledger.Record(identity, pp.Source, state.StatusTriagedOut)
			p.ledger.Annotate(identity, pp.URL, pp.Title, pp.Employer)
			run.Summary.TriagedOut++
			continue
		}

		run.Summary.Passed++
		if pp.SourceQuery != "" {
			queryPassed[pp.SourceQuery]++
		}

		candidate := &Candidate{
			Posting:  pp,
			Identity: identity,
			Triage:   result,
		}
		if p.matcher != nil {
			candidate.Matches = p.matcher.Match(identity, pp.Employer)
		}

		run.Candidates = append(run.Candidates, candidate)
	}

	sort.SliceStable(run.Candidates, func(i, j int) bool {
		return run.Candidates[i].Triage.Score > run.Candidates[j].Triage.Score
	})

	for query, found := range queryFound {
		p.tracker.RecordRun(query, found, queryPassed[query])
	}

	p.logger.Info("collection complete",
		zap.Int("discovered", run.Summary.Discovered),
		zap.Int("duplicates", run.Summary.Duplicates),
		zap.Int("malformed", run.Summary.Malformed),
		zap.Int("triaged_out", run.Summary.TriagedOut),
		zap.Int("candidates", len(run.Candidates)),
	)

	return run
}

// Score sends candidates across the scoring boundary, best triage score
// first. Transient provider failures are retried with exponential backoff
// under a per-candidate deadline; on exhaustion the posting is left
// unrecorded so the next run picks it up again instead of losing it. With
// no scorer configured, candidates are recorded as reported directly.
func (p *Pipeline) Score(ctx context.Context, run *Run) error {
	if p.scorer == nil {
		for _, c := range run.Candidates {
			p.ledger.Record(c.Identity, c.Posting.Source, state.StatusReported)
			p.ledger.Annotate(c.Identity, c.Posting.URL, c.Posting.Title, c.Posting.Employer)
		}
		return nil
	}

	for _, c := range run.Candidates {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		result, err := p.scoreWithRetry(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			run.Summary.Errors++
			p.logger.Warn("scoring failed, posting left for next run",
				zap.String("identity", c.Identity),
				zap.String("title", c.Posting.Title),
				zap.Error(err),
			)
			continue
		}

		c.Fit = result
		p.ledger.Record(c.Identity, c.Posting.Source, state.StatusScored)
		p.ledger.Annotate(c.Identity, c.Posting.URL, c.Posting.Title, c.Posting.Employer)
		p.ledger.SetScore(c.Identity, result.Score, state.StatusScored)
		run.Summary.Scored++

		p.logger.Info("candidate scored",
			zap.String("identity", c.Identity),
			zap.String("employer", c.Posting.Employer),
			zap.Int("fit_score", result.Score),
			zap.Int("network_matches", len(c.Matches)),
		)
	}

	return nil
}

// scoreWithRetry wraps one scoring call in a bounded-attempt exponential
// backoff loop with a hard deadline. Only transient provider errors retry.
func (p *Pipeline) scoreWithRetry(ctx context.Context, c *Candidate) (*scoring.Result, error) {
	req := &scoring.Request{
		Posting:  c.Posting,
		Identity: c.Identity,
		Triage:   c.Triage,
		Matches:  c.Matches,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.retryInterval
	policy.MaxElapsedTime = p.retryDeadline

	var result *scoring.Result
	err := backoff.Retry(func() error {
		res, err := p.scorer.Score(ctx, req)
		if err != nil {
			var transient *scoring.TransientError
			if errors.As(err, &transient) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, p.maxAttempts), ctx))
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkReported advances scored candidates to reported once they have been
// written into a report.
func (p *Pipeline) MarkReported(run *Run) {
	for _, c := range run.Candidates {
		if c.Fit == nil {
			continue
		}
		p.ledger.SetScore(c.Identity, c.Fit.Score, state.StatusReported)
	}
}
