package state

import (
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

const trackerFile = "query_stats.json"

// QueryStat accumulates per-query discovery results across runs. The yield
// ratio (passed / found) ranks queries for later runs.
type QueryStat struct {
	RunsExecuted int        `json:"runs_executed"`
	FoundTotal   int        `json:"postings_found_total"`
	PassedTotal  int        `json:"postings_passed_triage_total"`
	LastRunAt    time.Time  `json:"last_run_at"`
	History      []RunEntry `json:"history,omitempty"`
}

// RunEntry is one run's contribution to a query's history.
type RunEntry struct {
	At     time.Time `json:"at"`
	Found  int       `json:"found"`
	Passed int       `json:"passed"`
}

// Yield is the fraction of a query's discovered postings that survived
// triage.
func (s *QueryStat) Yield() float64 {
	found := s.FoundTotal
	if found < 1 {
		found = 1
	}
	return float64(s.PassedTotal) / float64(found)
}

// RankedQuery pairs a query with its effective yield for reporting.
type RankedQuery struct {
	Query string
	Stat  *QueryStat
	Yield float64
}

// Tracker owns the persisted query-performance document. Like the Ledger it
// is a run-local single-writer store: loaded at start, flushed at end.
type Tracker struct {
	path   string
	stats  map[string]*QueryStat
	logger *zap.Logger
	now    func() time.Time
}

// OpenTracker loads query statistics from dataDir. Missing file means no
// history yet; a corrupt file fails loudly.
func OpenTracker(dataDir string, logger *zap.Logger) (*Tracker, error) {
	t := &Tracker{
		path:   filepath.Join(dataDir, trackerFile),
		stats:  make(map[string]*QueryStat),
		logger: logger,
		now:    time.Now,
	}

	if _, err := loadJSON(t.path, &t.stats); err != nil {
		return nil, err
	}
	if t.stats == nil {
		t.stats = make(map[string]*QueryStat)
	}

	logger.Info("query tracker loaded", zap.Int("tracked_queries", len(t.stats)))
	return t, nil
}

// RecordRun adds one run's counters to the query's cumulative stats.
func (t *Tracker) RecordRun(query string, found, passed int) {
	now := t.now().UTC()

	stat, ok := t.stats[query]
	if !ok {
		stat = &QueryStat{}
		t.stats[query] = stat
	}

	stat.RunsExecuted++
	stat.FoundTotal += found
	stat.PassedTotal += passed
	stat.LastRunAt = now
	stat.History = append(stat.History, RunEntry{At: now, Found: found, Passed: passed})
}

// Rank orders the given queries by descending historical yield. Queries with
// no history are ranked at the median yield of known queries so new queries
// are not starved before they accumulate data. The order is advisory: all
// queries still run, only their priority changes.
func (t *Tracker) Rank(queries []string) []string {
	known := make([]float64, 0, len(t.stats))
	for _, stat := range t.stats {
		if stat.RunsExecuted > 0 {
			known = append(known, stat.Yield())
		}
	}
	neutral := median(known)

	type ranked struct {
		query string
		yield float64
	}

	out := make([]ranked, 0, len(queries))
	for _, q := range queries {
		y := neutral
		if stat, ok := t.stats[q]; ok && stat.RunsExecuted > 0 {
			y = stat.Yield()
		}
		out = append(out, ranked{query: q, yield: y})
	}

	// Stable keeps the configured order for ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].yield > out[j].yield
	})

	result := make([]string, len(out))
	for i, r := range out {
		result[i] = r.query
	}
	return result
}

// Top returns the best-performing queries by yield, up to n.
func (t *Tracker) Top(n int) []RankedQuery {
	ranked := make([]RankedQuery, 0, len(t.stats))
	for query, stat := range t.stats {
		if stat.RunsExecuted == 0 {
			continue
		}
		ranked = append(ranked, RankedQuery{Query: query, Stat: stat, Yield: stat.Yield()})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Yield != ranked[j].Yield {
			return ranked[i].Yield > ranked[j].Yield
		}
		return ranked[i].Query < ranked[j].Query
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Totals sums counters across all tracked queries.
func (t *Tracker) Totals() (runs, found, passed int) {
	for _, stat := range t.stats {
		runs += stat.RunsExecuted
		found += stat.FoundTotal
		passed += stat.PassedTotal
	}
	return runs, found, passed
}

func (t *Tracker) Len() int { return len(t.stats) }

// Flush persists the tracker with the same atomic discipline as the ledger.
func (t *Tracker) Flush() error {
	if err := writeJSONAtomic(t.path, t.stats); err != nil {
		return err
	}
	t.logger.Info("query tracker flushed", zap.Int("tracked_queries", len(t.stats)))
	return nil
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
