package state

import (
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const ledgerFile = "seen_jobs.json"

// Status tracks how far a posting advanced through the pipeline.
type Status string

const (
	StatusTriagedOut Status = "triaged_out"
	StatusScored     Status = "scored"
	StatusReported   Status = "reported"
)

// SeenJob is the ledger record for one posting identity. The identity itself
// is the map key and never changes; records are updated as the posting
// advances through stages but never deleted.
type SeenJob struct {
	FirstSeenAt time.Time `json:"first_seen_at"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Employer    string    `json:"employer,omitempty"`
	LastScore   *int      `json:"last_score,omitempty"`
	Status      Status    `json:"status"`
}

// Ledger is the persistent set of every posting identity ever processed.
// It is loaded once at run start, mutated in memory by a single writer, and
// flushed once at run end. Concurrent runs are not supported.
type Ledger struct {
	path   string
	jobs   map[string]*SeenJob
	logger *zap.Logger
	now    func() time.Time
}

// OpenLedger loads the seen-job ledger from dataDir. A missing file is an
// empty ledger (first run); a corrupt file fails loudly with a CorruptError.
func OpenLedger(dataDir string, logger *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		path:   filepath.Join(dataDir, ledgerFile),
		jobs:   make(map[string]*SeenJob),
		logger: logger,
		now:    time.Now,
	}

	loaded, err := loadJSON(l.path, &l.jobs)
	if err != nil {
		return nil, err
	}
	if l.jobs == nil {
		l.jobs = make(map[string]*SeenJob)
	}

	if loaded {
		logger.Info("ledger loaded", zap.Int("seen_jobs", len(l.jobs)))
	} else {
		logger.Info("no ledger found, starting empty", zap.String("path", l.path))
	}

	return l, nil
}

// HasSeen reports whether the identity was recorded by any previous run.
func (l *Ledger) HasSeen(identity string) bool {
	_, ok := l.jobs[identity]
	return ok
}

// Record inserts a new entry for the identity or updates the status of an
// existing one. FirstSeenAt is set on insert only.
func (l *Ledger) Record(identity, source string, status Status) {
	if entry, ok := l.jobs[identity]; ok {
		entry.Status = status
		return
	}
	l.jobs[identity] = &SeenJob{
		FirstSeenAt: l.now().UTC(),
		Source:      source,
		Status:      status,
	}
}

// Annotate attaches display metadata to an existing entry. Missing entries
// are ignored.
func (l *Ledger) Annotate(identity, url, title, employer string) {
	entry, ok := l.jobs[identity]
	if !ok {
		return
	}
	entry.URL = url
	entry.Title = title
	entry.Employer = employer
}

// SetScore stores the latest fit score for the identity and advances its
// status. Missing entries are ignored.
func (l *Ledger) SetScore(identity string, score int, status Status) {
	entry, ok := l.jobs[identity]
	if !ok {
		return
	}
	entry.LastScore = &score
	entry.Status = status
}

// Get returns the record for the identity, or nil.
func (l *Ledger) Get(identity string) *SeenJob {
	return l.jobs[identity]
}

func (l *Ledger) Len() int { return len(l.jobs) }

// Reset discards all history. Only the explicit reset command calls this.
func (l *Ledger) Reset() {
	l.jobs = make(map[string]*SeenJob)
}

// Flush persists the full ledger with a stage-then-rename write.
func (l *Ledger) Flush() error {
	if err := writeJSONAtomic(l.path, l.jobs); err != nil {
		return err
	}
	l.logger.Info("ledger flushed", zap.Int("seen_jobs", len(l.jobs)))
	return nil
}
