// Package network fuzzy-matches posting employers against an imported
// connections list. Matching runs only for postings that already passed
// triage, so the connection list can be large without slowing the pipeline.
package network

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"
)

const (
	// DefaultSimilarityThreshold is the minimum similarity for a fuzzy hit.
	DefaultSimilarityThreshold = 0.82
	// DefaultMaxMatches caps how many matches flow downstream per posting.
	DefaultMaxMatches = 5

	// partialDiscount scales token-span matches so a bare substring hit
	// ("Meta" inside "Meta Platforms") never outranks a near-exact full
	// name match.
	partialDiscount = 0.9
)

// companySuffixes are stripped during normalization (after the trailing
// period is dropped), longest first so a shorter suffix never truncates a
// longer one.
var companySuffixes = []string{
	" incorporated", " corporation", " company",
	", inc", " inc",
	" corp", " llc", " ltd",
	" plc", " gmbh", " co",
}

var companyWhitespaceRe = regexp.MustCompile(`\s+`)

// MatchKind distinguishes exact normalized equality from fuzzy similarity.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
)

// Match links a posting to a connection at (or near) the posting's employer.
// Derived per run, not persisted.
type Match struct {
	PostingIdentity string
	Connection      *Connection
	Kind            MatchKind
	Similarity      float64
}

// ConfigError reports invalid matcher configuration. Fatal at startup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("network matcher config: %s", e.Reason)
}

// Config tunes the fuzzy matching pass.
type Config struct {
	SimilarityThreshold float64
	MaxMatches          int
}

// Matcher indexes connections by normalized company name and answers
// employer lookups with a cheap exact pass before the fuzzy pass.
type Matcher struct {
	connections []*Connection
	index       map[string][]*Connection
	threshold   float64
	maxMatches  int
	logger      *zap.Logger
}

// NewMatcher validates the config and indexes the given connections.
func NewMatcher(connections []*Connection, cfg Config, logger *zap.Logger) (*Matcher, error) {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxMatches == 0 {
		cfg.MaxMatches = DefaultMaxMatches
	}

	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("similarity threshold must be in (0,1], got %v", cfg.SimilarityThreshold)}
	}
	if cfg.MaxMatches < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("max matches must be positive, got %d", cfg.MaxMatches)}
	}

	index := make(map[string][]*Connection)
	for _, conn := range connections {
		key := conn.CompanyNormalized
		if key == "" {
			key = NormalizeCompany(conn.Company)
			conn.CompanyNormalized = key
		}
		if key == "" {
			continue
		}
		index[key] = append(index[key], conn)
	}

	return &Matcher{
		connections: connections,
		index:       index,
		threshold:   cfg.SimilarityThreshold,
		maxMatches:  cfg.MaxMatches,
		logger:      logger,
	}, nil
}

// Stats reports the size of the loaded network.
func (m *Matcher) Stats() (connections, companies int) {
	return len(m.connections), len(m.index)
}

// Match finds connections at the posting's employer. Exact normalized hits
// win outright with similarity 1.0; otherwise every indexed company is
// scored and hits at or above the threshold are returned best-first, capped.
// No match is not an error: the result is simply empty.
func (m *Matcher) Match(postingIdentity, employer string) []*Match {
	target := NormalizeCompany(employer)
	if target == "" || len(m.index) == 0 {
		return nil
	}

	if conns, ok := m.index[target]; ok {
		matches := make([]*Match, 0, len(conns))
		for _, conn := range conns {
			matches = append(matches, &Match{
				PostingIdentity: postingIdentity,
				Connection:      conn,
				Kind:            MatchExact,
				Similarity:      1.0,
			})
		}
		return m.cap(matches)
	}

	var matches []*Match
	for indexed, conns := range m.index {
		sim := companySimilarity(target, indexed)
		if sim < m.threshold {
			continue
		}
		for _, conn := range conns {
			matches = append(matches, &Match{
				PostingIdentity: postingIdentity,
				Connection:      conn,
				Kind:            MatchFuzzy,
				Similarity:      sim,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Connection.FullName < matches[j].Connection.FullName
	})

	return m.cap(matches)
}

func (m *Matcher) cap(matches []*Match) []*Match {
	if m.maxMatches > 0 && len(matches) > m.maxMatches {
		return matches[:m.maxMatches]
	}
	return matches
}

// NormalizeCompany lowercases a company name, strips legal suffixes, and
// collapses whitespace so "Meta Platforms, Inc." and "meta platforms"
// compare equal.
func NormalizeCompany(name string) string {
	result := strings.ToLower(strings.TrimSpace(name))
	result = strings.TrimSuffix(result, ".")
	for _, suffix := range companySuffixes {
		if strings.HasSuffix(result, suffix) {
			result = result[:len(result)-len(suffix)]
			break
		}
	}
	return companyWhitespaceRe.ReplaceAllString(strings.TrimSpace(result), " ")
}

// companySimilarity combines full-string edit distance with a discounted
// best-token-span pass, so abbreviation drift ("Meta" vs "Meta Platforms")
// scores high without letting unrelated names through.
func companySimilarity(a, b string) float64 {
	best := levenshtein.Similarity(a, b, nil)

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	tokens := strings.Fields(longer)
	for width := 1; width <= len(tokens); width++ {
		for start := 0; start+width <= len(tokens); start++ {
			span := strings.Join(tokens[start:start+width], " ")
			if sim := levenshtein.Similarity(shorter, span, nil) * partialDiscount; sim > best {
				best = sim
			}
		}
	}

	return best
}
