package discovery

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhall-io/jobscout/internal/network"
)

// Verification thresholds for probed boards. A 200 from a board API only
// proves the slug exists, not that it belongs to the company we asked about.
const (
	boardNameSimilarity        = 0.70
	boardNamePartialSimilarity = 0.85
	slugSimilarity             = 0.80
	minSubstringSlugLen        = 5
)

var (
	slugCleanRe  = regexp.MustCompile(`[^a-z0-9\s\-]`)
	slugSpacesRe = regexp.MustCompile(`\s+`)
	alnumOnlyRe  = regexp.MustCompile(`[^a-z0-9]`)
)

// Detector identifies which ATS a company uses by probing the same public
// board APIs the poller reads, with candidate slugs derived from the
// company name.
type Detector struct {
	logger *zap.Logger

	httpClient *http.Client
	limiter    *rate.Limiter

	greenhouseURL string
	leverURL      string
	ashbyURL      string
}

func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		logger:     logger,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		// Probing fans out across several slug variants per company, so
		// the detector paces harder than the poller.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),

		greenhouseURL: greenhouseBaseURL,
		leverURL:      leverBaseURL,
		ashbyURL:      ashbyBaseURL,
	}
}

// Detect probes Greenhouse, Lever, and Ashby for a board belonging to the
// named company. It returns nil with no error when no board is found.
// Workday boards are not probed: the poller has no workday support, so a
// detected workday token would be unusable.
func (d *Detector) Detect(ctx context.Context, companyName string) (*CompanyRef, error) {
	slugs := slugCandidates(companyName)
	d.logger.Debug("probing ats boards",
		zap.String("company", companyName),
		zap.Strings("slugs", slugs),
	)

	for _, slug := range slugs {
		probes := []struct {
			ats string
			url string
		}{
			{"greenhouse", fmt.Sprintf("%s/%s/jobs", d.greenhouseURL, slug)},
			{"lever", fmt.Sprintf("%s/%s", d.leverURL, slug)},
			{"ashby", fmt.Sprintf("%s/%s", d.ashbyURL, slug)},
		}

		for _, probe := range probes {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			boardName, ok := d.probe(ctx, probe.ats, probe.url)
			if !ok {
				continue
			}
			if !verifyBoard(companyName, slug, boardName) {
				d.logger.Debug("board verification failed",
					zap.String("company", companyName),
					zap.String("ats", probe.ats),
					zap.String("slug", slug),
					zap.String("board_name", boardName),
				)
				continue
			}

			d.logger.Info("ats detected",
				zap.String("company", companyName),
				zap.String("ats", probe.ats),
				zap.String("slug", slug),
			)
			return &CompanyRef{Name: companyName, ATS: probe.ats, BoardToken: slug}, nil
		}
	}

	d.logger.Debug("no ats detected", zap.String("company", companyName))
	return nil, nil
}

// probe fetches one board URL. It reports whether the response looks like a
// real board and, for Ashby, the organization name the board claims.
func (d *Detector) probe(ctx context.Context, ats, url string) (boardName string, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", atsUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Debug("probe failed", zap.String("url", url), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	switch ats {
	case "lever":
		// Lever boards answer with a bare list of postings.
		var items []json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
			return "", false
		}
		return "", true
	default:
		var payload struct {
			Jobs []struct {
				OrganizationName string `json:"organizationName"`
			} `json:"jobs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", false
		}
		if payload.Jobs == nil {
			return "", false
		}
		if ats == "ashby" && len(payload.Jobs) > 0 {
			boardName = payload.Jobs[0].OrganizationName
		}
		return boardName, true
	}
}

// slugCandidates derives the board token slugs a company is likely to use.
// "Khan Academy, Inc." yields "khanacademy", "khan-academy", "khan_academy".
func slugCandidates(companyName string) []string {
	cleaned := slugCleanRe.ReplaceAllString(network.NormalizeCompany(companyName), "")
	cleaned = strings.TrimSpace(cleaned)

	var slugs []string
	seen := map[string]bool{}
	add := func(slug string) {
		if slug != "" && !seen[slug] {
			seen[slug] = true
			slugs = append(slugs, slug)
		}
	}

	add(slugSpacesRe.ReplaceAllString(cleaned, ""))
	add(slugSpacesRe.ReplaceAllString(cleaned, "-"))
	add(slugSpacesRe.ReplaceAllString(cleaned, "_"))

	return slugs
}

// verifyBoard decides whether a responding board actually belongs to the
// company. Generic slugs like "community" get 200s from unrelated boards,
// so a bare response is never trusted on its own.
func verifyBoard(companyName, slug, boardName string) bool {
	normalized := network.NormalizeCompany(companyName)
	fullSlug := alnumOnlyRe.ReplaceAllString(normalized, "")

	if slug == fullSlug {
		return true
	}

	// Ashby boards name their organization; hold them to that name.
	if boardName != "" {
		board := network.NormalizeCompany(boardName)
		if levenshtein.Similarity(normalized, board, nil) >= boardNameSimilarity {
			return true
		}
		return partialSimilarity(normalized, board) >= boardNamePartialSimilarity
	}

	if levenshtein.Similarity(fullSlug, slug, nil) >= slugSimilarity {
		return true
	}

	return len(slug) >= minSubstringSlugLen && strings.Contains(fullSlug, slug)
}

// partialSimilarity scores the shorter string against every token span of
// the longer one, so "meta" still matches "meta platforms".
func partialSimilarity(a, b string) float64 {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	best := 0.0
	tokens := strings.Fields(longer)
	for width := 1; width <= len(tokens); width++ {
		for start := 0; start+width <= len(tokens); start++ {
			span := strings.Join(tokens[start:start+width], " ")
			if sim := levenshtein.Similarity(shorter, span, nil); sim > best {
				best = sim
			}
		}
	}

	return best
}

// ExtractCandidateCompanies pulls company names out of a LinkedIn data
// export that are not already monitored. It reads Jobs/Saved Jobs.csv and
// Company Follows.csv; either file may be absent.
func ExtractCandidateCompanies(exportDir string, existing []string, logger *zap.Logger) ([]string, error) {
	alreadyMonitored := map[string]bool{}
	for _, name := range existing {
		alreadyMonitored[network.NormalizeCompany(name)] = true
	}

	found := map[string]string{}
	sources := []struct {
		path   string
		column string
	}{
		{filepath.Join(exportDir, "Jobs", "Saved Jobs.csv"), "Company Name"},
		{filepath.Join(exportDir, "Company Follows.csv"), "Organization"},
	}

	for _, src := range sources {
		names, err := readCompanyColumn(src.path, src.column)
		if os.IsNotExist(err) {
			logger.Debug("export file not present, skipping", zap.String("path", src.path))
			continue
		}
		if err != nil {
			return nil, err
		}

		for _, name := range names {
			norm := network.NormalizeCompany(name)
			if norm == "" || alreadyMonitored[norm] {
				continue
			}
			if _, ok := found[norm]; !ok {
				found[norm] = name
			}
		}
	}

	candidates := make([]string, 0, len(found))
	for _, name := range found {
		candidates = append(candidates, name)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return strings.ToLower(candidates[i]) < strings.ToLower(candidates[j])
	})

	logger.Info("candidate companies extracted",
		zap.Int("count", len(candidates)),
		zap.String("dir", exportDir),
	)
	return candidates, nil
}

func readCompanyColumn(path, column string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	colIdx := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			colIdx = i
			break
		}
	}
	if colIdx == -1 {
		return nil, fmt.Errorf("%s has no %q column", path, column)
	}

	var names []string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if colIdx < len(record) {
			if name := strings.TrimSpace(record[colIdx]); name != "" {
				names = append(names, name)
			}
		}
	}

	return names, nil
}
