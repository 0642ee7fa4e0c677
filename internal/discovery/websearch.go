package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhall-io/jobscout/internal/posting"
)

const searchAPIBaseURL = "https://www.searchapi.io/api/v1/search"

// jobIndicators mark a search result as a probable job posting. The check
// runs over URL, title, and snippet combined.
var jobIndicators = []string{
	"/jobs/",
	"/careers/",
	"/positions/",
	"/job/",
	"/apply/",
	"greenhouse.io",
	"lever.co",
	"ashbyhq.com",
	"workday.com",
	"posting",
	"apply now",
	"we're hiring",
	"job description",
	"we are looking for",
	"qualifications",
	"responsibilities",
}

var atsBoardHosts = []string{"boards.greenhouse.io", "jobs.lever.co", "jobs.ashbyhq.com"}

// WebSearch discovers postings on niche boards and career pages through
// SearchAPI.io Google search.
type WebSearch struct {
	apiKey  string
	queries []string
	logger  *zap.Logger

	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	perQuery   int
}

// NewWebSearch builds a search source. With an empty API key Discover is a
// logged no-op so the rest of the run proceeds.
func NewWebSearch(apiKey string, queries []string, logger *zap.Logger) *WebSearch {
	return &WebSearch{
		apiKey:     apiKey,
		queries:    queries,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		baseURL:    searchAPIBaseURL,
		perQuery:   20,
	}
}

func (w *WebSearch) Name() string { return "websearch" }

func (w *WebSearch) Discover(ctx context.Context) ([]*posting.Posting, error) {
	if w.apiKey == "" {
		w.logger.Info("search api key not configured, skipping web search discovery")
		return nil, nil
	}

	var all []*posting.Posting
	for _, query := range w.queries {
		if err := w.limiter.Wait(ctx); err != nil {
			return all, err
		}

		found, err := w.search(ctx, query)
		if err != nil {
			w.logger.Warn("search query failed",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}

		w.logger.Debug("search query finished",
			zap.String("query", query),
			zap.Int("job_like_results", len(found)),
		)
		all = append(all, found...)
	}

	return all, nil
}

type searchResult struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

func (w *WebSearch) search(ctx context.Context, query string) ([]*posting.Posting, error) {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", w.apiKey)
	q.Set("num", fmt.Sprintf("%d", w.perQuery))
	// Google freshness filter: past 3 days.
	q.Set("tbs", "qdr:d3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Encode()

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var results []searchResult
	if err := decodeItems(payload["organic_results"], &results); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	var postings []*posting.Posting
	for _, r := range results {
		if r.Link == "" || !looksLikeJob(r) {
			continue
		}

		postings = append(postings, &posting.Posting{
			Title:       r.Title,
			Employer:    extractCompany(r),
			URL:         r.Link,
			Description: r.Snippet,
			PostedAt:    r.Date,
			Source:      "websearch",
			SourceQuery: query,
		})
	}

	return postings, nil
}

func looksLikeJob(r searchResult) bool {
	combined := strings.ToLower(r.Link + " " + r.Title + " " + r.Snippet)
	for _, indicator := range jobIndicators {
		if strings.Contains(combined, indicator) {
			return true
		}
	}

	return false
}

// extractCompany guesses the employer from an ATS board path, a
// "Title - Company" result title, or the bare domain, in that order.
func extractCompany(r searchResult) string {
	parsed, err := url.Parse(r.Link)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())

	for _, boardHost := range atsBoardHosts {
		if host != boardHost {
			continue
		}
		for _, segment := range strings.Split(parsed.Path, "/") {
			if segment != "" {
				return segment
			}
		}
	}

	for _, sep := range []string{" - ", " | ", " at "} {
		if idx := strings.LastIndex(r.Title, sep); idx >= 0 {
			if company := strings.TrimSpace(r.Title[idx+len(sep):]); company != "" {
				return company
			}
		}
	}

	domain := host
	for _, prefix := range []string{"www.", "jobs.", "careers.", "boards.", "apply."} {
		domain = strings.TrimPrefix(domain, prefix)
	}
	if idx := strings.LastIndex(domain, "."); idx > 0 {
		domain = domain[:idx]
	}

	return domain
}
