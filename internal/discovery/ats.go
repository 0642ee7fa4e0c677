package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mhall-io/jobscout/internal/posting"
)

const (
	greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"
	leverBaseURL      = "https://api.lever.co/v0/postings"
	ashbyBaseURL      = "https://api.ashbyhq.com/posting-api/job-board"

	// ATSQuery tags ATS postings in query statistics. Board polling has no
	// search query, so all boards share one bucket.
	ATSQuery = "ats_feed"

	atsUserAgent = "jobscout"
)

// CompanyRef names one monitored company board.
type CompanyRef struct {
	Name       string `json:"name" mapstructure:"name"`
	ATS        string `json:"ats" mapstructure:"ats"`
	BoardToken string `json:"board_token" mapstructure:"board_token"`
}

// ATSPoller polls Greenhouse, Lever, and Ashby public board APIs for the
// configured companies.
type ATSPoller struct {
	companies []CompanyRef
	maxAge    time.Duration
	logger    *zap.Logger

	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	greenhouseURL string
	leverURL      string
	ashbyURL      string
}

// NewATSPoller builds a poller. maxAge drops postings older than the given
// window; zero disables the recency filter.
func NewATSPoller(companies []CompanyRef, maxAge time.Duration, logger *zap.Logger) *ATSPoller {
	return &ATSPoller{
		companies:  companies,
		maxAge:     maxAge,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Half a second between board requests keeps us polite on the
		// public APIs.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		now:     time.Now,

		greenhouseURL: greenhouseBaseURL,
		leverURL:      leverBaseURL,
		ashbyURL:      ashbyBaseURL,
	}
}

func (p *ATSPoller) Name() string { return "ats" }

// Discover polls every configured board. A failing board is logged and
// skipped.
func (p *ATSPoller) Discover(ctx context.Context) ([]*posting.Posting, error) {
	var all []*posting.Posting

	for _, company := range p.companies {
		if company.BoardToken == "" {
			p.logger.Warn("company has no board token, skipping",
				zap.String("company", company.Name))
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return all, err
		}

		var (
			found []*posting.Posting
			err   error
		)
		switch company.ATS {
		case "greenhouse":
			found, err = p.fetchGreenhouse(ctx, company)
		case "lever":
			found, err = p.fetchLever(ctx, company)
		case "ashby":
			found, err = p.fetchAshby(ctx, company)
		default:
			p.logger.Warn("unsupported ats type, skipping",
				zap.String("company", company.Name),
				zap.String("ats", company.ATS),
			)
			continue
		}
		if err != nil {
			p.logger.Warn("board fetch failed",
				zap.String("company", company.Name),
				zap.String("ats", company.ATS),
				zap.Error(err),
			)
			continue
		}

		p.logger.Debug("board polled",
			zap.String("company", company.Name),
			zap.String("ats", company.ATS),
			zap.Int("postings", len(found)),
		)
		all = append(all, found...)
	}

	return all, nil
}

type greenhouseJob struct {
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	UpdatedAt   string `json:"updated_at"`
	Content     string `json:"content"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}

func (p *ATSPoller) fetchGreenhouse(ctx context.Context, company CompanyRef) ([]*posting.Posting, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", p.greenhouseURL, company.BoardToken)

	var payload map[string]any
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	var jobs []greenhouseJob
	if err := decodeItems(payload["jobs"], &jobs); err != nil {
		return nil, fmt.Errorf("decode greenhouse jobs: %w", err)
	}

	var postings []*posting.Posting
	for _, job := range jobs {
		if !p.isRecentISO(job.UpdatedAt) {
			continue
		}
		postings = append(postings, p.build(company, "greenhouse", job.Title, job.Location.Name, job.AbsoluteURL, job.Content, job.UpdatedAt))
	}

	return postings, nil
}

type leverPosting struct {
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	CreatedAt        int64  `json:"createdAt"`
	DescriptionPlain string `json:"descriptionPlain"`
	Description      string `json:"description"`
	Categories       struct {
		Location string `json:"location"`
	} `json:"categories"`
}

func (p *ATSPoller) fetchLever(ctx context.Context, company CompanyRef) ([]*posting.Posting, error) {
	url := fmt.Sprintf("%s/%s", p.leverURL, company.BoardToken)

	var payload []any
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	var items []leverPosting
	if err := decodeItems(payload, &items); err != nil {
		return nil, fmt.Errorf("decode lever postings: %w", err)
	}

	var postings []*posting.Posting
	for _, item := range items {
		// Lever timestamps are epoch milliseconds.
		createdAt := time.UnixMilli(item.CreatedAt).UTC()
		if item.CreatedAt > 0 && !p.isRecent(createdAt) {
			continue
		}

		description := item.DescriptionPlain
		if description == "" {
			description = item.Description
		}

		postedAt := ""
		if item.CreatedAt > 0 {
			postedAt = createdAt.Format(time.RFC3339)
		}
		postings = append(postings, p.build(company, "lever", item.Text, item.Categories.Location, item.HostedURL, description, postedAt))
	}

	return postings, nil
}

type ashbyJob struct {
	Title            string `json:"title"`
	JobURL           string `json:"jobUrl"`
	Location         string `json:"location"`
	PublishedAt      string `json:"publishedAt"`
	DescriptionHTML  string `json:"descriptionHtml"`
	DescriptionPlain string `json:"descriptionPlain"`
	IsRemote         bool   `json:"isRemote"`
}

func (p *ATSPoller) fetchAshby(ctx context.Context, company CompanyRef) ([]*posting.Posting, error) {
	url := fmt.Sprintf("%s/%s", p.ashbyURL, company.BoardToken)

	var payload map[string]any
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}

	var jobs []ashbyJob
	if err := decodeItems(payload["jobs"], &jobs); err != nil {
		return nil, fmt.Errorf("decode ashby jobs: %w", err)
	}

	var postings []*posting.Posting
	for _, job := range jobs {
		if !p.isRecentISO(job.PublishedAt) {
			continue
		}

		description := job.DescriptionPlain
		if description == "" {
			description = job.DescriptionHTML
		}

		pp := p.build(company, "ashby", job.Title, job.Location, job.JobURL, description, job.PublishedAt)
		if job.IsRemote {
			pp.IsRemote = true
		}
		postings = append(postings, pp)
	}

	return postings, nil
}

func (p *ATSPoller) build(company CompanyRef, ats, title, location, url, description, postedAt string) *posting.Posting {
	return &posting.Posting{
		Title:        title,
		Employer:     company.Name,
		LocationText: location,
		IsRemote:     strings.Contains(strings.ToLower(location), "remote"),
		URL:          url,
		Description:  description,
		PostedAt:     postedAt,
		Source:       fmt.Sprintf("ats:%s:%s", ats, company.Name),
		SourceQuery:  ATSQuery,
	}
}

// isRecentISO parses an ISO timestamp and applies the recency window.
// Unparsable dates pass through; a stale feed is cheaper to triage than a
// fresh posting is to lose.
func (p *ATSPoller) isRecentISO(value string) bool {
	if value == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return true
	}

	return p.isRecent(t)
}

func (p *ATSPoller) isRecent(t time.Time) bool {
	if p.maxAge <= 0 {
		return true
	}

	return t.After(p.now().Add(-p.maxAge))
}

func (p *ATSPoller) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", atsUserAgent)
	req.Header.Set("Accept", "application/json")

	p.logger.Debug("make request", zap.String("url", url))
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
