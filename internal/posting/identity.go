package posting

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during URL normalization so
// the same posting reached through different campaigns collapses to one key.
var trackingParams = map[string]struct{}{
	"fbclid":    {},
	"gclid":     {},
	"gclsrc":    {},
	"dclid":     {},
	"gbraid":    {},
	"wbraid":    {},
	"msclkid":   {},
	"twclid":    {},
	"li_fat_id": {},
	"igshid":    {},
	"mc_cid":    {},
	"mc_eid":    {},
	"mkt_tok":   {},
	"s_kwcid":   {},
	"ef_id":     {},
	"_openstat": {},
	"yclid":     {},
	"ref":       {},
	"referrer":  {},
	"source":    {},
}

var (
	linkedinViewRe  = regexp.MustCompile(`/jobs/view/(\d+)`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// IdentityError marks a posting that carries neither a URL nor enough
// employer/title data to derive a stable identity. Such postings are
// skipped and counted, never fatal to a run.
type IdentityError struct {
	Reason string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("posting identity: %s", e.Reason)
}

// Identity derives the canonical identity key for a posting. The result is
// deterministic: the same URL (or employer/title/location) always yields
// the same key no matter which source discovered the posting.
func Identity(p *Posting) (string, error) {
	if p == nil {
		return "", &IdentityError{Reason: "nil posting"}
	}

	if raw := strings.TrimSpace(p.URL); raw != "" {
		if key, ok := normalizeURL(raw); ok {
			return key, nil
		}
	}

	employer := normalizeField(p.Employer)
	title := normalizeField(p.Title)
	if employer == "" || title == "" {
		return "", &IdentityError{Reason: "missing url and employer/title"}
	}

	return employer + "|" + title + "|" + normalizeField(p.LocationText), nil
}

// normalizeURL canonicalizes a job URL: scheme dropped, host lowercased,
// tracking parameters removed, trailing slash trimmed, query sorted.
// LinkedIn job URLs reduce to their job-id form since the same id shows up
// under many path and query variants.
func normalizeURL(raw string) (string, bool) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Host)

	if strings.Contains(host, "linkedin.com") {
		if m := linkedinViewRe.FindStringSubmatch(u.Path); m != nil {
			return "www.linkedin.com/jobs/view/" + m[1], true
		}
		if id := u.Query().Get("currentJobId"); id != "" {
			return "www.linkedin.com/jobs/view/" + id, true
		}
	}

	path := strings.TrimRight(u.Path, "/")

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, tracked := trackingParams[lower]; tracked {
			q.Del(key)
		}
	}
	for key, vals := range q {
		sort.Strings(vals)
		q[key] = vals
	}

	key := host + path
	if encoded := q.Encode(); encoded != "" {
		key += "?" + encoded
	}
	return key, true
}

// normalizeField lowercases, trims, and collapses internal whitespace runs.
func normalizeField(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRunRe.ReplaceAllString(s, " ")
}
