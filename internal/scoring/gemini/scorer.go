package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mhall-io/jobscout/internal/logger"
	"github.com/mhall-io/jobscout/internal/scoring"
	"go.uber.org/zap"
)

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	maxDescriptionChars = 4000
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Scorer evaluates candidate postings against a profile with Gemini.
type Scorer struct {
	generator contentGenerator
	profile   string
	logger    *zap.Logger
	maxLogLen int
}

// NewScorer builds a Gemini-backed scorer. The profile is an opaque JSON
// document describing the candidate; it is embedded verbatim in prompts.
func NewScorer(generator contentGenerator, profile string, maxLogLength int, log *zap.Logger) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Scorer{
		generator: generator,
		profile:   strings.TrimSpace(profile),
		logger:    log,
		maxLogLen: maxLogLength,
	}
}

// Score implements scoring.Scorer. Provider rate limits and server errors
// come back wrapped in a TransientError so the pipeline can retry them.
func (s *Scorer) Score(ctx context.Context, req *scoring.Request) (*scoring.Result, error) {
	if req == nil || req.Posting == nil {
		return nil, fmt.Errorf("scoring request is required")
	}

	prompt, err := s.buildPrompt(req)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("gemini scoring request",
		zap.String("identity", req.Identity),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		if isTransient(err) {
			return nil, &scoring.TransientError{Err: err}
		}
		return nil, err
	}

	s.logger.Debug("gemini scoring response",
		zap.String("identity", req.Identity),
		zap.String("response_preview", logger.TruncateForLog(raw, s.maxLogLen)),
	)

	result, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	result.Raw = raw
	return result, nil
}

func (s *Scorer) buildPrompt(req *scoring.Request) (string, error) {
	p := *req.Posting
	if utf8.RuneCountInString(p.Description) > maxDescriptionChars {
		p.Description = truncateDescription(p.Description, maxDescriptionChars)
	}

	postingJSON, err := json.MarshalIndent(&p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal posting payload: %w", err)
	}

	profile := s.profile
	if profile == "" {
		profile = "{}"
	}

	triageScore := 0
	if req.Triage != nil {
		triageScore = req.Triage.Score
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{PROFILE_JSON}}", profile)
	prompt = strings.ReplaceAll(prompt, "{{POSTING_JSON}}", string(postingJSON))
	prompt = strings.ReplaceAll(prompt, "{{TRIAGE_SCORE}}", fmt.Sprintf("%d", triageScore))
	prompt = strings.ReplaceAll(prompt, "{{NETWORK_CONTEXT}}", networkContext(req))
	return prompt, nil
}

// networkContext renders the candidate's connections at the employer as
// plain text for the prompt.
func networkContext(req *scoring.Request) string {
	if len(req.Matches) == 0 {
		return "No known connections at this employer."
	}

	people := make([]string, 0, len(req.Matches))
	for _, m := range req.Matches {
		entry := m.Connection.FullName
		if m.Connection.Title != "" {
			entry += " - " + m.Connection.Title
		}
		people = append(people, entry)
	}

	return fmt.Sprintf(
		"The candidate has %d connection(s) at %s: %s. A warm introduction or internal referral is possible.",
		len(req.Matches), req.Posting.Employer, strings.Join(people, ", "),
	)
}

// truncateDescription cuts a long description near a sentence boundary so
// the prompt stays bounded without ending mid-word.
func truncateDescription(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	truncated := string(runes[:maxChars])
	breakPoint := strings.LastIndex(truncated, ". ")
	if n := strings.LastIndex(truncated, "\n"); n > breakPoint {
		breakPoint = n
	}

	if breakPoint > maxChars*3/4 {
		return strings.TrimRight(truncated[:breakPoint+1], " \n")
	}
	return strings.TrimRight(truncated, " \n")
}

func parseResponse(raw string) (*scoring.Result, error) {
	cleaned := stripCodeFences(strings.TrimSpace(raw))

	var data struct {
		FitScore  *int   `json:"fit_score"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if data.FitScore == nil {
		return nil, fmt.Errorf("gemini response missing fit_score")
	}

	score := *data.FitScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &scoring.Result{
		Score:     score,
		Reasoning: strings.TrimSpace(data.Reasoning),
	}, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block when the
// provider ignores the no-markdown instruction.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
