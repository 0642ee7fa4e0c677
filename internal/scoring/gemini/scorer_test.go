package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mhall-io/jobscout/internal/network"
	"github.com/mhall-io/jobscout/internal/posting"
	"github.com/mhall-io/jobscout/internal/scoring"
	"github.com/mhall-io/jobscout/internal/triage"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func scoringRequest() *scoring.Request {
	return &scoring.Request{
		Posting: &posting.Posting{
			Title:       "AI Enablement Lead",
			Employer:    "Stripe",
			Description: "Coach teams on AI workflows.",
			IsRemote:    true,
		},
		Identity: "example.com/jobs/1",
		Triage:   &triage.Result{Score: 6, Passed: true},
	}
}

func TestScorerParsesResponse(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"fit_score": 84, "reasoning": "Strong overlap with AI enablement."}`}
	scorer := NewScorer(stub, `{"name": "test"}`, 0, zap.NewNop())

	result, err := scorer.Score(context.Background(), scoringRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score != 84 {
		t.Fatalf("expected score 84, got %d", result.Score)
	}
	if result.Reasoning == "" {
		t.Fatalf("expected reasoning to be populated")
	}
	if result.Raw != stub.response {
		t.Fatalf("expected raw response preserved")
	}
	if !strings.Contains(stub.lastPrompt, `"name": "test"`) {
		t.Fatalf("expected profile embedded in prompt")
	}
	if !strings.Contains(stub.lastPrompt, "Keyword triage score (0-10): 6") {
		t.Fatalf("expected triage score in prompt, got: %s", stub.lastPrompt)
	}
}

func TestScorerStripsCodeFences(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: "```json\n{\"fit_score\": 70, \"reasoning\": \"ok\"}\n```"}
	scorer := NewScorer(stub, "", 0, zap.NewNop())

	result, err := scorer.Score(context.Background(), scoringRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 70 {
		t.Fatalf("expected score 70, got %d", result.Score)
	}
}

func TestScorerNetworkContext(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"fit_score": 60, "reasoning": "ok"}`}
	scorer := NewScorer(stub, "", 0, zap.NewNop())

	req := scoringRequest()
	req.Matches = []*network.Match{
		{
			Connection: &network.Connection{FullName: "Ada Park", Title: "Enablement Lead"},
			Kind:       network.MatchExact,
			Similarity: 1.0,
		},
	}

	if _, err := scorer.Score(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stub.lastPrompt, "Ada Park - Enablement Lead") {
		t.Fatalf("expected connection in prompt")
	}

	// Without matches the prompt states the absence explicitly.
	stub2 := &stubGenerator{response: `{"fit_score": 60, "reasoning": "ok"}`}
	scorer2 := NewScorer(stub2, "", 0, zap.NewNop())
	if _, err := scorer2.Score(context.Background(), scoringRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stub2.lastPrompt, "No known connections") {
		t.Fatalf("expected no-connections context in prompt")
	}
}

func TestScorerClampsScore(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"fit_score": 140, "reasoning": "ok"}`}
	scorer := NewScorer(stub, "", 0, zap.NewNop())

	result, err := scorer.Score(context.Background(), scoringRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected score clamped to 100, got %d", result.Score)
	}
}

func TestScorerRejectsInvalidResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "no idea"},
		{name: "missing score", response: `{"reasoning": "ok"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub := &stubGenerator{response: tt.response}
			scorer := NewScorer(stub, "", 0, zap.NewNop())
			if _, err := scorer.Score(context.Background(), scoringRequest()); err == nil {
				t.Fatalf("expected error for response %q", tt.response)
			}
		})
	}
}

func TestScorerPassesThroughGeneratorError(t *testing.T) {
	t.Parallel()

	genErr := errors.New("boom")
	stub := &stubGenerator{err: genErr}
	scorer := NewScorer(stub, "", 0, zap.NewNop())

	_, err := scorer.Score(context.Background(), scoringRequest())
	if !errors.Is(err, genErr) {
		t.Fatalf("expected generator error, got %v", err)
	}

	var transient *scoring.TransientError
	if errors.As(err, &transient) {
		t.Fatalf("plain errors must not be marked transient")
	}
}

func TestTruncateDescription(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("This is a sentence. ", 400)
	got := truncateDescription(long, 1000)
	if len([]rune(got)) > 1000 {
		t.Fatalf("expected truncation to at most 1000 runes, got %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("expected truncation at a sentence boundary, got tail %q", got[len(got)-10:])
	}
}
