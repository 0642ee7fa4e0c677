package posting

import (
	"errors"
	"testing"
)

func TestIdentityStripsTrackingParams(t *testing.T) {
	t.Parallel()

	a := &Posting{URL: "https://example.com/jobs/123?utm_source=x&utm_medium=email"}
	b := &Posting{URL: "https://example.com/jobs/123"}

	idA, err := Identity(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idB, err := Identity(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idA != idB {
		t.Fatalf("expected identical identities, got %q and %q", idA, idB)
	}
}

func TestIdentityURLNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		url    string
		expect string
	}{
		{
			name:   "scheme stripped and host lowercased",
			url:    "HTTPS://Example.COM/jobs/123",
			expect: "example.com/jobs/123",
		},
		{
			name:   "trailing slash removed",
			url:    "https://example.com/jobs/123/",
			expect: "example.com/jobs/123",
		},
		{
			name:   "meaningful params kept and sorted",
			url:    "https://example.com/jobs?page=2&dept=learning&gclid=abc",
			expect: "example.com/jobs?dept=learning&page=2",
		},
		{
			name:   "linkedin view path reduced to job id",
			url:    "https://www.linkedin.com/jobs/view/4012345678/?refId=x&trackingId=y",
			expect: "www.linkedin.com/jobs/view/4012345678",
		},
		{
			name:   "linkedin currentJobId query reduced to job id",
			url:    "https://linkedin.com/jobs/collections/recommended/?currentJobId=4012345678",
			expect: "www.linkedin.com/jobs/view/4012345678",
		},
		{
			name:   "missing scheme accepted",
			url:    "example.com/careers/role",
			expect: "example.com/careers/role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Identity(&Posting{URL: tt.url})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestIdentityCompositeFallback(t *testing.T) {
	t.Parallel()

	p := &Posting{
		Employer:     "  Acme   Corp ",
		Title:        "Learning  Designer",
		LocationText: " Denver,  CO ",
	}

	got, err := Identity(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expect := "acme corp|learning designer|denver, co"
	if got != expect {
		t.Fatalf("expected %q, got %q", expect, got)
	}
}

func TestIdentityRejectsUnusablePosting(t *testing.T) {
	t.Parallel()

	_, err := Identity(&Posting{Title: "Learning Designer"})
	if err == nil {
		t.Fatalf("expected error for posting without url and employer")
	}

	var identityErr *IdentityError
	if !errors.As(err, &identityErr) {
		t.Fatalf("expected IdentityError, got %T", err)
	}
}
