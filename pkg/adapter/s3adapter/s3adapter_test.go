package s3adapter

import (
	"context"
	"testing"

	"github.com/arbortree/arbor/internal/circuit"
	"github.com/arbortree/arbor/pkg/errors"
)

func TestNew_RejectsEmptyBucket(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	if !errors.Is(err, errors.CodeConfigurationError) {
		t.Errorf("error = %v, want CodeConfigurationError", err)
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        "",
		"a":       "a/",
		"a/":      "a/",
		"a/b":     "a/b/",
		"a/b/":    "a/b/",
		"a/b///":  "a/b///",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdapter_Identity(t *testing.T) {
	t.Parallel()

	a := &Adapter{bucket: "my-bucket"}
	if got := a.Identity(); got != "s3adapter:my-bucket" {
		t.Errorf("Identity() = %q, want s3adapter:my-bucket", got)
	}
}

func TestNew_SharesBreakerAcrossAdapters(t *testing.T) {
	t.Parallel()

	manager := circuit.NewManager(circuit.Config{})

	a1, err := New(context.Background(), Config{Bucket: "shared", Region: "us-east-1", Breakers: manager})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a2, err := New(context.Background(), Config{Bucket: "shared", Region: "us-east-1", Breakers: manager})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if a1.breaker != a2.breaker {
		t.Error("two adapters over the same bucket sharing a Manager must share one breaker")
	}
}

func TestNew_RetryStatsStartsEmpty(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), Config{Bucket: "my-bucket", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.RetryStats().TotalAttempts; got != 0 {
		t.Errorf("RetryStats().TotalAttempts = %d, want 0", got)
	}
}
