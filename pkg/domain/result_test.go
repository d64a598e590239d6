package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "block") || strings.Contains(err.Error(), "warn") {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestErrNotFound(t *testing.T) {
	var err error = ErrNotFound{Entity: EntitySnapshot, ID: "abc"}
	var nf ErrNotFound
	if !errors.As(err, &nf) || nf.ID != "abc" {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "snapshot abc not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSnapshotSummary(t *testing.T) {
	now := time.Now().UTC()
	s := Snapshot{
		ID:          "s1",
		Label:       "grid",
		CreatedAt:   now,
		SpaceDim:    2,
		Roots:       []RootCell{{Index: 0}, {Index: 1}},
		Refinements: []Refinement{{Cell: 0, Pattern: "quadrilateral/regular", FirstChild: 2}},
	}
	sum := s.Summary()
	if sum.ID != "s1" || sum.Roots != 2 || sum.Refinements != 1 || !sum.CreatedAt.Equal(now) || sum.Label != "grid" {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
