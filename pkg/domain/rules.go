// Package domain defines the value types shared by the mesh core, its
// checkpoint stores and its command line: rule results and topology
// snapshots.
package domain

import (
	"fmt"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities.
const (
	// SeverityBlock marks a broken invariant; the topology must not be used.
	SeverityBlock Severity = "block"
	// SeverityWarn marks a suspicious but legal state.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// SubjectKind names what a violation refers to.
type SubjectKind string

// Subjects reported by topology rules.
const (
	SubjectCell   SubjectKind = "cell"
	SubjectSide   SubjectKind = "side"
	SubjectEntity SubjectKind = "entity"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Subject  SubjectKind
	// Dimension is set for entity subjects.
	Dimension int
	Index     int
}

// Result aggregates violations from one or more rules.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var rules []string
	seen := map[string]struct{}{}
	for _, v := range e.Result.Violations {
		if v.Severity != SeverityBlock {
			continue
		}
		if _, ok := seen[v.Rule]; ok {
			continue
		}
		seen[v.Rule] = struct{}{}
		rules = append(rules, v.Rule)
	}
	return fmt.Sprintf("topology invariants violated: %s", strings.Join(rules, ", "))
}
