// Package naming derives the deterministic resource names for a branch and
// decides which branches are in scope for provisioning.
//
// The same derivation runs on the create and delete paths so that teardown
// finds exactly what provisioning made. Sanitizing is lossy: branch names that
// differ only in stripped characters (for example "feat/a.b" and "feat/ab")
// map to the same parameter key and pipeline name.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/savaki/branch-deployer/internal/constants"
)

var invalidChars = regexp.MustCompile(`[^0-9a-zA-Z-]+`)

// Filter admits branches whose name matches a prefix pattern.
type Filter struct {
	pattern string
	re      *regexp.Regexp
}

// NewFilter compiles pattern once. The pattern is anchored at the start of the
// branch name; it need not match the whole name.
func NewFilter(pattern string) (*Filter, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid branch prefix %q: %w", pattern, err)
	}
	return &Filter{pattern: pattern, re: re}, nil
}

// Admit reports whether branch is in scope
func (f *Filter) Admit(branch string) bool {
	return f.re.MatchString(branch)
}

// Pattern returns the configured pattern as written by the operator
func (f *Filter) Pattern() string {
	return f.pattern
}

// BranchName returns the last path segment of ref: refs/heads/feature-42 -> feature-42.
func BranchName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// Sanitize removes every character outside [0-9a-zA-Z-]
func Sanitize(branch string) string {
	return invalidChars.ReplaceAllString(branch, "")
}

// Names are the resource identifiers derived from a branch
type Names struct {
	Branch       string // raw branch name
	Sanitized    string // parameter store key and pipeline name stem
	PipelineName string // Sanitized + pipeline suffix
}

// Derive computes the names for branch
func Derive(branch, pipelineSuffix string) Names {
	sanitized := Sanitize(branch)
	return Names{
		Branch:       branch,
		Sanitized:    sanitized,
		PipelineName: sanitized + pipelineSuffix,
	}
}

// StackName substitutes every BRANCH_NAME placeholder in template with branch.
// An empty template yields an empty name.
func StackName(template, branch string) string {
	return strings.ReplaceAll(template, constants.BranchPlaceholder, branch)
}

// PrefixStackName prefixes stackName with "<branch>-" unless it already carries it.
func PrefixStackName(branch, stackName string) string {
	prefix := branch + "-"
	if strings.HasPrefix(stackName, prefix) {
		return stackName
	}
	return prefix + stackName
}
