// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// pathRule is one compiled exclusion entry.
type pathRule struct {
	pattern string
	glob    glob.Glob
	require bool
}

// PathPolicy decides which paths go through Basic authentication.
//
// Rules are evaluated in order and the first match decides. A plain pattern
// exempts matching paths; a pattern prefixed with "!" forces authentication
// for matching paths. Patterns are globs with '/' as separator, so "*" stays
// within one segment and "**" spans several. Trailing slashes are ignored on
// both patterns and paths, so "/api/v1/status/" as a pattern also exempts
// "/api/v1/status".
type PathPolicy struct {
	rules []pathRule
}

// NewPathPolicy compiles patterns into a policy.
func NewPathPolicy(patterns []string) (*PathPolicy, error) {
	rules := make([]pathRule, 0, len(patterns))
	for _, p := range patterns {
		require := strings.HasPrefix(p, "!")
		norm := trimTrailingSlash(strings.TrimPrefix(p, "!"))
		if norm == "" {
			return nil, oops.In("web").
				Code("INVALID_PATH_PATTERN").
				With("pattern", p).
				Errorf("empty path pattern")
		}
		g, err := glob.Compile(norm, '/')
		if err != nil {
			return nil, oops.In("web").
				Code("INVALID_PATH_PATTERN").
				With("pattern", p).
				Wrap(err)
		}
		rules = append(rules, pathRule{pattern: p, glob: g, require: require})
	}
	return &PathPolicy{rules: rules}, nil
}

// RequireAuth reports whether path needs credentials. An empty path always
// does. With no rules configured nothing does.
func (p *PathPolicy) RequireAuth(path string) bool {
	if path == "" {
		return true
	}
	if p == nil || len(p.rules) == 0 {
		return false
	}
	norm := trimTrailingSlash(path)
	for _, r := range p.rules {
		if r.glob.Match(norm) {
			return r.require
		}
	}
	return true
}

// Patterns returns the configured patterns in evaluation order.
func (p *PathPolicy) Patterns() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.pattern
	}
	return out
}

func trimTrailingSlash(path string) string {
	if len(path) > 1 {
		return strings.TrimSuffix(path, "/")
	}
	return path
}
