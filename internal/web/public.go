// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package web

import (
	"net/http"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DefaultPublicPaths are reachable without a session.
var DefaultPublicPaths = []string{
	"POST /api/v1/auth/login",
	"POST /api/v1/auth/logout",
	"POST /api/v1/users",
	"/api/public/**",
}

// PublicPaths matches requests that skip session checks. A pattern is a
// glob over the URL path with '/' as separator, optionally prefixed by an
// HTTP method and a space.
type PublicPaths struct {
	rules []publicRule
}

type publicRule struct {
	method  string
	pattern string
	glob    glob.Glob
}

// NewPublicPaths compiles patterns.
func NewPublicPaths(patterns []string) (*PublicPaths, error) {
	rules := make([]publicRule, 0, len(patterns))
	for _, p := range patterns {
		method, path := "", strings.TrimSpace(p)
		if before, after, ok := strings.Cut(path, " "); ok {
			method, path = strings.ToUpper(before), strings.TrimSpace(after)
		}
		if !strings.HasPrefix(path, "/") {
			return nil, oops.Code("WEB_INVALID_PUBLIC_PATH").
				With("pattern", p).
				Errorf("public path must start with /")
		}
		g, err := glob.Compile(path, '/')
		if err != nil {
			return nil, oops.Code("WEB_INVALID_PUBLIC_PATH").
				With("pattern", p).
				Wrap(err)
		}
		rules = append(rules, publicRule{method: method, pattern: p, glob: g})
	}
	return &PublicPaths{rules: rules}, nil
}

// Match reports whether r may proceed without a session.
func (p *PublicPaths) Match(r *http.Request) bool {
	for _, rule := range p.rules {
		if rule.method != "" && rule.method != r.Method {
			continue
		}
		if rule.glob.Match(r.URL.Path) {
			return true
		}
	}
	return false
}
