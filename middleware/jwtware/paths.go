package jwtware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PathMatcher decides whether a request path is public
type PathMatcher struct {
	rules []pathRule
}

type pathRule struct {
	kind    byte
	pattern string
	parts   []string
}

const (
	rulePrefix   = 'p'
	ruleContains = 'c'
	ruleSegments = 's'
	ruleExact    = 'e'
)

// NewPathMatcher compiles allow-list patterns:
//
//	/auth/               prefix (trailing slash)
//	/swagger-ui*         prefix (trailing star)
//	~/users/carers/available  substring
//	/users/*/is-carer    one path segment per star
//	/health              exact
func NewPathMatcher(patterns ...string) *PathMatcher {
	m := &PathMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		switch {
		case strings.HasPrefix(p, "~"):
			m.rules = append(m.rules, pathRule{kind: ruleContains, pattern: p[1:]})
		case strings.Contains(strings.TrimSuffix(p, "*"), "*"):
			m.rules = append(m.rules, pathRule{kind: ruleSegments, parts: splitPath(p)})
		case strings.HasSuffix(p, "*"):
			m.rules = append(m.rules, pathRule{kind: rulePrefix, pattern: strings.TrimSuffix(p, "*")})
		case strings.HasSuffix(p, "/"):
			m.rules = append(m.rules, pathRule{kind: rulePrefix, pattern: p})
		default:
			m.rules = append(m.rules, pathRule{kind: ruleExact, pattern: p})
		}
	}
	return m
}

// Match reports whether path is public
func (m *PathMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.rules {
		switch r.kind {
		case rulePrefix:
			if strings.HasPrefix(path, r.pattern) {
				return true
			}
		case ruleContains:
			if strings.Contains(path, r.pattern) {
				return true
			}
		case ruleExact:
			if path == r.pattern || path == r.pattern+"/" {
				return true
			}
		case ruleSegments:
			if matchSegments(r.parts, splitPath(path)) {
				return true
			}
		}
	}
	return false
}

// Filter adapts the matcher to Config.Filter
func (m *PathMatcher) Filter(c *fiber.Ctx) bool {
	return m.Match(c.Path())
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if path[i] == "" {
				return false
			}
			continue
		}
		if p != path[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}
