package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to requests whose path matches Path (or starts with it when Prefix is set).
// An empty Methods list matches every method.
type Rule struct {
	Path    string
	Prefix  bool
	Methods []string
	Role    Role
}

func (r Rule) matches(path, method string) bool {
	if r.Prefix {
		if !strings.HasPrefix(path, r.Path) {
			return false
		}
	} else if path != r.Path {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

var readMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// DefaultRules is evaluated top to bottom; the first match wins.
var DefaultRules = []Rule{
	{Path: "/api/v1/scheduling/sweep", Role: RoleAdmin},
	{Path: "/api/v1/health/recompute", Role: RoleAdmin},
	{Path: "/api/v1/quality/export.", Prefix: true, Role: RoleOperator},
	{Path: "/api/v1/assistant/chat", Role: RoleViewer},
	{Path: "/api/", Prefix: true, Methods: readMethods, Role: RoleViewer},
	{Path: "/api/", Prefix: true, Role: RoleOperator},
}

// Policy determines required roles by request.
type Policy struct {
	exempt   map[string]struct{}
	prefixes []string
	rules    []Rule
}

// NewDefaultPolicy builds a policy over DefaultRules with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		exempt[path] = struct{}{}
	}
	return Policy{exempt: exempt, prefixes: exemptPrefixes, rules: DefaultRules}
}

// IsExempt reports whether a request skips authentication entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.exempt[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the minimum role for the request; false means no rule applies.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.rules {
		if rule.matches(r.URL.Path, r.Method) {
			return rule.Role, true
		}
	}
	return "", false
}
