package aliasing

import (
	"log/slog"
	"regexp"
	"strings"
)

// maxAliasHops bounds transitive alias resolution.
const maxAliasHops = 16

type (
	compiledPattern struct {
		regex     *regexp.Regexp
		canonical string
	}

	// Resolver resolves external source aliases and qualified name patterns.
	// It is immutable after construction and safe for concurrent use.
	// A nil Resolver passes every name through.
	Resolver struct {
		aliases  map[string]string
		patterns []compiledPattern
	}
)

var variableRegex = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\*?\}`)

// compilePattern converts a pattern into an anchored regex.
//
//	"(db)={host}::{table}" → ^\(db\)=(?P<host>...)::(?P<table>...)$
func compilePattern(pattern string) (*regexp.Regexp, error) {
	result := regexp.QuoteMeta(pattern)

	for _, match := range variableRegex.FindAllStringSubmatch(pattern, -1) {
		placeholder, name := match[0], match[1]

		group := "(?P<" + name + ">(?:[^/:]|:[^:])+)"
		if strings.HasSuffix(placeholder, "*}") {
			group = "(?P<" + name + ">.+)"
		}

		result = strings.Replace(result, regexp.QuoteMeta(placeholder), group, 1)
	}

	return regexp.Compile("^" + result + "$")
}

// NewResolver builds a resolver from cfg. Empty or invalid entries are skipped with a warning.
func NewResolver(cfg *Config) *Resolver {
	r := &Resolver{aliases: make(map[string]string)}
	if cfg == nil {
		return r
	}

	for alias, canonical := range cfg.ExternalSourceAliases {
		alias, canonical = strings.TrimSpace(alias), strings.TrimSpace(canonical)
		if alias == "" || canonical == "" || alias == canonical {
			slog.Warn("Skipping invalid external source alias",
				slog.String("alias", alias),
				slog.String("canonical", canonical))

			continue
		}

		r.aliases[alias] = canonical
	}

	for _, qp := range cfg.QualifiedNamePatterns {
		pattern, canonical := strings.TrimSpace(qp.Pattern), strings.TrimSpace(qp.Canonical)
		if pattern == "" || canonical == "" {
			slog.Warn("Skipping qualified name pattern with empty pattern or canonical",
				slog.String("pattern", pattern))

			continue
		}

		regex, err := compilePattern(pattern)
		if err != nil {
			slog.Warn("Skipping qualified name pattern with invalid regex",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))

			continue
		}

		r.patterns = append(r.patterns, compiledPattern{regex: regex, canonical: canonical})
	}

	return r
}

// AliasCount returns the number of external source aliases.
func (r *Resolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// PatternCount returns the number of compiled qualified name patterns.
func (r *Resolver) PatternCount() int {
	if r == nil {
		return 0
	}

	return len(r.patterns)
}

// ResolveExternalSource follows alias chains (a → b → c) to the canonical source name.
// Cycles stop at the last name seen before the repeat.
func (r *Resolver) ResolveExternalSource(name string) string {
	if r == nil || len(r.aliases) == 0 || name == "" {
		return name
	}

	visited := map[string]struct{}{name: {}}
	current := name

	for range maxAliasHops {
		next, ok := r.aliases[current]
		if !ok {
			return current
		}

		if _, seen := visited[next]; seen {
			slog.Warn("Alias cycle detected", slog.String("alias", name))

			return current
		}

		visited[next] = struct{}{}
		current = next
	}

	return current
}

// ResolveQualifiedName rewrites qualifiedName with the first matching pattern.
// Names matching no pattern are returned unchanged.
func (r *Resolver) ResolveQualifiedName(qualifiedName string) string {
	if r == nil || len(r.patterns) == 0 || qualifiedName == "" {
		return qualifiedName
	}

	for _, cp := range r.patterns {
		match := cp.regex.FindStringSubmatch(qualifiedName)
		if match == nil {
			continue
		}

		result := cp.canonical

		for i, name := range cp.regex.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}

			result = strings.ReplaceAll(result, "{"+name+"}", match[i])
			result = strings.ReplaceAll(result, "{"+name+"*}", match[i])
		}

		return result
	}

	return qualifiedName
}
