package postbuild

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/moby/patternmatcher"
)

// Pattern matches slash separated output names.
type Pattern interface {
	Match(name string) bool
	String() string
}

type globPattern struct {
	raw string
	pm  *patternmatcher.PatternMatcher
}

// Glob compiles a dockerignore style pattern. "**" matches any number of
// directories.
func Glob(pattern string) (Pattern, error) {
	pm, err := patternmatcher.New([]string{pattern})
	if err != nil {
		return nil, fmt.Errorf("failed to compile glob %q: %w", pattern, err)
	}
	return &globPattern{raw: pattern, pm: pm}, nil
}

func (p *globPattern) Match(name string) bool {
	ok, err := p.pm.MatchesOrParentMatches(name)
	return err == nil && ok
}

func (p *globPattern) String() string {
	return p.raw
}

type regexpPattern struct {
	re *regexp.Regexp
}

func Regexp(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regexp %q: %w", expr, err)
	}
	return &regexpPattern{re: re}, nil
}

func (p *regexpPattern) Match(name string) bool {
	return p.re.MatchString(name)
}

func (p *regexpPattern) String() string {
	return "re:" + p.re.String()
}

// ParsePattern reads "re:<expr>" as a regular expression and anything else
// as a glob.
func ParsePattern(s string) (Pattern, error) {
	if expr, ok := strings.CutPrefix(s, "re:"); ok {
		return Regexp(expr)
	}
	return Glob(s)
}

func ParsePatterns(list []string) ([]Pattern, error) {
	var patterns []Pattern
	for _, s := range list {
		p, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultInclude selects text assets that usually compress well.
var DefaultInclude = []Pattern{
	MustPattern(`re:\.(html|xml|css|json|js|mjs|cjs|svg|yaml|yml|toml)$`),
}

// Filter selects names that match any Include pattern and no Exclude
// pattern. An empty Include matches every name.
type Filter struct {
	Include []Pattern
	Exclude []Pattern
}

func (f Filter) Match(name string) bool {
	if len(f.Include) > 0 && !matchAny(f.Include, name) {
		return false
	}
	return !matchAny(f.Exclude, name)
}

func matchAny(patterns []Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}
