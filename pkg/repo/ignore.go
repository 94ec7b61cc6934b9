package repo

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// IgnoreChecker determines if a path should be ignored. A .pygitignore file
// at any directory applies to that directory's subtree; a deeper file's
// verdict overrides a shallower one's for paths under both.
type IgnoreChecker struct {
	scopes []ignoreScope // root first, then nested scopes shallow-to-deep
}

// ignoreScope is one .pygitignore file's rules, scoped to the directory that
// holds the file ("" for the repository root).
type ignoreScope struct {
	prefix string
	rules  *ignoreRuleSet
}

type ignoreRuleSet struct {
	patterns []ignorePattern

	// Precompiled/indexed pattern groups used by evaluate's fast paths.
	dirPrefixPatterns   map[string][]int
	exactBasePatterns   map[string][]int
	exactPathPatterns   map[string][]int
	wildcardBasePattern []int
	wildcardPathPattern []int
}

type ignorePattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	hasSlash bool // pattern contains a slash, so match against full path
	regex    *regexp.Regexp
}

// NewIgnoreChecker creates an IgnoreChecker for the given repository root.
// It always ignores .pygit/ and .git/, reads the root .pygitignore, and then
// collects nested .pygitignore files throughout the tree.
func NewIgnoreChecker(repoRoot string) *IgnoreChecker {
	ic := &IgnoreChecker{}

	root := &ignoreRuleSet{}

	// Hardcoded patterns: always ignore .pygit/ and .git/.
	root.patterns = append(root.patterns,
		ignorePattern{pattern: ".pygit", dirOnly: false, hasSlash: false},
		ignorePattern{pattern: ".git", dirOnly: false, hasSlash: false},
	)
	root.patterns = append(root.patterns, readIgnoreFile(filepath.Join(repoRoot, ".pygitignore"))...)
	root.compile()
	ic.scopes = append(ic.scopes, ignoreScope{prefix: "", rules: root})

	ic.scopes = append(ic.scopes, collectNestedIgnoreScopes(repoRoot)...)
	return ic
}

// collectNestedIgnoreScopes walks the tree below repoRoot looking for
// .pygitignore files in subdirectories, returning their scopes ordered
// shallow-to-deep so deeper files evaluate (and win) last.
func collectNestedIgnoreScopes(repoRoot string) []ignoreScope {
	var scopes []ignoreScope

	_ = filepath.WalkDir(repoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".pygit" || name == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() != ".pygitignore" {
			return nil
		}
		rel, relErr := filepath.Rel(repoRoot, filepath.Dir(path))
		if relErr != nil || rel == "." {
			return nil // root file is handled by the caller
		}
		patterns := readIgnoreFile(path)
		if len(patterns) == 0 {
			return nil
		}
		rules := &ignoreRuleSet{patterns: patterns}
		rules.compile()
		scopes = append(scopes, ignoreScope{prefix: filepath.ToSlash(rel), rules: rules})
		return nil
	})

	sort.Slice(scopes, func(i, j int) bool {
		return strings.Count(scopes[i].prefix, "/") < strings.Count(scopes[j].prefix, "/")
	})
	return scopes
}

func readIgnoreFile(path string) []ignorePattern {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []ignorePattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p := parseLine(scanner.Text()); p != nil {
			patterns = append(patterns, *p)
		}
	}
	return patterns
}

// parseLine parses a single line from a .pygitignore file. Returns nil if the
// line is empty or a comment.
func parseLine(line string) *ignorePattern {
	// Trim trailing whitespace.
	line = strings.TrimRight(line, " \t")

	// Empty lines are skipped.
	if line == "" {
		return nil
	}

	// Comment lines are skipped.
	if strings.HasPrefix(line, "#") {
		return nil
	}

	p := &ignorePattern{}

	// Negation: lines starting with ! un-ignore a pattern.
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}

	// Directory-only: lines ending with / match directories only.
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimRight(line, "/")
	}

	// If the pattern contains a slash, match against the full relative path.
	p.hasSlash = strings.Contains(line, "/")

	p.pattern = line
	if strings.Contains(line, "**") {
		if re, err := regexp.Compile(globToRegex(line)); err == nil {
			p.regex = re
		}
	}
	return p
}

// IsIgnored checks whether a relative path should be ignored. The path should
// use forward slashes and be relative to the repository root.
//
// Within a scope, the last matching pattern wins (to support negation);
// across scopes, the deepest scope that matched wins.
func (ic *IgnoreChecker) IsIgnored(path string) bool {
	path = filepath.ToSlash(path)

	ignored := false
	for _, scope := range ic.scopes {
		rel := path
		if scope.prefix != "" {
			if !strings.HasPrefix(path, scope.prefix+"/") {
				continue
			}
			rel = path[len(scope.prefix)+1:]
		}
		if verdict, matched := scope.rules.evaluate(rel); matched {
			ignored = verdict
		}
	}
	return ignored
}

// evaluate applies the rule set to a path relative to the set's scope,
// returning the verdict and whether any pattern matched at all.
func (rs *ignoreRuleSet) evaluate(path string) (bool, bool) {
	base := filepath.Base(path)

	lastMatch := -1
	ignored := false
	apply := func(idx int) {
		if idx > lastMatch {
			lastMatch = idx
			ignored = !rs.patterns[idx].negated
		}
	}
	applyAll := func(patterns []int) {
		for _, idx := range patterns {
			apply(idx)
		}
	}

	// Directory-prefix patterns match the full path or any ancestor prefix.
	if idxs, ok := rs.dirPrefixPatterns[path]; ok {
		applyAll(idxs)
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if idxs, ok := rs.dirPrefixPatterns[path[:i]]; ok {
				applyAll(idxs)
			}
		}
	}

	// Exact literals are resolved via maps.
	if idxs, ok := rs.exactPathPatterns[path]; ok {
		applyAll(idxs)
	}
	if idxs, ok := rs.exactBasePatterns[base]; ok {
		applyAll(idxs)
	}

	// Wildcards still require matching checks but are pre-separated by target.
	for _, idx := range rs.wildcardPathPattern {
		if rs.patterns[idx].match(path) {
			apply(idx)
		}
	}
	for _, idx := range rs.wildcardBasePattern {
		if rs.patterns[idx].match(base) {
			apply(idx)
		}
	}

	return ignored, lastMatch >= 0
}

func (rs *ignoreRuleSet) compile() {
	rs.dirPrefixPatterns = make(map[string][]int)
	rs.exactBasePatterns = make(map[string][]int)
	rs.exactPathPatterns = make(map[string][]int)
	rs.wildcardBasePattern = nil
	rs.wildcardPathPattern = nil

	for idx := range rs.patterns {
		p := rs.patterns[idx]

		// Keep hardcoded .pygit/.git special prefix behavior.
		if p.dirOnly || p.pattern == ".pygit" || p.pattern == ".git" {
			rs.dirPrefixPatterns[p.pattern] = append(rs.dirPrefixPatterns[p.pattern], idx)
			if p.dirOnly {
				continue
			}
		}

		switch {
		case p.regex != nil:
			if p.hasSlash {
				rs.wildcardPathPattern = append(rs.wildcardPathPattern, idx)
			} else {
				rs.wildcardBasePattern = append(rs.wildcardBasePattern, idx)
			}
		case isLiteralPattern(p.pattern):
			if p.hasSlash {
				rs.exactPathPatterns[p.pattern] = append(rs.exactPathPatterns[p.pattern], idx)
			} else {
				rs.exactBasePatterns[p.pattern] = append(rs.exactBasePatterns[p.pattern], idx)
			}
		default:
			if p.hasSlash {
				rs.wildcardPathPattern = append(rs.wildcardPathPattern, idx)
			} else {
				rs.wildcardBasePattern = append(rs.wildcardBasePattern, idx)
			}
		}
	}
}

func isLiteralPattern(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?[")
}

func (p *ignorePattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := filepath.Match(p.pattern, target)
	return matched
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if ch == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// Globstar directory segment: match zero or more path segments.
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		if ch == '?' {
			b.WriteString("[^/]")
			continue
		}
		if strings.ContainsRune(`.+()|[]{}^$\\`, rune(ch)) {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteString("$")
	return b.String()
}
