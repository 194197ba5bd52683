package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// Languages is the static language table: which target each source language
// translates into, and the region code used for recognition and voices.
type Languages struct {
	// Pairs maps a base source language to its base target language.
	Pairs map[string]string
	// Regions maps a base language to its region code ("vi" -> "vi-VN").
	Regions map[string]string
	// DefaultTarget is used when no target is given and none can be derived.
	DefaultTarget string
}

// Base normalizes a language code to its lowercase base subtag ("en-US" -> "en").
func Base(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

// Target derives the target for a source language.
func (l Languages) Target(source string) (string, bool) {
	t, ok := l.Pairs[Base(source)]
	return t, ok
}

// SourceFor returns the region code of the language that translates into target.
// For a bidirectional pair this is the target's partner.
func (l Languages) SourceFor(target string) string {
	base := Base(target)
	if partner, ok := l.Pairs[base]; ok && l.Pairs[partner] == base {
		return l.Region(partner)
	}
	for src, dst := range l.Pairs {
		if dst == base {
			return l.Region(src)
		}
	}
	return ""
}

// Region returns the region code for a language, or the base code when unmapped.
func (l Languages) Region(code string) string {
	base := Base(code)
	if r, ok := l.Regions[base]; ok && r != "" {
		return r
	}
	return base
}

// Supported lists every language that appears in the pair table.
func (l Languages) Supported() []string {
	seen := map[string]bool{}
	for src, dst := range l.Pairs {
		seen[src] = true
		seen[dst] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RegionCodes returns region codes for every supported language.
func (l Languages) RegionCodes() []string {
	supported := l.Supported()
	out := make([]string, 0, len(supported))
	for _, base := range supported {
		out = append(out, l.Region(base))
	}
	return out
}

// Validate checks the pair table is total and bidirectional: every target
// maps back to its source, and no language maps to itself.
func (l Languages) Validate() error {
	if len(l.Pairs) == 0 {
		return fmt.Errorf("languages.pairs must not be empty")
	}
	for src, dst := range l.Pairs {
		if src != Base(src) || dst != Base(dst) {
			return fmt.Errorf("languages.pairs must use base codes, got %s -> %s", src, dst)
		}
		if src == dst {
			return fmt.Errorf("languages.pairs maps %s to itself", src)
		}
		back, ok := l.Pairs[dst]
		if !ok {
			return fmt.Errorf("languages.pairs has no target for %s", dst)
		}
		if back != src {
			return fmt.Errorf("languages.pairs is not bidirectional: %s -> %s but %s -> %s", src, dst, dst, back)
		}
	}
	if l.DefaultTarget != "" {
		if _, ok := l.Pairs[Base(l.DefaultTarget)]; !ok {
			return fmt.Errorf("languages.default_target %s is not a supported language", l.DefaultTarget)
		}
	}
	return nil
}
