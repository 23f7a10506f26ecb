package profile

import (
	"fmt"
	"strings"
)

// Rule is a named literal substitution.
//
// A rule is idempotent: an occurrence of Find that already sits inside an
// occurrence of Replace is left alone, so "import open3d" -> "import
// open3d_pycg" does not grow on a second pass.
type Rule struct {
	Name    string `yaml:"name"`
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`

	// After names rules that must already have run.
	After []string `yaml:"after,omitempty"`
	// Invariant documents what the rule relies on and guarantees.
	Invariant string `yaml:"invariant,omitempty"`
}

// Apply returns text with every occurrence of Find replaced and the number
// of replacements made.
func (r Rule) Apply(text string) (string, int) {
	if r.Find == "" || !strings.Contains(text, r.Find) {
		return text, 0
	}

	// Offset of Find inside Replace, if the replacement contains the pattern.
	inner := strings.Index(r.Replace, r.Find)

	var b strings.Builder
	count, last := 0, 0
	for i := 0; i <= len(text)-len(r.Find); {
		j := strings.Index(text[i:], r.Find)
		if j < 0 {
			break
		}
		at := i + j

		if inner >= 0 && at >= inner && strings.HasPrefix(text[at-inner:], r.Replace) {
			i = at + len(r.Find)
			continue
		}

		b.WriteString(text[last:at])
		b.WriteString(r.Replace)
		last = at + len(r.Find)
		i = last
		count++
	}

	if count == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), count
}

// Rules is an ordered rule pipeline.
type Rules []Rule

// Apply runs every rule in order and returns the replacement count per rule name.
func (rs Rules) Apply(text string) (string, map[string]int) {
	counts := make(map[string]int)
	for _, r := range rs {
		var n int
		text, n = r.Apply(text)
		if n > 0 {
			counts[r.Name] += n
		}
	}
	return text, counts
}

// Check audits the pipeline order. It reports unnamed or duplicate rules,
// empty patterns, After references to rules that do not run earlier, and
// shadowing: an earlier rule whose pattern is contained in a later rule's
// pattern consumes the later rule's matches before it can run.
func (rs Rules) Check() []error {
	var errs []error
	seen := make(map[string]bool, len(rs))

	for i, r := range rs {
		switch {
		case r.Name == "":
			errs = append(errs, fmt.Errorf("rule %d has no name", i+1))
		case seen[r.Name]:
			errs = append(errs, fmt.Errorf("rule %q is defined twice", r.Name))
		}
		if r.Find == "" {
			errs = append(errs, fmt.Errorf("rule %q has an empty find pattern", r.Name))
		}

		for _, dep := range r.After {
			if !seen[dep] {
				errs = append(errs, fmt.Errorf("rule %q must run after %q, which does not run earlier", r.Name, dep))
			}
		}

		for _, earlier := range rs[:i] {
			if earlier.Find != "" && earlier.Find != r.Find && strings.Contains(r.Find, earlier.Find) {
				errs = append(errs, fmt.Errorf("rule %q shadows later rule %q", earlier.Name, r.Name))
			}
		}

		seen[r.Name] = true
	}

	return errs
}
