// Package profile describes a derivative library as data: which root to
// rename, which files to drop, which dependencies to blank out, and the
// ordered import rewrite rules applied to module entry points.
package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultProfile []byte

// ErrInvalid is returned for profiles that fail validation.
var ErrInvalid = errors.New("invalid profile")

// Profile is the declarative rule set for one derivative library.
type Profile struct {
	Name string `yaml:"name"`

	// SourceRoot is the importable root of the original library, e.g. "open3d".
	SourceRoot string `yaml:"source_root"`
	// TargetRoot is the root it is renamed to, e.g. "open3d_pycg".
	TargetRoot string `yaml:"target_root"`
	// TopLevel is written to .dist-info/top_level.txt. Defaults to TargetRoot.
	TopLevel string `yaml:"top_level,omitempty"`

	DropEntryPoints bool `yaml:"drop_entry_points"`

	// DisallowedDependencies are blanked out of METADATA. When
	// DependencyPrefix is set only lines starting with it are considered.
	DisallowedDependencies []string `yaml:"disallowed_dependencies,omitempty"`
	DependencyPrefix       string   `yaml:"dependency_prefix,omitempty"`

	// Delete lists tree-relative files and directories removed after the root rename.
	Delete []string `yaml:"delete,omitempty"`

	// RewriteFiles lists tree-relative text files the Rules apply to.
	RewriteFiles []string `yaml:"rewrite_files,omitempty"`
	Rules        Rules    `yaml:"rules,omitempty"`
}

// Default returns the built-in open3d_pycg profile.
func Default() *Profile {
	p, err := Parse(bytes.NewReader(defaultProfile))
	if err != nil {
		panic(fmt.Sprintf("built-in profile: %v", err))
	}
	return p
}

// Load reads a profile from a YAML file. An empty path selects Default.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening profile: %w", err)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a profile. Unknown keys are rejected.
func Parse(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	if p.TopLevel == "" {
		p.TopLevel = p.TargetRoot
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Marshal renders the profile as YAML.
func (p *Profile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks the profile for structural problems and rule ordering errors.
func (p *Profile) Validate() error {
	var problems []string

	if p.SourceRoot == "" {
		problems = append(problems, "source_root is required")
	}
	if p.TargetRoot == "" {
		problems = append(problems, "target_root is required")
	}
	for _, dep := range p.DisallowedDependencies {
		if strings.TrimSpace(dep) == "" {
			problems = append(problems, "disallowed_dependencies contains an empty name")
		}
	}
	for _, rel := range append(append([]string{}, p.Delete...), p.RewriteFiles...) {
		if !isTreeRelative(rel) {
			problems = append(problems, fmt.Sprintf("path %q must be relative to the tree root", rel))
		}
	}
	for _, err := range p.Rules.Check() {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func isTreeRelative(rel string) bool {
	if rel == "" || path.IsAbs(rel) || strings.Contains(rel, "\\") {
		return false
	}
	cleaned := path.Clean(rel)
	return cleaned != "." && cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}
