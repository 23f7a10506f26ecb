// Package transform applies a derivative profile to an extracted wheel tree.
package transform

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/profile"
)

// Result summarizes what a transformation changed.
type Result struct {
	// Notes are non-fatal conditions, e.g. an expected file that was absent.
	Notes     []string
	Deleted   []string
	Rewritten []string
	// Rules counts replacements per rule name across all rewrite files.
	Rules map[string]int
}

func (r *Result) notef(format string, args ...interface{}) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Transformer mutates a scratch tree in place.
type Transformer struct {
	profile *profile.Profile
}

// NewTransformer creates a transformer for the given profile.
func NewTransformer(p *profile.Profile) *Transformer {
	return &Transformer{profile: p}
}

// Apply renames the root, strips and filters metadata, deletes the
// profile's delete set and rewrites imports. Running it again on its own
// output changes nothing. The root is moved by copying, so any
// billy.Filesystem works, including memfs.
func (t *Transformer) Apply(tree billy.Filesystem) (*Result, error) {
	res := &Result{Rules: make(map[string]int)}

	if err := t.renameRoot(tree, res); err != nil {
		return nil, err
	}

	distInfo, err := findDistInfo(tree)
	if err != nil {
		return nil, err
	}
	if distInfo == "" {
		res.notef("no .dist-info directory at tree root")
	} else {
		if err := t.stripMetadata(tree, distInfo, res); err != nil {
			return nil, err
		}
		if err := t.filterDependencies(tree, distInfo+"/METADATA", res); err != nil {
			return nil, err
		}
	}

	for _, rel := range t.profile.Delete {
		if _, err := tree.Lstat(rel); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("checking %s: %w", rel, err)
		}
		if err := util.RemoveAll(tree, rel); err != nil {
			return nil, fmt.Errorf("deleting %s: %w", rel, err)
		}
		res.Deleted = append(res.Deleted, rel)
	}

	for _, rel := range t.profile.RewriteFiles {
		if err := t.rewrite(tree, rel, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (t *Transformer) renameRoot(tree billy.Filesystem, res *Result) error {
	src, dst := t.profile.SourceRoot, t.profile.TargetRoot
	if src == dst {
		return nil
	}

	srcInfo, err := tree.Lstat(src)
	srcExists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", src, err)
	}
	_, err = tree.Lstat(dst)
	dstExists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", dst, err)
	}

	switch {
	case srcExists && dstExists:
		return fmt.Errorf("cannot rename %s: %s already exists", src, dst)
	case srcExists && !srcInfo.IsDir():
		res.notef("%s is not a directory, not renamed", src)
	case srcExists:
		if err := moveTree(tree, src, dst); err != nil {
			return fmt.Errorf("renaming %s to %s: %w", src, dst, err)
		}
	case !dstExists:
		res.notef("root %s not found", src)
	}
	return nil
}

func (t *Transformer) stripMetadata(tree billy.Filesystem, distInfo string, res *Result) error {
	if t.profile.DropEntryPoints {
		name := distInfo + "/entry_points.txt"
		if err := tree.Remove(name); err == nil {
			res.Deleted = append(res.Deleted, name)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}

	if t.profile.TopLevel == "" {
		return nil
	}
	name := distInfo + "/top_level.txt"
	current, err := util.ReadFile(tree, name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err == nil && string(current) == t.profile.TopLevel {
		return nil
	}
	if err := util.WriteFile(tree, name, []byte(t.profile.TopLevel), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	res.Rewritten = append(res.Rewritten, name)
	return nil
}

func (t *Transformer) filterDependencies(tree billy.Filesystem, name string, res *Result) error {
	if len(t.profile.DisallowedDependencies) == 0 {
		return nil
	}

	data, err := util.ReadFile(tree, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.notef("%s not found, dependencies not filtered", name)
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}

	filtered, n := FilterLines(string(data), t.profile.DependencyPrefix, t.profile.DisallowedDependencies)
	if n == 0 {
		return nil
	}
	if err := writePreservingMode(tree, name, []byte(filtered)); err != nil {
		return err
	}
	res.Rewritten = append(res.Rewritten, name)
	return nil
}

func (t *Transformer) rewrite(tree billy.Filesystem, name string, res *Result) error {
	data, err := util.ReadFile(tree, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.notef("%s not found, imports not rewritten", name)
			return nil
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}

	text, counts := t.profile.Rules.Apply(string(data))
	if len(counts) == 0 {
		return nil
	}
	for rule, n := range counts {
		res.Rules[rule] += n
	}
	if err := writePreservingMode(tree, name, []byte(text)); err != nil {
		return err
	}
	res.Rewritten = append(res.Rewritten, name)
	return nil
}

// FilterLines blanks every line of text that mentions one of deps. When
// prefix is non-empty only lines starting with it are candidates. Lines are
// emptied, never removed, so line numbers are stable. It returns the new
// text and the number of lines blanked.
func FilterLines(text, prefix string, deps []string) (string, int) {
	lines := strings.Split(text, "\n")
	n := 0
	for i, line := range lines {
		if line == "" || (prefix != "" && !strings.HasPrefix(line, prefix)) {
			continue
		}
		for _, dep := range deps {
			if strings.Contains(line, dep) {
				lines[i] = ""
				n++
				break
			}
		}
	}
	return strings.Join(lines, "\n"), n
}

// findDistInfo returns the first .dist-info directory at the tree root, in
// name order.
func findDistInfo(tree billy.Filesystem) (string, error) {
	entries, err := tree.ReadDir("/")
	if err != nil {
		return "", fmt.Errorf("listing tree root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && dist.IsDistInfo(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[0], nil
}

func writePreservingMode(tree billy.Filesystem, name string, data []byte) error {
	perm := os.FileMode(0644)
	if info, err := tree.Stat(name); err == nil {
		perm = info.Mode().Perm()
	}
	if err := util.WriteFile(tree, name, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// moveTree copies src to dst entry by entry and then removes src. memfs
// renames by string prefix, which would also take a sibling such as
// "open3d-0.17.0.dist-info".
func moveTree(tree billy.Filesystem, src, dst string) error {
	err := util.Walk(tree, src, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, name)
		if err != nil {
			return err
		}
		target := path.Join(dst, filepath.ToSlash(rel))

		switch {
		case info.IsDir():
			return tree.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := tree.Readlink(name)
			if err != nil {
				return err
			}
			return tree.Symlink(link, target)
		default:
			data, err := util.ReadFile(tree, name)
			if err != nil {
				return err
			}
			return util.WriteFile(tree, target, data, info.Mode().Perm())
		}
	})
	if err != nil {
		return err
	}
	return util.RemoveAll(tree, src)
}
