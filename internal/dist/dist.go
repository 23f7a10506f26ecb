package dist

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Ext is the file extension of a wheel archive.
const Ext = ".whl"

var (
	wheelNameRe = regexp.MustCompile(`^(?P<namever>(?P<name>[^\s-]+?)-(?P<ver>[^\s-]+?))(-(?P<build>\d[^\s-]*))?-(?P<pyver>[^\s-]+?)-(?P<abi>[^\s-]+?)-(?P<plat>\S+)\.whl$`)
	distInfoRe  = regexp.MustCompile(`^(?P<namever>(?P<name>[^\s-]+?)-(?P<ver>[^\s-]+?))\.dist-info$`)
)

// Wheel represents the fields encoded in a wheel filename.
type Wheel struct {
	Name     string // e.g., "open3d"
	Version  string // e.g., "0.17.0"
	Build    string // optional build tag, e.g., "1"
	Python   string // e.g., "cp310"
	ABI      string // e.g., "cp310"
	Platform string // e.g., "manylinux_2_27_x86_64"
}

// ParseFilename parses a wheel filename such as "libx-1.0.0-py3-none-any.whl".
// Only the base name is inspected.
func ParseFilename(filename string) (*Wheel, error) {
	base := filepath.Base(filename)

	m := wheelNameRe.FindStringSubmatch(base)
	if m == nil {
		return nil, &Error{Op: "parse", Path: base, Kind: ErrArchiveCorrupt, Detail: "not a valid wheel filename"}
	}

	return &Wheel{
		Name:     m[wheelNameRe.SubexpIndex("name")],
		Version:  m[wheelNameRe.SubexpIndex("ver")],
		Build:    m[wheelNameRe.SubexpIndex("build")],
		Python:   m[wheelNameRe.SubexpIndex("pyver")],
		ABI:      m[wheelNameRe.SubexpIndex("abi")],
		Platform: m[wheelNameRe.SubexpIndex("plat")],
	}, nil
}

// NameVersion returns "name-version", the prefix shared by the filename and
// the .dist-info directory.
func (w *Wheel) NameVersion() string {
	return w.Name + "-" + w.Version
}

// DistInfo returns the name of the wheel's .dist-info directory.
func (w *Wheel) DistInfo() string {
	return w.NameVersion() + ".dist-info"
}

// Tagline returns the "python-abi-platform" part of the filename.
func (w *Wheel) Tagline() string {
	return fmt.Sprintf("%s-%s-%s", w.Python, w.ABI, w.Platform)
}

// Filename composes the canonical wheel filename.
func (w *Wheel) Filename() string {
	nv := w.NameVersion()
	if w.Build != "" {
		nv += "-" + w.Build
	}
	return nv + "-" + w.Tagline() + Ext
}

// ParseDistInfo splits a .dist-info directory name into name and version.
func ParseDistInfo(dirname string) (name, version string, ok bool) {
	m := distInfoRe.FindStringSubmatch(dirname)
	if m == nil {
		return "", "", false
	}
	return m[distInfoRe.SubexpIndex("name")], m[distInfoRe.SubexpIndex("ver")], true
}

// IsDistInfo reports whether dirname names a .dist-info directory.
func IsDistInfo(dirname string) bool {
	_, _, ok := ParseDistInfo(dirname)
	return ok
}

// Tagline compresses a set of "python-abi-platform" tags into a single
// filename tagline, e.g. ["py2-none-any", "py3-none-any"] -> "py2.py3-none-any".
func Tagline(tags []string) string {
	var impls, abis, plats []string
	for _, tag := range tags {
		parts := strings.SplitN(tag, "-", 3)
		if len(parts) != 3 {
			continue
		}
		impls = append(impls, parts[0])
		abis = append(abis, parts[1])
		plats = append(plats, parts[2])
	}
	return strings.Join([]string{joinSet(impls), joinSet(abis), joinSet(plats)}, "-")
}

func joinSet(values []string) string {
	seen := make(map[string]bool)
	var unique []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	sort.Strings(unique)
	return strings.Join(unique, ".")
}
