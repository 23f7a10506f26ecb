// Package repack builds a wheel archive from an unpacked tree.
package repack

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/metadata"
	"github.com/frederic-klein/whlkit/internal/record"
)

// DefaultTimestamp is used for every entry when SOURCE_DATE_EPOCH is unset.
var DefaultTimestamp = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

const recordMode = 0664

// Packer writes wheels. Names and tags come from the tree's own
// .dist-info, never from the archive the tree was extracted from.
type Packer struct {
	// Modified is stamped on every entry.
	Modified time.Time
	parser   *metadata.Parser
}

// NewPacker creates a packer whose timestamp honors SOURCE_DATE_EPOCH.
func NewPacker() *Packer {
	modified := DefaultTimestamp
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			modified = time.Unix(secs, 0).UTC()
			if modified.Before(DefaultTimestamp) {
				modified = DefaultTimestamp
			}
		}
	}
	return &Packer{Modified: modified, parser: metadata.NewParser()}
}

// Pack writes the tree as a wheel into outDir and returns the archive path.
// Every RECORD row is recomputed from the tree's current content.
func (p *Packer) Pack(tree billy.Filesystem, outDir string) (string, error) {
	distInfo, err := p.distInfo(tree)
	if err != nil {
		return "", err
	}
	name, err := p.archiveName(tree, distInfo)
	if err != nil {
		return "", err
	}

	files, deferred, err := walk(tree, "")
	if err != nil {
		return "", err
	}
	recordPath := distInfo + "/RECORD"
	sort.Strings(deferred)

	var order []string
	for _, f := range append(files, deferred...) {
		if f != recordPath {
			order = append(order, f)
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	target := filepath.Join(outDir, name)
	if err := p.write(tree, target, order, recordPath); err != nil {
		os.Remove(target)
		return "", err
	}
	return target, nil
}

func (p *Packer) write(tree billy.Filesystem, target string, order []string, recordPath string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entries := make([]record.Entry, 0, len(order)+1)

	for _, name := range order {
		info, err := tree.Lstat(name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		data, err := util.ReadFile(tree, name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		if err := p.add(zw, name, data, info.Mode().Perm()); err != nil {
			return err
		}
		entries = append(entries, record.NewEntry(name, data))
	}

	entries = append(entries, record.Entry{Path: recordPath})
	data, err := record.Format(entries)
	if err != nil {
		return err
	}
	if err := p.add(zw, recordPath, data, recordMode); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return out.Close()
}

func (p *Packer) add(zw *zip.Writer, name string, data []byte, perm os.FileMode) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: p.Modified,
	}
	hdr.SetMode(perm)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// distInfo returns the single .dist-info directory at the tree root.
func (p *Packer) distInfo(tree billy.Filesystem) (string, error) {
	entries, err := tree.ReadDir("/")
	if err != nil {
		return "", fmt.Errorf("listing tree root: %w", err)
	}

	var found []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ".dist-info") {
			found = append(found, e.Name())
		}
	}
	switch len(found) {
	case 0:
		return "", missing("no .dist-info directory at tree root")
	case 1:
	default:
		sort.Strings(found)
		return "", missing("multiple .dist-info directories: " + strings.Join(found, ", "))
	}

	if !dist.IsDistInfo(found[0]) {
		return "", missing("malformed .dist-info directory name " + found[0])
	}
	return found[0], nil
}

// archiveName derives namever(-build)?-tagline.whl from the dist-info name and WHEEL.
func (p *Packer) archiveName(tree billy.Filesystem, distInfo string) (string, error) {
	wheelPath := distInfo + "/WHEEL"
	headers, err := p.parser.ParseFile(tree, wheelPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", missing(wheelPath)
	}
	if err != nil {
		return "", err
	}

	tags := headers.Values("Tag")
	if len(tags) == 0 {
		return "", missing("no Tag in " + wheelPath)
	}

	name := strings.TrimSuffix(distInfo, ".dist-info")
	if build := headers.Get("Build"); build != "" {
		name += "-" + build
	}
	return name + "-" + dist.Tagline(tags) + dist.Ext, nil
}

// walk lists regular files top-down: at each level sorted files first, then
// sorted subdirectories. Files whose parent directory is a .dist-info are
// returned separately.
func walk(tree billy.Filesystem, dir string) (files, deferred []string, err error) {
	root := dir
	if root == "" {
		root = "/"
	}
	entries, err := tree.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	inDistInfo := strings.HasSuffix(dir, ".dist-info")
	var subdirs []string
	for _, e := range entries {
		name := path.Join(dir, e.Name())
		switch {
		case e.IsDir():
			subdirs = append(subdirs, name)
		case !e.Mode().IsRegular():
		case inDistInfo:
			deferred = append(deferred, name)
		default:
			files = append(files, name)
		}
	}

	for _, sub := range subdirs {
		f, d, err := walk(tree, sub)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, f...)
		deferred = append(deferred, d...)
	}
	return files, deferred, nil
}

func missing(detail string) error {
	return &dist.Error{Op: "pack", Kind: dist.ErrMissingRequiredEntry, Detail: detail}
}
