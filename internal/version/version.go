// Package version rewrites the version token embedded in wheel archives.
//
// The rewrite is textual: entry names and the content of text entries have
// every occurrence of the old token replaced. RECORD is patched like any
// other text entry, so its digests go stale for entries whose content
// changed unless Rehash is set.
package version

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"

	"github.com/frederic-klein/whlkit/internal/batch"
	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/record"
)

// DefaultTextPatterns select the entries whose content is rewritten.
var DefaultTextPatterns = []string{"*.py", "*METADATA", "*RECORD"}

// ErrEmptyToken is returned when the old or new version token is empty.
var ErrEmptyToken = errors.New("empty version token")

// Options configures a Rewriter.
type Options struct {
	// TextPatterns are glob patterns matched against entry names. Defaults
	// to DefaultTextPatterns.
	TextPatterns []string
	// Rehash recomputes the RECORD rows of entries whose content changed.
	Rehash bool
	Logger *log.Logger
}

// Rewriter produces version-renamed copies of wheels.
type Rewriter struct {
	text   []glob.Glob
	rehash bool
	logger *log.Logger
}

// NewRewriter compiles the text patterns.
func NewRewriter(opts Options) (*Rewriter, error) {
	patterns := opts.TextPatterns
	if len(patterns) == 0 {
		patterns = DefaultTextPatterns
	}

	r := &Rewriter{rehash: opts.Rehash, logger: opts.Logger}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid text pattern %q: %w", pattern, err)
		}
		r.text = append(r.text, g)
	}
	return r, nil
}

// IsText reports whether the content of the named entry is rewritten.
func (r *Rewriter) IsText(name string) bool {
	for _, g := range r.text {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// SourceVersion returns the version field of a wheel filename.
func SourceVersion(archive string) (string, error) {
	w, err := dist.ParseFilename(archive)
	if err != nil {
		return "", err
	}
	return w.Version, nil
}

// Rewrite writes a copy of archive into outDir with from replaced by to in
// the archive name, in every entry name and in the content of text entries.
// An empty from selects the archive's own version. The output is written to
// a temporary file first, so a failure never leaves a partial archive under
// the final name.
func (r *Rewriter) Rewrite(archive, outDir, from, to string) (string, error) {
	if from == "" {
		v, err := SourceVersion(archive)
		if err != nil {
			return "", err
		}
		from = v
	}
	if to == "" {
		return "", ErrEmptyToken
	}

	target := filepath.Join(outDir, strings.ReplaceAll(filepath.Base(archive), from, to))
	if abs(target) == abs(archive) {
		return "", fmt.Errorf("refusing to overwrite %s", archive)
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", &dist.Error{Op: "rewrite", Path: archive, Kind: dist.ErrArchiveCorrupt, Detail: err.Error()}
	}
	defer zr.Close()

	var digests map[string]record.Entry
	if r.rehash {
		if digests, err = r.digests(zr.File, from, to); err != nil {
			return "", &dist.Error{Op: "rewrite", Path: archive, Kind: dist.ErrArchiveCorrupt, Detail: err.Error()}
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	tmp := target + ".tmp"
	if err := r.write(zr.File, tmp, from, to, digests); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rewriting %s: %w", filepath.Base(archive), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming output: %w", err)
	}

	r.logger.Debug("rewrote", "archive", filepath.Base(archive), "output", filepath.Base(target), "from", from, "to", to)
	return target, nil
}

func (r *Rewriter) write(files []*zip.File, path, from, to string, digests map[string]record.Entry) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	oldToken, newToken := []byte(from), []byte(to)

	for _, zf := range files {
		hdr := &zip.FileHeader{
			Name:           strings.ReplaceAll(zf.Name, from, to),
			Comment:        zf.Comment,
			Method:         zip.Deflate,
			Modified:       zf.Modified,
			CreatorVersion: zf.CreatorVersion,
			ExternalAttrs:  zf.ExternalAttrs,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("adding %s: %w", hdr.Name, err)
		}
		if strings.HasSuffix(zf.Name, "/") {
			continue
		}

		data, err := readEntry(zf)
		if err != nil {
			return &dist.Error{Op: "rewrite", Path: zf.Name, Kind: dist.ErrArchiveCorrupt, Detail: err.Error()}
		}
		if r.IsText(zf.Name) {
			data = bytes.ReplaceAll(data, oldToken, newToken)
			if digests != nil && isRecord(zf.Name) {
				if data, err = rehash(data, digests); err != nil {
					return err
				}
			}
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", hdr.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return out.Close()
}

// digests computes fresh RECORD rows, keyed by output name, for every text
// entry whose content the rewrite changes.
func (r *Rewriter) digests(files []*zip.File, from, to string) (map[string]record.Entry, error) {
	digests := make(map[string]record.Entry)
	for _, zf := range files {
		if strings.HasSuffix(zf.Name, "/") || isRecord(zf.Name) || !r.IsText(zf.Name) {
			continue
		}
		data, err := readEntry(zf)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", zf.Name, err)
		}
		rewritten := bytes.ReplaceAll(data, []byte(from), []byte(to))
		if bytes.Equal(rewritten, data) {
			continue
		}
		name := strings.ReplaceAll(zf.Name, from, to)
		digests[name] = record.NewEntry(name, rewritten)
	}
	return digests, nil
}

func rehash(data []byte, digests map[string]record.Entry) ([]byte, error) {
	entries, err := record.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if fresh, ok := digests[e.Path]; ok {
			entries[i].Hash, entries[i].Size = fresh.Hash, fresh.Size
		}
	}
	return record.Format(entries)
}

// Batch rewrites every wheel directly inside inputDir into outDir. A failing
// archive is reported and the rest are still processed.
func (r *Rewriter) Batch(ctx context.Context, inputDir, outDir, from, to string) (*batch.Report, error) {
	archives, err := batch.Archives(inputDir)
	if err != nil {
		return nil, err
	}

	r.logger.Info("rewriting versions", "archives", len(archives), "to", to, "out", outDir)

	report := &batch.Report{}
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := batch.Outcome{Input: archive}
		outcome.Output, outcome.Err = r.Rewrite(archive, outDir, from, to)
		if outcome.Err != nil {
			r.logger.Error("failed", "archive", filepath.Base(archive), "error", outcome.Err)
		} else {
			r.logger.Info("wrote", "archive", filepath.Base(archive), "output", filepath.Base(outcome.Output))
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func isRecord(name string) bool {
	return strings.HasSuffix(name, ".dist-info/RECORD")
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func abs(path string) string {
	if a, err := filepath.Abs(path); err == nil {
		return a
	}
	return path
}
