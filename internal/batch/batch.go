// Package batch runs the trim pipeline over every wheel in a directory.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/extractor"
	"github.com/frederic-klein/whlkit/internal/profile"
	"github.com/frederic-klein/whlkit/internal/repack"
	"github.com/frederic-klein/whlkit/internal/transform"
)

// ScratchDir is the name of the per-archive scratch tree inside the output directory.
const ScratchDir = "tmp"

// Outcome is the result of processing one archive.
type Outcome struct {
	Input  string
	Output string
	Notes  []string
	Err    error
}

// Report collects outcomes in processing order.
type Report struct {
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err summarizes failures, or returns nil when every archive succeeded.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, o := range failed {
		names[i] = filepath.Base(o.Input)
	}
	return fmt.Errorf("%d of %d archives failed: %s", len(failed), len(r.Outcomes), strings.Join(names, ", "))
}

// Archives lists the wheels directly inside dir, sorted by name.
func Archives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var archives []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), dist.Ext) {
			continue
		}
		// Stat follows symlinks.
		p := filepath.Join(dir, e.Name())
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			archives = append(archives, p)
		}
	}
	sort.Strings(archives)
	return archives, nil
}

// Options configures a Driver.
type Options struct {
	// OutDir receives the output archives and the scratch tree.
	OutDir string
	// CleanScratch removes the scratch tree after the last archive. By default
	// it is left in place for inspection.
	CleanScratch bool
	Logger       *log.Logger
}

// Driver runs unpack, transform and repack per archive. A failing archive
// is reported and the remaining archives are still processed.
type Driver struct {
	opts        Options
	extractor   *extractor.Extractor
	transformer *transform.Transformer
	packer      *repack.Packer
	logger      *log.Logger
}

// NewDriver creates a driver that trims with the given profile.
func NewDriver(p *profile.Profile, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Driver{
		opts:        opts,
		extractor:   extractor.NewExtractor(),
		transformer: transform.NewTransformer(p),
		packer:      repack.NewPacker(),
		logger:      logger,
	}
}

// Run processes every wheel directly inside inputDir. The returned error is
// reserved for failures that stop the whole batch: an unreadable input
// directory, an unusable output directory or cancellation. Per-archive
// failures are in the report.
func (d *Driver) Run(ctx context.Context, inputDir string) (*Report, error) {
	archives, err := Archives(inputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	d.logger.Info("trimming", "archives", len(archives), "out", d.opts.OutDir)

	report := &Report{}
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, d.Process(archive))
	}

	if d.opts.CleanScratch {
		if err := os.RemoveAll(d.scratch()); err != nil {
			d.logger.Warn("could not remove scratch tree", "path", d.scratch(), "error", err)
		}
	}
	return report, nil
}

// Process trims a single archive into the output directory.
func (d *Driver) Process(archive string) Outcome {
	outcome := Outcome{Input: archive}
	name := filepath.Base(archive)
	logger := d.logger.With("archive", name)

	logger.Debug("processing")

	output, notes, err := d.process(archive)
	outcome.Output, outcome.Notes, outcome.Err = output, notes, err

	for _, note := range notes {
		logger.Warn(note)
	}
	if err != nil {
		logger.Error("failed", "error", err)
		return outcome
	}
	logger.Info("wrote", "output", filepath.Base(output))
	return outcome
}

func (d *Driver) process(archive string) (string, []string, error) {
	scratch, err := d.resetScratch()
	if err != nil {
		return "", nil, err
	}
	tree := osfs.New(scratch)

	if _, err := d.extractor.Extract(archive, tree); err != nil {
		return "", nil, err
	}

	res, err := d.transformer.Apply(tree)
	if err != nil {
		return "", nil, fmt.Errorf("transforming %s: %w", filepath.Base(archive), err)
	}

	output, err := d.packer.Pack(tree, d.opts.OutDir)
	if err != nil {
		return "", res.Notes, fmt.Errorf("repacking %s: %w", filepath.Base(archive), err)
	}
	return output, res.Notes, nil
}

func (d *Driver) scratch() string {
	return filepath.Join(d.opts.OutDir, ScratchDir)
}

// resetScratch clears whatever a previous iteration or run left behind and
// recreates an empty scratch tree.
func (d *Driver) resetScratch() (string, error) {
	scratch := d.scratch()
	if err := os.RemoveAll(scratch); err != nil {
		return "", &dist.Error{Op: "scratch", Path: scratch, Kind: dist.ErrScratchConflict, Detail: err.Error()}
	}
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return "", &dist.Error{Op: "scratch", Path: scratch, Kind: dist.ErrScratchConflict, Detail: err.Error()}
	}
	return scratch, nil
}
