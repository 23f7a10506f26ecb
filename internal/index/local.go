package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/frederic-klein/whlkit/internal/dist"
)

// PageName is the file name of the index page inside a package directory.
const PageName = "index.html"

// Local is a directory of wheels with its index page.
type Local struct {
	dir string
}

// NewLocal creates an index over dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// PagePath returns the path of the directory's index page.
func (l *Local) PagePath() string {
	return filepath.Join(l.dir, PageName)
}

// Wheels returns the names of the wheels directly inside the directory.
func (l *Local) Wheels() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", l.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), dist.Ext) {
			continue
		}
		info, err := os.Stat(filepath.Join(l.dir, e.Name()))
		if err == nil && info.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Listed returns the names on the existing index page. A missing page lists nothing.
func (l *Local) Listed() ([]string, error) {
	f, err := os.Open(l.PagePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening index page: %w", err)
	}
	defer f.Close()

	return NewParser(f).Parse()
}

// RegenerateOptions configures Regenerate.
type RegenerateOptions struct {
	BaseURL string
	// Remote, when set, contributes the names of a published page.
	Remote *Remote
}

// Regenerate rewrites the index page with the union of the names it already
// lists, the names on the remote page and the wheels on disk. It returns the
// names written.
func (l *Local) Regenerate(ctx context.Context, opts RegenerateOptions) ([]string, error) {
	listed, err := l.Listed()
	if err != nil {
		return nil, err
	}

	var published []string
	if opts.Remote != nil {
		if published, err = opts.Remote.Load(ctx); err != nil {
			return nil, err
		}
	}

	wheels, err := l.Wheels()
	if err != nil {
		return nil, err
	}

	names := Union(listed, published, wheels)

	tmp := l.PagePath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating index page: %w", err)
	}
	if err := NewEmitter(f, opts.BaseURL).Emit(names); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("writing index page: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("writing index page: %w", err)
	}
	if err := os.Rename(tmp, l.PagePath()); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("replacing index page: %w", err)
	}

	return names, nil
}
