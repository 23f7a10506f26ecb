package extractor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/metadata"
	"github.com/frederic-klein/whlkit/internal/record"
)

// Info describes a wheel without extracting it.
type Info struct {
	Wheel    *dist.Wheel
	DistInfo string
	Metadata *metadata.Headers // .dist-info/METADATA
	WheelTag *metadata.Headers // .dist-info/WHEEL
	Entries  []string
}

// Extractor unpacks wheel archives into a scratch tree.
type Extractor struct {
	parser *metadata.Parser
}

// NewExtractor creates a new extractor.
func NewExtractor() *Extractor {
	return &Extractor{parser: metadata.NewParser()}
}

// Extract unpacks every entry of the wheel at archivePath into dst,
// preserving relative paths and bytes. Each file is checked against the
// archive's RECORD before it is written; any disagreement fails with
// dist.ErrArchiveCorrupt. It returns the extracted file paths in archive order.
func (e *Extractor) Extract(archivePath string, dst billy.Filesystem) ([]string, error) {
	w, err := dist.ParseFilename(archivePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	zr, err := openZip(file, archivePath)
	if err != nil {
		return nil, err
	}

	recordPath := w.DistInfo() + "/RECORD"
	entries, err := readRecord(zr, archivePath, recordPath)
	if err != nil {
		return nil, err
	}

	listed := make(map[string]record.Entry, len(entries))
	for _, entry := range entries {
		listed[entry.Path] = entry
	}

	var extracted []string
	seen := make(map[string]bool)

	for _, zf := range zr.File {
		name, err := entryPath(zf.Name)
		if err != nil {
			return nil, corrupt(archivePath, err.Error())
		}

		if strings.HasSuffix(zf.Name, "/") {
			if err := dst.MkdirAll(name, 0755); err != nil {
				return nil, fmt.Errorf("creating directory %s: %w", name, err)
			}
			continue
		}

		data, err := readEntry(zf)
		if err != nil {
			return nil, corrupt(archivePath, fmt.Sprintf("reading %s: %v", zf.Name, err))
		}

		if !isUnrecorded(zf.Name, recordPath) {
			entry, ok := listed[zf.Name]
			if !ok || entry.Hash == "" {
				return nil, corrupt(archivePath, fmt.Sprintf("no hash found for %s", zf.Name))
			}
			if err := entry.Verify(data); err != nil {
				return nil, corrupt(archivePath, err.Error())
			}
		}
		seen[zf.Name] = true

		if dir := path.Dir(name); dir != "." {
			if err := dst.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating directory for %s: %w", name, err)
			}
		}
		if err := util.WriteFile(dst, name, data, fileMode(zf)); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
		extracted = append(extracted, name)
	}

	for _, entry := range entries {
		if !seen[entry.Path] && !strings.HasSuffix(entry.Path, "/") {
			return nil, corrupt(archivePath, fmt.Sprintf("RECORD lists missing entry %s", entry.Path))
		}
	}

	return extracted, nil
}

// Inspect reads the wheel's METADATA and WHEEL headers and lists its entries.
func (e *Extractor) Inspect(archivePath string) (*Info, error) {
	w, err := dist.ParseFilename(archivePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	zr, err := openZip(file, archivePath)
	if err != nil {
		return nil, err
	}

	info := &Info{Wheel: w, DistInfo: w.DistInfo()}
	for _, zf := range zr.File {
		info.Entries = append(info.Entries, zf.Name)

		var target **metadata.Headers
		switch zf.Name {
		case info.DistInfo + "/METADATA":
			target = &info.Metadata
		case info.DistInfo + "/WHEEL":
			target = &info.WheelTag
		default:
			continue
		}

		data, err := readEntry(zf)
		if err != nil {
			return nil, corrupt(archivePath, fmt.Sprintf("reading %s: %v", zf.Name, err))
		}
		if *target, err = e.parser.Parse(bytes.NewReader(data)); err != nil {
			return nil, corrupt(archivePath, err.Error())
		}
	}

	if info.Metadata == nil {
		return nil, &dist.Error{Op: "inspect", Path: archivePath, Kind: dist.ErrMissingRequiredEntry, Detail: info.DistInfo + "/METADATA"}
	}
	if info.WheelTag == nil {
		return nil, &dist.Error{Op: "inspect", Path: archivePath, Kind: dist.ErrMissingRequiredEntry, Detail: info.DistInfo + "/WHEEL"}
	}

	return info, nil
}

func openZip(file *os.File, archivePath string) (*zip.Reader, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	zr, err := zip.NewReader(file, stat.Size())
	if err != nil {
		return nil, corrupt(archivePath, err.Error())
	}
	return zr, nil
}

func readRecord(zr *zip.Reader, archivePath, recordPath string) ([]record.Entry, error) {
	for _, zf := range zr.File {
		if zf.Name != recordPath {
			continue
		}
		data, err := readEntry(zf)
		if err != nil {
			return nil, corrupt(archivePath, fmt.Sprintf("reading %s: %v", recordPath, err))
		}
		entries, err := record.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, corrupt(archivePath, err.Error())
		}
		return entries, nil
	}
	return nil, corrupt(archivePath, "missing "+recordPath)
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// entryPath validates an entry name and returns it in clean form. Names that
// are absolute or climb out of the tree are rejected.
func entryPath(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") {
		return "", fmt.Errorf("invalid entry name %q", name)
	}
	cleaned := path.Clean(name)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("entry %q escapes the archive root", name)
	}
	return cleaned, nil
}

// isUnrecorded reports whether name is exempt from RECORD: RECORD itself
// and its detached signatures.
func isUnrecorded(name, recordPath string) bool {
	return name == recordPath || name == recordPath+".jws" || name == recordPath+".p7s"
}

func fileMode(zf *zip.File) os.FileMode {
	if perm := zf.Mode().Perm(); perm != 0 {
		return perm
	}
	return 0644
}

func corrupt(archivePath, detail string) error {
	return &dist.Error{Op: "unpack", Path: archivePath, Kind: dist.ErrArchiveCorrupt, Detail: detail}
}
