// Package wheeltest builds and reads wheel archives for tests.
package wheeltest

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/frederic-klein/whlkit/internal/record"
)

// Build writes a wheel named filename into dir. Files are written in sorted
// order and a RECORD is generated for them under distInfo, unless files
// already contains one.
func Build(t *testing.T, dir, filename, distInfo string, files map[string]string) string {
	t.Helper()

	recordPath := distInfo + "/RECORD"
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []record.Entry
	for _, name := range names {
		if name != recordPath {
			entries = append(entries, record.NewEntry(name, []byte(files[name])))
		}
	}
	entries = append(entries, record.Entry{Path: recordPath})

	content := make(map[string]string, len(files)+1)
	for name, data := range files {
		content[name] = data
	}
	if _, ok := content[recordPath]; !ok {
		data, err := record.Format(entries)
		if err != nil {
			t.Fatal(err)
		}
		content[recordPath] = string(data)
		names = append(names, recordPath)
	}

	return Write(t, filepath.Join(dir, filename), names, content)
}

// Write writes the named entries to a zip archive at path, in the given order.
func Write(t *testing.T, path string, names []string, content map[string]string) string {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, content[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	return path
}

// Read returns the entries of a zip archive keyed by name.
func Read(t *testing.T, path string) map[string]string {
	t.Helper()

	files := make(map[string]string)

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			rc.Close()
			t.Fatal(err)
		}
		rc.Close()
		files[zf.Name] = buf.String()
	}

	return files
}

// Names returns the entry names of a zip archive in archive order.
func Names(t *testing.T, path string) []string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	return names
}

// Open3DFiles returns a small tree shaped like an open3d wheel.
func Open3DFiles(version string) map[string]string {
	distInfo := "open3d-" + version + ".dist-info"

	files := make(map[string]string)
	files["open3d/__init__.py"] = strings.Join([]string{
		"import open3d.ml",
		"import open3d.visualization",
		"from open3d.cpu.pybind import core",
		"__version__ = '" + version + "'",
		"",
	}, "\n")
	files["open3d/app.py"] = "import open3d\n"
	files["open3d/web_visualizer.py"] = "import open3d\n"
	files["open3d/ml/__init__.py"] = ""
	files["open3d/examples/demo.py"] = ""
	files["open3d/tools/cli.py"] = ""
	files["open3d/visualization/__init__.py"] = strings.Join([]string{
		"from ._external_visualizer import *",
		"from .draw_plotly import draw_plotly",
		"from .to_mitsuba import to_mitsuba",
		"from open3d.visualization import gui_server",
		"",
	}, "\n")
	files["open3d/visualization/draw_plotly.py"] = ""
	files["open3d/visualization/to_mitsuba.py"] = ""
	files["open3d/visualization/_external_visualizer.py"] = ""
	files["open3d/visualization/async_event_loop.py"] = ""
	files["open3d/visualization/__main__.py"] = ""
	files["open3d/visualization/tensorboard_plugin/plugin.py"] = ""
	files["open3d/visualization/rendering.py"] = "import open3d\n"
	files[distInfo+"/METADATA"] = strings.Join([]string{
		"Metadata-Version: 2.1",
		"Name: open3d",
		"Version: " + version,
		"Requires-Dist: numpy (>=1.18.0)",
		"Requires-Dist: dash (>=2.6.0)",
		"Requires-Dist: werkzeug (>=2.2.3)",
		"Requires-Dist: nbformat (==5.7.0)",
		"Requires-Dist: configargparse",
		"Requires-Dist: pyquaternion",
		"",
	}, "\n")
	files[distInfo+"/WHEEL"] = "Wheel-Version: 1.0\nGenerator: bdist_wheel (0.40.0)\nRoot-Is-Purelib: false\nTag: cp310-cp310-manylinux_2_27_x86_64\n"
	files[distInfo+"/top_level.txt"] = "open3d\n"
	files[distInfo+"/entry_points.txt"] = "[console_scripts]\nopen3d = open3d.tools.cli:main\n"

	return files
}

// Populate writes files into fs, creating parent directories.
func Populate(t *testing.T, fs billy.Filesystem, files map[string]string) {
	t.Helper()

	for name, data := range files {
		if dir := filepath.Dir(name); dir != "." {
			if err := fs.MkdirAll(dir, 0755); err != nil {
				t.Fatal(err)
			}
		}
		if err := util.WriteFile(fs, name, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// Tree returns every regular file under fs keyed by slash-separated path.
func Tree(t *testing.T, fs billy.Filesystem) map[string]string {
	t.Helper()

	files := make(map[string]string)
	err := util.Walk(fs, "/", func(name string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := util.ReadFile(fs, name)
		if err != nil {
			return err
		}
		files[strings.TrimPrefix(filepath.ToSlash(name), "/")] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}
