// Package scaffold creates the directory layout and starter files of a new
// periodetl project.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed templates
var templates embed.FS

// file maps an embedded template to its destination in the project.
type file struct {
	template string
	dest     string
}

var files = []file{
	{"templates/datasets.csv", filepath.Join("conf", "datasets.csv")},
	{"templates/field_reference.json", filepath.Join("conf", "field_reference.json")},
	{"templates/config.toml", "config.toml"},
}

// Result lists what Init did, relative to the project directory.
type Result struct {
	Created []string
	Skipped []string
}

// Init lays out a project in dir. Existing files are never overwritten; they
// are reported as skipped. Progress is written to out.
func Init(dir string, out io.Writer) (*Result, error) {
	for _, d := range []string{"conf", "output"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}

	res := &Result{}
	for _, f := range files {
		path := filepath.Join(dir, f.dest)
		created, err := writeNew(path, f.template)
		if err != nil {
			return res, err
		}
		if created {
			res.Created = append(res.Created, f.dest)
			fmt.Fprintf(out, "Created %s\n", path)
		} else {
			res.Skipped = append(res.Skipped, f.dest)
			fmt.Fprintf(out, "Skipped %s (already exists)\n", path)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Initialized periodetl project. Next steps:")
	fmt.Fprintln(out, "  1. Edit conf/datasets.csv with your source files")
	fmt.Fprintln(out, "  2. Edit conf/field_reference.json with your field mappings")
	fmt.Fprintln(out, "  3. Run: periodetl run")
	return res, nil
}

// writeNew writes the template to path unless path already exists.
func writeNew(path, template string) (bool, error) {
	data, err := fs.ReadFile(templates, template)
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, f.Close()
}
