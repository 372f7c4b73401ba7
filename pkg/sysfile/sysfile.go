// Package sysfile reads and writes single-value pseudo-files such as the
// attributes below /sys. All paths are absolute and resolved below a root so
// tests can point the whole tree at a temporary directory.
package sysfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FS is the set of operations hardware back ends need.
type FS interface {
	// Read returns the whitespace-trimmed content of path.
	Read(path string) (string, error)
	// Write replaces the content of path with value. The file must exist.
	Write(path, value string) error
	// Exists reports whether path exists.
	Exists(path string) bool
	// List returns the names of the entries of dir, sorted.
	List(dir string) ([]string, error)
}

var _ FS = &Dir{}

// Dir is an FS backed by the real filesystem below Root.
type Dir struct {
	Root string
}

// New returns a Dir rooted at root. An empty root means "/".
func New(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) resolve(path string) string {
	return filepath.Join(d.Root, path)
}

func (d *Dir) Read(path string) (string, error) {
	b, err := os.ReadFile(d.resolve(path))
	if err != nil {
		logrus.WithField("path", path).WithError(err).Trace("sysfile read failed")
		return "", pkgerrors.Wrapf(err, "failed to read %s", path)
	}

	v := strings.TrimSpace(string(b))
	logrus.WithFields(logrus.Fields{
		"path": path,
		"val":  v,
	}).Trace("sysfile read")

	return v, nil
}

func (d *Dir) Write(path, value string) error {
	logrus.WithFields(logrus.Fields{
		"path": path,
		"val":  value,
	}).Trace("trying to write sysfile")

	// No O_CREATE: sysfs attributes are never created by writing them.
	fp, err := os.OpenFile(d.resolve(path), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open %s", path)
	}

	_, err = fp.WriteString(value)
	closeErr := fp.Close()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to write %q to %s", value, path)
	}
	if closeErr != nil {
		// sysfs reports rejected values on close for some drivers.
		return pkgerrors.Wrapf(closeErr, "failed to write %q to %s", value, path)
	}

	return nil
}

func (d *Dir) Exists(path string) bool {
	_, err := os.Stat(d.resolve(path))
	return err == nil
}

func (d *Dir) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(d.resolve(dir))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names, nil
}

// ReadInt reads path and parses it as a decimal integer.
func ReadInt(fs FS, path string) (int, error) {
	v, err := fs.Read(path)
	if err != nil {
		return 0, err
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid integer in %s", path)
	}

	return i, nil
}

// WriteInt writes i to path in decimal.
func WriteInt(fs FS, path string, i int) error {
	return fs.Write(path, strconv.Itoa(i))
}
