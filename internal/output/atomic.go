// Package output writes run artifacts: the enhanced CSV, the QA summary and
// the GeoJSON review layer. Every artifact is written all-or-nothing.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Staged is an artifact fully written to a temp file next to its target but
// not yet renamed into place.
type Staged struct {
	Path string
	// SHA256 is the hex digest of the staged bytes.
	SHA256 string

	tmp string
}

// Stage streams write into a temp file in path's directory. Nothing is visible
// at path until Commit. On failure no temp file is left behind.
func Stage(path string, write func(w io.Writer) error) (*Staged, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "output: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, eris.Wrapf(err, "output: create temp for %s", path)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()        //nolint:errcheck
			os.Remove(tmpName) //nolint:errcheck
		}
	}()

	h := sha256.New()
	if err := write(io.MultiWriter(tmp, h)); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, eris.Wrapf(err, "output: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrapf(err, "output: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return nil, eris.Wrapf(err, "output: chmod %s", tmpName)
	}
	ok = true
	return &Staged{Path: path, SHA256: hex.EncodeToString(h.Sum(nil)), tmp: tmpName}, nil
}

// Commit renames the staged file into place.
func (s *Staged) Commit() error {
	if s.tmp == "" {
		return eris.Errorf("output: %s already committed or discarded", s.Path)
	}
	if err := os.Rename(s.tmp, s.Path); err != nil {
		return eris.Wrapf(err, "output: rename into %s", s.Path)
	}
	s.tmp = ""
	return nil
}

// Discard removes the temp file of an uncommitted artifact. It is a no-op
// after Commit.
func (s *Staged) Discard() {
	if s == nil || s.tmp == "" {
		return
	}
	os.Remove(s.tmp) //nolint:errcheck
	s.tmp = ""
}

// CommitAll renames files into place in order and stops at the first failure,
// discarding the rest. Callers put the primary artifact last so it only
// appears once everything before it is in place.
func CommitAll(files ...*Staged) error {
	for i, f := range files {
		if err := f.Commit(); err != nil {
			for _, rest := range files[i+1:] {
				rest.Discard()
			}
			return err
		}
	}
	return nil
}

// WriteFileAtomic stages write and commits it. It returns the hex SHA-256 of
// the bytes written. On failure the target is left untouched.
func WriteFileAtomic(path string, write func(w io.Writer) error) (string, error) {
	s, err := Stage(path, write)
	if err != nil {
		return "", err
	}
	if err := s.Commit(); err != nil {
		s.Discard()
		return "", err
	}
	return s.SHA256, nil
}
