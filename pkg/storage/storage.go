// Package storage is the local I/O boundary of the mirror.
//
// A [Store] wraps a go-billy filesystem rooted at the mirror directory (or
// the temporary directory used for index payloads). Artifacts live under
// gems/; everything else is addressed by slash-separated relative paths.
//
// Writes are atomic: data is streamed into a hidden temporary file next to
// the destination and renamed into place only after it was written in full,
// so an interrupted transfer never shows up in [Store.List].
package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/matzehuels/gemmirror/pkg/errors"
	"github.com/matzehuels/gemmirror/pkg/index"
)

// GemsDir is the directory, relative to the mirror root, holding artifacts.
const GemsDir = "gems"

const (
	dirPerm  = 0o755
	filePerm = 0o644
	partTag  = ".part-"
)

// Store performs file I/O on a filesystem root.
//
// All methods are safe for concurrent use as long as concurrent calls
// target different paths, which the mirror guarantees within a cycle.
type Store struct {
	fs billy.Filesystem
}

// New wraps an existing filesystem.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// NewOS returns a store rooted at dir on the local disk.
func NewOS(dir string) *Store {
	return New(osfs.New(dir))
}

// NewMemory returns an in-memory store, mostly useful in tests.
func NewMemory() *Store {
	return New(memfs.New())
}

// Root returns the root of the underlying filesystem.
func (s *Store) Root() string { return s.fs.Root() }

// FS returns the underlying filesystem.
func (s *Store) FS() billy.Filesystem { return s.fs }

// GemPath returns the path of an artifact relative to the root.
func GemPath(name string) string {
	return index.JoinPath(GemsDir, name)
}

// Init creates the artifact directory.
func (s *Store) Init() error {
	if err := s.fs.MkdirAll(GemsDir, dirPerm); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create %s", GemsDir)
	}
	return nil
}

// List returns the artifacts currently present. A missing artifact
// directory is an empty inventory.
func (s *Store) List() (index.Set, error) {
	infos, err := s.fs.ReadDir(GemsDir)
	if os.IsNotExist(err) {
		return index.NewSet(), nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list %s", GemsDir)
	}

	set := make(index.Set, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if !fi.Mode().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, index.Extension) {
			continue
		}
		set.Add(name)
	}
	return set, nil
}

// Write atomically stores the contents of r at p.
func (s *Store) Write(p string, r io.Reader) (err error) {
	if err := errors.ValidatePath(p); err != nil {
		return err
	}
	dir, base := path.Split(p)
	if dir != "" {
		if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
			return errors.Wrap(errors.ErrCodeStorage, err, "create %s", dir)
		}
	}

	tmp := index.JoinPath(dir, "."+base+partTag+uuid.NewString())
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create %s", tmp)
	}
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmp)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "close %s", tmp)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "rename %s", p)
	}
	return nil
}

// WriteFile atomically stores data at p.
func (s *Store) WriteFile(p string, data []byte) error {
	return s.Write(p, bytes.NewReader(data))
}

// Open opens p for reading.
func (s *Store) Open(p string) (billy.File, error) {
	if err := errors.ValidatePath(p); err != nil {
		return nil, err
	}
	return s.fs.Open(p)
}

// Exists reports whether p exists.
func (s *Store) Exists(p string) (bool, error) {
	_, err := s.fs.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrap(errors.ErrCodeStorage, err, "stat %s", p)
	}
}

// Delete removes an artifact. Removing an artifact that is already gone
// succeeds.
func (s *Store) Delete(name string) error {
	if err := errors.ValidateArtifactName(name); err != nil {
		return err
	}
	return s.Remove(GemPath(name))
}

// Remove deletes the file at p. A missing file is not an error.
func (s *Store) Remove(p string) error {
	if err := errors.ValidatePath(p); err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeStorage, err, "remove %s", p)
	}
	return nil
}

// RemoveAll deletes p and everything below it.
func (s *Store) RemoveAll(p string) error {
	if err := errors.ValidatePath(p); err != nil {
		return err
	}
	if err := util.RemoveAll(s.fs, p); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "remove %s", p)
	}
	return nil
}

// Copy duplicates src from s into dst at p.
func (s *Store) Copy(dst *Store, src, p string) error {
	f, err := s.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "open %s", src)
	}
	defer f.Close()
	return dst.Write(p, f)
}
