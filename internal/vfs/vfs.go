// Package vfs implements the kernel's sandboxed virtual filesystem:
// every path is resolved against a single real root and confined to it.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrAccessDenied is returned whenever a resolved path would escape the
// configured real root.
var ErrAccessDenied = errors.New("access denied")

// ErrNotFound mirrors an ENOENT-equivalent failure.
var ErrNotFound = errors.New("not found")

var sharedMountName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FS is the sandboxed virtual filesystem rooted at RealRoot.
type FS struct {
	RealRoot string
}

// New builds an FS rooted at realRoot. realRoot is created if missing.
func New(realRoot string) (*FS, error) {
	abs, err := filepath.Abs(realRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("vfs: create root: %w", err)
	}
	return &FS{RealRoot: abs}, nil
}

// Resolve maps a posix-style virtual path to a real path under RealRoot,
// rejecting anything that would normalize outside of it. The virtual path
// is joined to RealRoot and cleaned in one step so a traversal attempt
// resolves against the real root (and gets caught by the prefix check)
// instead of being clamped to an in-root path by a leading-slash rewrite
// first.
func (fs *FS) Resolve(virtual string) (string, error) {
	real := filepath.Clean(filepath.Join(fs.RealRoot, filepath.FromSlash(virtual)))

	rootWithSep := fs.RealRoot
	if !strings.HasSuffix(rootWithSep, string(filepath.Separator)) {
		rootWithSep += string(filepath.Separator)
	}
	if real != fs.RealRoot && !strings.HasPrefix(real, rootWithSep) {
		return "", ErrAccessDenied
	}
	return real, nil
}

// Init ensures the standard top-level directories exist.
func (fs *FS) Init() error {
	for _, d := range []string{"/home", "/tmp", "/etc"} {
		if err := fs.Mkdir(d, true); err != nil {
			return err
		}
	}
	return nil
}

// CreateHome provisions the standard per-agent home layout.
func (fs *FS) CreateHome(uid string) error {
	home := "/home/" + uid
	for _, d := range []string{home, home + "/Desktop", home + "/Documents", home + "/Downloads", home + "/Projects", home + "/.config"} {
		if err := fs.Mkdir(d, true); err != nil {
			return err
		}
	}
	return fs.WriteFile(home+"/.profile", []byte("# aether agent profile\n"))
}

// ReadFile returns the file contents as text plus its size.
func (fs *FS) ReadFile(virtual string) (string, int64, error) {
	b, err := fs.ReadFileRaw(virtual)
	if err != nil {
		return "", 0, err
	}
	return string(b), int64(len(b)), nil
}

// ReadFileRaw returns the raw file bytes.
func (fs *FS) ReadFileRaw(virtual string) ([]byte, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(real)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// RangeReader is a byte-range stream suitable for HTTP Range requests.
type RangeReader struct {
	io.ReadCloser
	Size int64
}

// CreateReadStream opens a byte-range view of a file, [start, end) with
// end<0 meaning "to EOF".
func (fs *FS) CreateReadStream(virtual string, start, end int64) (*RangeReader, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(real)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	size := info.Size() - start
	if end >= 0 && end-start < size {
		size = end - start
		return &RangeReader{ReadCloser: limitedReadCloser{io.LimitReader(f, size), f}, Size: size}, nil
	}
	return &RangeReader{ReadCloser: f, Size: size}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// WriteFile writes contents, creating parent directories as needed.
func (fs *FS) WriteFile(virtual string, data []byte) error {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return err
	}
	return os.WriteFile(real, data, 0o644)
}

// Mkdir creates a directory, optionally recursively.
func (fs *FS) Mkdir(virtual string, recursive bool) error {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return err
	}
	if recursive {
		return os.MkdirAll(real, 0o755)
	}
	return os.Mkdir(real, 0o755)
}

// Rm removes a file or, if recursive, a directory tree.
func (fs *FS) Rm(virtual string, recursive bool) error {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return err
	}
	if recursive {
		return os.RemoveAll(real)
	}
	err = os.Remove(real)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Mv renames/moves a file or directory.
func (fs *FS) Mv(srcVirtual, dstVirtual string) error {
	src, err := fs.Resolve(srcVirtual)
	if err != nil {
		return err
	}
	dst, err := fs.Resolve(dstVirtual)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// Cp copies a file.
func (fs *FS) Cp(srcVirtual, dstVirtual string) error {
	data, err := fs.ReadFileRaw(srcVirtual)
	if err != nil {
		return err
	}
	return fs.WriteFile(dstVirtual, data)
}

// Entry is one directory listing row.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
	Hidden bool  `json:"hidden"`
}

// Ls lists a directory, directories before files, each group alphabetical.
func (fs *FS) Ls(virtual string) ([]Entry, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(real)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var dirs, files []Entry
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		e := Entry{
			Name:   de.Name(),
			IsDir:  de.IsDir(),
			Size:   info.Size(),
			Hidden: strings.HasPrefix(de.Name(), "."),
		}
		if e.IsDir {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(dirs, files...), nil
}

// Stat returns metadata for one path.
func (fs *FS) Stat(virtual string) (Entry, error) {
	real, err := fs.Resolve(virtual)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(real)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	name := filepath.Base(real)
	return Entry{Name: name, IsDir: info.IsDir(), Size: info.Size(), Hidden: strings.HasPrefix(name, ".")}, nil
}

// CreateSharedMount provisions /shared/<name> after validating the name.
func (fs *FS) CreateSharedMount(name string) error {
	if !sharedMountName.MatchString(name) {
		return fmt.Errorf("vfs: invalid shared mount name %q: %w", name, ErrAccessDenied)
	}
	return fs.Mkdir("/shared/"+name, true)
}

// MountShared symlinks a shared directory into an agent's home.
func (fs *FS) MountShared(uid, name string) error {
	if !sharedMountName.MatchString(name) {
		return fmt.Errorf("vfs: invalid shared mount name %q: %w", name, ErrAccessDenied)
	}
	sharedReal, err := fs.Resolve("/shared/" + name)
	if err != nil {
		return err
	}
	linkReal, err := fs.Resolve("/home/" + uid + "/" + name)
	if err != nil {
		return err
	}
	return os.Symlink(sharedReal, linkReal)
}

// UnmountShared removes the symlink created by MountShared.
func (fs *FS) UnmountShared(uid, name string) error {
	linkReal, err := fs.Resolve("/home/" + uid + "/" + name)
	if err != nil {
		return err
	}
	err = os.Remove(linkReal)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DiskUsage walks the whole root and totals file sizes, for /system/status.
func (fs *FS) DiskUsage() (int64, error) {
	var total int64
	err := filepath.Walk(fs.RealRoot, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
