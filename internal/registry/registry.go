// Package registry implements the backend registry (spec §4.6): two
// pathname-keyed maps (files, directories) over one shared PMEM pool,
// with the lock-ordering and bulk load/unload discipline of §4.6/§5.
// Grounded on internal/broker.Broker's connection/shutdown shape and
// internal/retention.RetentionCleaner's worker registration pattern,
// generalized from "list of partitions" to "map of resident files."
package registry

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
	"github.com/bsc-ssrg/echofs-ng/internal/pmempool"
	"github.com/bsc-ssrg/echofs-ng/internal/residentfile"
	"github.com/bsc-ssrg/echofs-ng/internal/task"
)

// DirEntry is the in-memory directory record (spec §4.6): nlink is
// always 2 plus the number of immediate subdirectories.
type DirEntry struct {
	Path  string
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32
	Mtime time.Time
	Ctime time.Time
}

// Registry owns the files and directories namespaces plus the shared
// pool they allocate from. The two maps are guarded independently; the
// lock order is always file mutex before directory mutex (spec §5.1).
type Registry struct {
	pool *pmempool.Pool

	filesMu sync.RWMutex
	files   map[string]*residentfile.File

	dirsMu sync.RWMutex
	dirs   map[string]*DirEntry

	workers *task.Pool
}

// New returns an empty registry backed by pool, with a bulk load/unload
// worker pool of the given size (spec §5, default 8).
func New(pool *pmempool.Pool, workers int) *Registry {
	r := &Registry{
		pool:    pool,
		files:   make(map[string]*residentfile.File),
		dirs:    make(map[string]*DirEntry),
		workers: task.NewPool(workers),
	}
	r.dirs["/"] = &DirEntry{Path: "/", Mode: 0755, Nlink: 2, Mtime: time.Now(), Ctime: time.Now()}
	return r
}

// Stop drains the bulk worker pool.
func (r *Registry) Stop() { r.workers.Stop() }

// LookupStat returns the resident file or directory record for path.
func (r *Registry) LookupStat(p string) (file *residentfile.File, dir *DirEntry, err error) {
	r.filesMu.RLock()
	f, ok := r.files[p]
	r.filesMu.RUnlock()
	if ok {
		return f, nil, nil
	}

	r.dirsMu.RLock()
	d, ok := r.dirs[p]
	r.dirsMu.RUnlock()
	if ok {
		return nil, d, nil
	}
	return nil, nil, errs.New(errs.NoSuchPath, "").WithDetail("path", p)
}

// Readdir lists the immediate children of dirPath.
func (r *Registry) Readdir(dirPath string) ([]string, error) {
	r.dirsMu.RLock()
	if _, ok := r.dirs[dirPath]; !ok {
		r.dirsMu.RUnlock()
		return nil, errs.New(errs.NoSuchPath, "").WithDetail("path", dirPath)
	}
	var names []string
	for p := range r.dirs {
		if p != dirPath && path.Dir(p) == path.Clean(dirPath) {
			names = append(names, path.Base(p))
		}
	}
	r.dirsMu.RUnlock()

	r.filesMu.RLock()
	for p := range r.files {
		if path.Dir(p) == path.Clean(dirPath) {
			names = append(names, path.Base(p))
		}
	}
	r.filesMu.RUnlock()

	sort.Strings(names)
	return names, nil
}

// Create adds a new empty resident file at p (spec §4.6 create).
func (r *Registry) Create(p string, mode uint32) (*residentfile.File, error) {
	r.filesMu.Lock()
	defer r.filesMu.Unlock()
	if _, exists := r.files[p]; exists {
		return nil, errs.New(errs.PathAlreadyExists, "").WithDetail("path", p)
	}

	f := residentfile.New(p, residentfile.Persistent, r.pool)
	r.files[p] = f

	parent := path.Dir(p)
	r.dirsMu.Lock()
	if d, ok := r.dirs[parent]; ok {
		d.Mtime = time.Now()
		d.Ctime = d.Mtime
	}
	r.dirsMu.Unlock()

	return f, nil
}

// Unlink removes a file entry and updates the parent directory's
// mtime/ctime (spec §4.6: file mutex is taken before the directory
// mutex). Files do not count towards a directory's nlink (see DirEntry).
func (r *Registry) Unlink(p string) error {
	r.filesMu.Lock()
	if _, ok := r.files[p]; !ok {
		r.filesMu.Unlock()
		return errs.New(errs.NoSuchPath, "").WithDetail("path", p)
	}
	delete(r.files, p)
	r.filesMu.Unlock()

	parent := path.Dir(p)
	r.dirsMu.Lock()
	if d, ok := r.dirs[parent]; ok {
		d.Mtime = time.Now()
		d.Ctime = d.Mtime
	}
	r.dirsMu.Unlock()
	return nil
}

// Mkdir creates an empty directory record and bumps the parent's nlink,
// which counts the parent's subdirectories (see DirEntry).
func (r *Registry) Mkdir(p string, mode uint32) error {
	r.dirsMu.Lock()
	defer r.dirsMu.Unlock()
	if _, exists := r.dirs[p]; exists {
		return errs.New(errs.PathAlreadyExists, "").WithDetail("path", p)
	}
	now := time.Now()
	r.dirs[p] = &DirEntry{Path: p, Mode: mode, Nlink: 2, Mtime: now, Ctime: now}

	if parent, ok := r.dirs[path.Dir(p)]; ok {
		parent.Nlink++
		parent.Mtime = now
		parent.Ctime = now
	}
	return nil
}

// Rmdir removes an empty directory record and decrements the parent's
// nlink.
func (r *Registry) Rmdir(p string) error {
	r.dirsMu.Lock()
	defer r.dirsMu.Unlock()
	if _, ok := r.dirs[p]; !ok {
		return errs.New(errs.NoSuchPath, "").WithDetail("path", p)
	}
	delete(r.dirs, p)
	if parent, ok := r.dirs[path.Dir(p)]; ok {
		parent.Nlink--
		now := time.Now()
		parent.Mtime = now
		parent.Ctime = now
	}
	return nil
}

// Rename moves an entry from old to new, following one of two code
// paths depending on whether it names a file or a directory record
// (spec §4.6). Both the file and directory maps are locked for the
// duration.
func (r *Registry) Rename(oldPath, newPath string) error {
	r.filesMu.Lock()
	defer r.filesMu.Unlock()
	r.dirsMu.Lock()
	defer r.dirsMu.Unlock()

	if f, ok := r.files[oldPath]; ok {
		delete(r.files, oldPath)
		r.files[newPath] = f
		return nil
	}
	if d, ok := r.dirs[oldPath]; ok {
		delete(r.dirs, oldPath)
		d.Path = newPath
		now := time.Now()
		d.Mtime = now
		d.Ctime = now
		r.dirs[newPath] = d
		return nil
	}
	return errs.New(errs.NoSuchPath, "").WithDetail("path", oldPath)
}

// Chmod updates a file's in-memory mode (spec §4.5: "persisted via the
// writeback step, not separately").
func (r *Registry) Chmod(p string, mode uint32) error {
	f, d, err := r.LookupStat(p)
	if err != nil {
		return err
	}
	if f != nil {
		f.SetMode(mode)
		return nil
	}
	r.dirsMu.Lock()
	d.Mode = mode
	d.Ctime = time.Now()
	r.dirsMu.Unlock()
	return nil
}

// Chown updates a file or directory's owner.
func (r *Registry) Chown(p string, uid, gid uint32) error {
	f, d, err := r.LookupStat(p)
	if err != nil {
		return err
	}
	if f != nil {
		f.SetOwner(uid, gid)
		return nil
	}
	r.dirsMu.Lock()
	d.UID, d.GID = uid, gid
	d.Ctime = time.Now()
	r.dirsMu.Unlock()
	return nil
}

// Load stages every regular file under backing directory srcDir into
// the registry as a resident file, using the worker pool for
// parallelism (spec §4.6: "load(dir) is recursive over the backing
// store and produces one resident file per real file; parent directory
// records are created lazily").
func (r *Registry) Load(srcDir string, tr *task.Tracker) (uint32, error) {
	id := tr.New()
	r.workers.Submit(func() {
		tr.Start(id)
		err := r.loadRecursive(srcDir, srcDir)
		tr.Finish(id, err)
	})
	return id, nil
}

func (r *Registry) loadRecursive(root, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.Wrap(errs.InternalError, err)
	}
	for _, e := range entries {
		full := path.Join(dir, e.Name())
		virtual := "/" + trimPrefix(full, root)
		if e.IsDir() {
			if err := r.Mkdir(virtual, 0755); err != nil && !errs.Is(err, errs.PathAlreadyExists) {
				return err
			}
			if err := r.loadRecursive(root, full); err != nil {
				return err
			}
			continue
		}

		f, err := os.Open(full)
		if err != nil {
			return errs.Wrap(errs.InternalError, err)
		}
		rf, err := r.Create(virtual, 0644)
		if err != nil {
			f.Close()
			return err
		}
		var off int64
		_, copyErr := io.Copy(writerFunc(func(b []byte) (int, error) {
			n, werr := rf.Write(off, b)
			off += int64(n)
			return n, werr
		}), f)
		f.Close()
		if copyErr != nil {
			return errs.Wrap(errs.InternalError, copyErr)
		}
	}
	return nil
}

type writerFunc func([]byte) (int, error)

func (w writerFunc) Write(b []byte) (int, error) { return w(b) }

func trimPrefix(full, root string) string {
	if len(full) >= len(root) && full[:len(root)] == root {
		rest := full[len(root):]
		for len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}
		return rest
	}
	return full
}

// Unload writes back every resident file under dirPath to dstDir and
// removes it from the registry, using the worker pool (spec §4.6 bulk
// unload).
func (r *Registry) Unload(dirPath, dstDir string, tr *task.Tracker) (uint32, error) {
	id := tr.New()
	r.workers.Submit(func() {
		tr.Start(id)
		err := r.unloadRecursive(dirPath, dstDir)
		tr.Finish(id, err)
	})
	return id, nil
}

func (r *Registry) unloadRecursive(dirPath, dstDir string) error {
	prefix := path.Clean(dirPath)
	if prefix != "/" {
		prefix += "/"
	}
	r.filesMu.RLock()
	var paths []string
	for p := range r.files {
		if p == dirPath || (len(p) > len(prefix) && p[:len(prefix)] == prefix) {
			paths = append(paths, p)
		}
	}
	r.filesMu.RUnlock()

	for _, p := range paths {
		r.filesMu.RLock()
		f := r.files[p]
		r.filesMu.RUnlock()
		if f == nil {
			continue
		}
		if f.Kind == residentfile.Temporary {
			return errs.New(errs.InvalidArguments, "temporary files cannot be written back").WithDetail("path", p)
		}

		dst := path.Join(dstDir, p)
		if err := os.MkdirAll(path.Dir(dst), 0755); err != nil {
			return errs.Wrap(errs.InternalError, err)
		}

		// Writeback goes through a temp-file-then-rename so a crash or
		// error mid-unload never leaves a partially written backing
		// file in place (spec §4.5 unload is all-or-nothing from the
		// backing store's point of view). CloseWithError propagates a
		// mid-stream Unload failure to the pipe's reader side, so
		// atomic.WriteFile sees a read error instead of a clean EOF and
		// never renames a truncated temp file into place.
		pr, pw := io.Pipe()
		unloadErr := make(chan error, 1)
		go func() {
			err := f.Unload(pw)
			if err != nil {
				pw.CloseWithError(err)
			} else {
				pw.Close()
			}
			unloadErr <- err
		}()
		writeErr := atomic.WriteFile(dst, pr)
		if err := <-unloadErr; err != nil {
			return err
		}
		if writeErr != nil {
			return errs.Wrap(errs.InternalError, writeErr)
		}
		if err := r.Unlink(p); err != nil {
			return err
		}
	}
	return nil
}
