package registry

import (
	"sync"

	"github.com/bsc-ssrg/echofs-ng/internal/errs"
	"github.com/bsc-ssrg/echofs-ng/internal/residentfile"
	"github.com/bsc-ssrg/echofs-ng/internal/vfsiface"
)

// VFS adapts Registry to the vfsiface.Core surface consumed from FUSE
// (spec §6), tracking open handles by path.
type VFS struct {
	r *Registry

	mu      sync.Mutex
	handles map[vfsiface.Handle]*residentfile.File
}

var _ vfsiface.Core = (*VFS)(nil)

// NewVFS wraps r as a vfsiface.Core.
func NewVFS(r *Registry) *VFS {
	return &VFS{r: r, handles: make(map[vfsiface.Handle]*residentfile.File)}
}

func (v *VFS) Stat(path string) (vfsiface.Stat, error) {
	f, d, err := v.r.LookupStat(path)
	if err != nil {
		return vfsiface.Stat{}, err
	}
	if d != nil {
		return vfsiface.Stat{Mode: d.Mode, UID: d.UID, GID: d.GID, Nlink: d.Nlink, IsDir: true}, nil
	}
	attrs, size, _ := f.Attrs()
	return vfsiface.Stat{Mode: attrs.Mode, UID: attrs.UID, GID: attrs.GID, Nlink: 1, Size: size}, nil
}

func (v *VFS) Readdir(path string) ([]string, error) { return v.r.Readdir(path) }

func (v *VFS) Create(path string, mode uint32) error {
	_, err := v.r.Create(path, mode)
	return err
}

func (v *VFS) Unlink(path string) error               { return v.r.Unlink(path) }
func (v *VFS) Rename(oldPath, newPath string) error    { return v.r.Rename(oldPath, newPath) }
func (v *VFS) Mkdir(path string, mode uint32) error    { return v.r.Mkdir(path, mode) }
func (v *VFS) Rmdir(path string) error                 { return v.r.Rmdir(path) }
func (v *VFS) Chmod(path string, mode uint32) error    { return v.r.Chmod(path, mode) }
func (v *VFS) Chown(path string, uid, gid uint32) error { return v.r.Chown(path, uid, gid) }

func (v *VFS) Open(path string) (vfsiface.Handle, error) {
	f, d, err := v.r.LookupStat(path)
	if err != nil {
		return "", err
	}
	if d != nil {
		return "", errs.New(errs.InvalidArguments, "cannot open a directory")
	}
	v.mu.Lock()
	v.handles[path] = f
	v.mu.Unlock()
	return path, nil
}

func (v *VFS) fileFor(h vfsiface.Handle) (*residentfile.File, error) {
	v.mu.Lock()
	f, ok := v.handles[h]
	v.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.NoSuchPath, "").WithDetail("handle", h)
	}
	return f, nil
}

func (v *VFS) Read(h vfsiface.Handle, off int64, dst []byte) (int, error) {
	f, err := v.fileFor(h)
	if err != nil {
		return 0, err
	}
	return f.Read(off, dst)
}

func (v *VFS) Write(h vfsiface.Handle, off int64, src []byte) (int, error) {
	f, err := v.fileFor(h)
	if err != nil {
		return 0, err
	}
	return f.Write(off, src)
}

func (v *VFS) Truncate(path string, size int64) error {
	f, d, err := v.r.LookupStat(path)
	if err != nil {
		return err
	}
	if d != nil {
		return errs.New(errs.InvalidArguments, "cannot truncate a directory").WithDetail("path", path)
	}
	return f.Truncate(size)
}

func (v *VFS) Fallocate(h vfsiface.Handle, off, length int64) error {
	f, err := v.fileFor(h)
	if err != nil {
		return err
	}
	return f.Allocate(off, length)
}

func (v *VFS) Release(h vfsiface.Handle) error {
	v.mu.Lock()
	delete(v.handles, h)
	v.mu.Unlock()
	return nil
}
