// Package vfsiface defines the VFS surface the core exposes for a FUSE
// binding to consume (spec §6), without depending on any FUSE library
// itself — no FUSE binding appears anywhere in this module's example
// pack, so this stays a plain Go interface that internal/registry
// satisfies, leaving the actual mount plumbing as a Non-goal.
package vfsiface

// Handle identifies an open file for read/write/fallocate/release.
type Handle = string

// Stat mirrors the POSIX attribute subset the core tracks.
type Stat struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32
	Size  int64
	IsDir bool
}

// Core is the operation surface consumed from FUSE (spec §6).
type Core interface {
	Stat(path string) (Stat, error)
	Readdir(path string) ([]string, error)
	Create(path string, mode uint32) error
	Unlink(path string) error
	Rename(oldPath, newPath string) error
	Mkdir(path string, mode uint32) error
	Rmdir(path string) error
	Chmod(path string, mode uint32) error
	Chown(path string, uid, gid uint32) error

	Open(path string) (Handle, error)
	Read(h Handle, off int64, dst []byte) (int, error)
	Write(h Handle, off int64, src []byte) (int, error)
	Truncate(path string, size int64) error
	Fallocate(h Handle, off, length int64) error
	Release(h Handle) error
}
