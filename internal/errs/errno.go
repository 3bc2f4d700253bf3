package errs

import "syscall"

// errnoTable maps each resource-exhaustion / not-found taxonomy code onto
// the POSIX errno a FUSE layer would surface to the calling application
// (spec §7). Codes with no natural errno equivalent (e.g. no_such_task)
// map to EIO as a safe default; the pending and in-progress task states
// map to EAGAIN.
var errnoTable = map[Code]syscall.Errno{
	Success:           0,
	InternalError:     syscall.EIO,
	InvalidArguments:  syscall.EINVAL,
	BadRequest:        syscall.EINVAL,
	NoSuchTask:        syscall.EIO,
	TaskPending:       syscall.EAGAIN,
	TaskInProgress:    syscall.EAGAIN,
	NoSuchPath:        syscall.ENOENT,
	PathAlreadyExists: syscall.EEXIST,
	PoolFull:          syscall.ENOSPC,
}

// ToErrno maps a taxonomy code onto the errno a VFS binding should
// surface to the kernel. It is a pure function; no FUSE binding lives in
// this repository to call it at runtime.
func ToErrno(code Code) syscall.Errno {
	if errno, ok := errnoTable[code]; ok {
		return errno
	}
	return syscall.EIO
}
