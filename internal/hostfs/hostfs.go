// Package hostfs defines the narrow interface the core uses to reach the
// real operating system. Everything platform-specific, the actual
// open/read/write/stat/poll/clock system calls, lives behind this
// interface in linux.go / windows.go; the rest of the module never branches
// on runtime.GOOS.
package hostfs

import (
	"time"

	"github.com/dispatchrun/wasicore/wasi"
)

// Handle is an opaque, platform-specific reference to an open host file or
// directory. On Unix it wraps a file descriptor; on Windows, a HANDLE.
type Handle uintptr

// NoHandle is the zero value, never a valid open handle.
const NoHandle Handle = 0

// OpenFlags mirrors the subset of POSIX open(2) flags the core needs to
// pass down to HostFs, independent of wasi.Oflags/wasi.Fdflags encoding.
type OpenFlags uint32

const (
	O_RDONLY OpenFlags = 1 << iota
	O_WRONLY
	O_RDWR
	O_CREAT
	O_EXCL
	O_TRUNC
	O_APPEND
	O_DIRECTORY
	O_NOFOLLOW
	O_DSYNC
	O_SYNC
	O_NONBLOCK
)

func (f OpenFlags) Has(flags OpenFlags) bool { return (f & flags) == flags }

// Entry is one record produced by a DirCursor.
type Entry struct {
	Name string
	Ino  uint64
	Type wasi.Filetype
}

// DirCursor is a resumable, lazy iterator over a directory's contents,
// so the core never touches raw dirent buffers.
type DirCursor interface {
	// Next returns the next entry, or ok=false at end of directory.
	Next() (entry Entry, ok bool, err error)
	// Seek repositions the cursor to a previously observed cookie.
	Seek(cookie wasi.Dircookie) error
	// Tell returns the cookie that Seek would need to resume here.
	Tell() wasi.Dircookie
	Close() error
}

// PollEvents is a readiness bitmask, both requested (input) and observed
// (output) by HostFs.Poll.
type PollEvents uint8

const (
	PollReadable PollEvents = 1 << iota
	PollWritable
	PollHangup
)

// Has reports whether p carries every bit set in events.
func (p PollEvents) Has(events PollEvents) bool { return (p & events) == events }

// PollFd is one entry of a HostFs.Poll batch.
type PollFd struct {
	Handle Handle
	Events PollEvents // requested on input
}

// Times carries an optional atime/mtime pair for SetTimes; a zero Time with
// its companion Omit flag set leaves that timestamp untouched.
type Times struct {
	Atim     time.Time
	OmitAtim bool
	Mtim     time.Time
	OmitMtim bool
}

// HostFs is the adapter the core depends on. One implementation
// exists per platform (linux.go, windows.go); both are exercised only
// through this interface.
type HostFs interface {
	// OpenAt opens name relative to dir (or as an absolute/root path if dir
	// is NoHandle), creating it per flags/mode if requested.
	OpenAt(dir Handle, name string, flags OpenFlags, mode uint32) (Handle, error)

	// Dup clones a handle so the original and the clone close
	// independently; used to seed the path resolver's directory stack
	// without losing the caller's own descriptor.
	Dup(h Handle) (Handle, error)

	Close(h Handle) error

	ReadAt(h Handle, buf []byte, offset int64) (int, error)
	WriteAt(h Handle, buf []byte, offset int64) (int, error)
	Readv(h Handle, bufs [][]byte) (int, error)
	Writev(h Handle, bufs [][]byte) (int, error)

	Seek(h Handle, offset int64, whence int) (int64, error)
	Tell(h Handle) (int64, error)

	StatAt(dir Handle, name string, follow bool) (wasi.Filestat, error)
	Fstat(h Handle) (wasi.Filestat, error)

	OpenDirCursor(h Handle) (DirCursor, error)

	ReadlinkAt(dir Handle, name string, buf []byte) (int, error)
	SymlinkAt(dir Handle, name string, target string) error
	LinkAt(oldDir Handle, oldName string, newDir Handle, newName string, follow bool) error
	RenameAt(oldDir Handle, oldName string, newDir Handle, newName string) error
	UnlinkAt(dir Handle, name string, removeDir bool) error
	MkdirAt(dir Handle, name string, mode uint32) error

	SetTimes(h Handle, times Times) error
	// SetTimesAt applies times to name relative to dir without opening a
	// handle; with follow unset a symlink's own timestamps are changed
	// rather than its target's.
	SetTimesAt(dir Handle, name string, follow bool, times Times) error
	Truncate(h Handle, size int64) error
	Advise(h Handle, offset, length int64, advice wasi.Advice) error
	Allocate(h Handle, offset, length int64) error

	GetFdflags(h Handle) (wasi.Fdflags, error)
	SetFdflags(h Handle, flags wasi.Fdflags) error

	// FileTypeAndRights reports the natural file type and the maximal
	// rights a freshly opened handle supports, used to intersect against
	// the rights the guest requested.
	FileTypeAndRights(h Handle) (wasi.Filetype, wasi.Rights, wasi.Rights, error)

	// Poll blocks until at least one fd in fds is ready or timeout elapses
	// (negative means block indefinitely). A wait interrupted by a signal
	// is retried inside Poll, not returned to the caller. It returns the
	// observed events per entry of fds, in the same order.
	Poll(fds []PollFd, timeout time.Duration) ([]PollEvents, error)

	ClockNow(id wasi.ClockID) (int64, error)
	ClockRes(id wasi.ClockID) (int64, error)
}

// OpenHostDir opens an absolute host directory path for use as a preopen
// root. It is a convenience for embedders building a Ctx, not something the
// guest-facing dispatch path calls.
func OpenHostDir(fsys HostFs, path string) (Handle, error) {
	return fsys.OpenAt(NoHandle, path, O_RDONLY|O_DIRECTORY, 0)
}
