//go:build linux

package hostfs

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dispatchrun/wasicore/wasi"
)

// NewLinux returns the HostFs adapter backed by real Linux system calls. All
// directory-relative operations use the "*at" family (openat, fstatat,
// readlinkat, ...) so that each path component can be opened relative to a
// previously opened directory handle rather than by joining strings, the
// property the sandboxed path resolver depends on.
func NewLinux() HostFs { return unixFs{} }

type unixFs struct{}

func (unixFs) OpenAt(dir Handle, name string, flags OpenFlags, mode uint32) (Handle, error) {
	sysFlags, err := openFlagsToUnix(flags)
	if err != nil {
		return NoHandle, err
	}
	var fd int
	if dir == NoHandle {
		fd, err = unix.Open(name, sysFlags, mode)
	} else {
		fd, err = unix.Openat(int(dir), name, sysFlags, mode)
	}
	if err != nil {
		return NoHandle, err
	}
	unix.CloseOnExec(fd)
	return Handle(fd), nil
}

func openFlagsToUnix(flags OpenFlags) (int, error) {
	sysFlags := unix.O_CLOEXEC
	switch {
	case flags.Has(O_RDWR):
		sysFlags |= unix.O_RDWR
	case flags.Has(O_WRONLY):
		sysFlags |= unix.O_WRONLY
	default:
		sysFlags |= unix.O_RDONLY
	}
	if flags.Has(O_CREAT) {
		sysFlags |= unix.O_CREAT
	}
	if flags.Has(O_EXCL) {
		sysFlags |= unix.O_EXCL
	}
	if flags.Has(O_TRUNC) {
		sysFlags |= unix.O_TRUNC
	}
	if flags.Has(O_APPEND) {
		sysFlags |= unix.O_APPEND
	}
	if flags.Has(O_DIRECTORY) {
		sysFlags |= unix.O_DIRECTORY
	}
	if flags.Has(O_NOFOLLOW) {
		sysFlags |= unix.O_NOFOLLOW
	}
	if flags.Has(O_DSYNC) {
		sysFlags |= unix.O_DSYNC
	}
	if flags.Has(O_SYNC) {
		sysFlags |= unix.O_SYNC
	}
	if flags.Has(O_NONBLOCK) {
		sysFlags |= unix.O_NONBLOCK
	}
	return sysFlags, nil
}

func (unixFs) Dup(h Handle) (Handle, error) {
	fd, err := unix.Dup(int(h))
	if err != nil {
		return NoHandle, err
	}
	unix.CloseOnExec(fd)
	return Handle(fd), nil
}

func (unixFs) Close(h Handle) error {
	return ignoringEINTR(func() error { return unix.Close(int(h)) })
}

func (unixFs) ReadAt(h Handle, buf []byte, offset int64) (int, error) {
	return unix.Pread(int(h), buf, offset)
}

func (unixFs) WriteAt(h Handle, buf []byte, offset int64) (int, error) {
	return unix.Pwrite(int(h), buf, offset)
}

func (unixFs) Readv(h Handle, bufs [][]byte) (int, error) {
	n, err := unix.Readv(int(h), bufs)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (unixFs) Writev(h Handle, bufs [][]byte) (int, error) {
	n, err := unix.Writev(int(h), bufs)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (unixFs) Seek(h Handle, offset int64, whence int) (int64, error) {
	return unix.Seek(int(h), offset, whence)
}

func (unixFs) Tell(h Handle) (int64, error) {
	return unix.Seek(int(h), 0, io.SeekCurrent)
}

func (unixFs) StatAt(dir Handle, name string, follow bool) (wasi.Filestat, error) {
	var st unix.Stat_t
	flags := unix.AT_SYMLINK_NOFOLLOW
	if follow {
		flags = 0
	}
	fd := unix.AT_FDCWD
	if dir != NoHandle {
		fd = int(dir)
	}
	if err := unix.Fstatat(fd, name, &st, flags); err != nil {
		return wasi.Filestat{}, err
	}
	return statToFilestat(&st), nil
}

func (unixFs) Fstat(h Handle) (wasi.Filestat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(h), &st); err != nil {
		return wasi.Filestat{}, err
	}
	return statToFilestat(&st), nil
}

func statToFilestat(st *unix.Stat_t) wasi.Filestat {
	return wasi.Filestat{
		Dev:      wasi.Device(st.Dev),
		Ino:      wasi.Inode(st.Ino),
		Filetype: filetypeFromMode(uint32(st.Mode)),
		Nlink:    wasi.Linkcount(st.Nlink),
		Size:     wasi.Filesize(st.Size),
		Atim:     wasi.Timestamp(unix.TimespecToNsec(st.Atim)),
		Mtim:     wasi.Timestamp(unix.TimespecToNsec(st.Mtim)),
		Ctim:     wasi.Timestamp(unix.TimespecToNsec(st.Ctim)),
	}
}

func filetypeFromMode(mode uint32) wasi.Filetype {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return wasi.RegularFile
	case unix.S_IFDIR:
		return wasi.Directory
	case unix.S_IFLNK:
		return wasi.SymbolicLink
	case unix.S_IFCHR:
		return wasi.CharacterDevice
	case unix.S_IFBLK:
		return wasi.BlockDevice
	case unix.S_IFSOCK:
		return wasi.SocketStream
	default:
		return wasi.Unknown
	}
}

func (unixFs) OpenDirCursor(h Handle) (DirCursor, error) {
	dup, err := unix.Dup(int(h))
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(dup)
	// The dup shares its directory offset with h; rewind so every cursor
	// starts at the first entry regardless of what earlier cursors read.
	if _, err := unix.Seek(dup, 0, io.SeekStart); err != nil {
		unix.Close(dup)
		return nil, err
	}
	f := os.NewFile(uintptr(dup), "")
	return &unixDirCursor{f: f}, nil
}

// unixDirCursor buffers entries from *os.File.ReadDir and exposes them
// through a monotonically increasing Dircookie, restartable by Seek.
type unixDirCursor struct {
	f       *os.File
	entries []os.DirEntry
	cookie  wasi.Dircookie
	atEOF   bool
}

func (c *unixDirCursor) fill() error {
	if len(c.entries) > 0 || c.atEOF {
		return nil
	}
	ents, err := c.f.ReadDir(64)
	if len(ents) > 0 {
		c.entries = ents
		return nil
	}
	if err == io.EOF || err == nil {
		c.atEOF = true
		return nil
	}
	return err
}

func (c *unixDirCursor) Next() (Entry, bool, error) {
	if err := c.fill(); err != nil {
		return Entry{}, false, err
	}
	if len(c.entries) == 0 {
		return Entry{}, false, nil
	}
	d := c.entries[0]
	c.entries = c.entries[1:]
	c.cookie++
	typ := wasi.RegularFile
	switch {
	case d.IsDir():
		typ = wasi.Directory
	case d.Type()&os.ModeSymlink != 0:
		typ = wasi.SymbolicLink
	case d.Type()&os.ModeCharDevice != 0:
		typ = wasi.CharacterDevice
	case d.Type()&os.ModeDevice != 0:
		typ = wasi.BlockDevice
	}
	var ino uint64
	if info, err := d.Info(); err == nil {
		if st, ok := info.Sys().(*unix.Stat_t); ok {
			ino = st.Ino
		}
	}
	return Entry{Name: d.Name(), Ino: ino, Type: typ}, true, nil
}

func (c *unixDirCursor) Seek(cookie wasi.Dircookie) error {
	if cookie == c.cookie {
		return nil
	}
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	c.entries = nil
	c.atEOF = false
	c.cookie = 0
	for c.cookie < cookie {
		if _, ok, err := c.Next(); err != nil {
			return err
		} else if !ok {
			break
		}
	}
	return nil
}

func (c *unixDirCursor) Tell() wasi.Dircookie { return c.cookie }

func (c *unixDirCursor) Close() error { return c.f.Close() }

func (unixFs) ReadlinkAt(dir Handle, name string, buf []byte) (int, error) {
	if dir == NoHandle {
		return unix.Readlink(name, buf)
	}
	return unix.Readlinkat(int(dir), name, buf)
}

func (unixFs) SymlinkAt(dir Handle, name string, target string) error {
	if dir == NoHandle {
		return unix.Symlink(target, name)
	}
	return unix.Symlinkat(target, int(dir), name)
}

func (unixFs) LinkAt(oldDir Handle, oldName string, newDir Handle, newName string, follow bool) error {
	flags := 0
	if follow {
		flags = unix.AT_SYMLINK_FOLLOW
	}
	return unix.Linkat(int(oldDir), oldName, int(newDir), newName, flags)
}

func (unixFs) RenameAt(oldDir Handle, oldName string, newDir Handle, newName string) error {
	return unix.Renameat(int(oldDir), oldName, int(newDir), newName)
}

func (unixFs) UnlinkAt(dir Handle, name string, removeDir bool) error {
	flags := 0
	if removeDir {
		flags = unix.AT_REMOVEDIR
	}
	return unix.Unlinkat(int(dir), name, flags)
}

func (unixFs) MkdirAt(dir Handle, name string, mode uint32) error {
	return unix.Mkdirat(int(dir), name, mode)
}

func (unixFs) SetTimes(h Handle, times Times) error {
	ts := []unix.Timespec{
		timeToTimespec(times.Atim, times.OmitAtim),
		timeToTimespec(times.Mtim, times.OmitMtim),
	}
	// There is no futimens(2) wrapper that takes a bare fd portably; route
	// through /proc/self/fd the way containerd/moby's own filesystem layers
	// do when they only hold a descriptor, not the original path.
	return unix.UtimesNanoAt(unix.AT_FDCWD, fmt.Sprintf("/proc/self/fd/%d", int(h)), ts, 0)
}

func (unixFs) SetTimesAt(dir Handle, name string, follow bool, times Times) error {
	ts := []unix.Timespec{
		timeToTimespec(times.Atim, times.OmitAtim),
		timeToTimespec(times.Mtim, times.OmitMtim),
	}
	flags := unix.AT_SYMLINK_NOFOLLOW
	if follow {
		flags = 0
	}
	fd := unix.AT_FDCWD
	if dir != NoHandle {
		fd = int(dir)
	}
	return unix.UtimesNanoAt(fd, name, ts, flags)
}

func timeToTimespec(t time.Time, omit bool) unix.Timespec {
	if omit {
		return unix.Timespec{Nsec: unix.UTIME_OMIT}
	}
	return unix.NsecToTimespec(t.UnixNano())
}

func (unixFs) Truncate(h Handle, size int64) error {
	return unix.Ftruncate(int(h), size)
}

func (unixFs) Advise(h Handle, offset, length int64, advice wasi.Advice) error {
	if advice > wasi.AdviceNoReuse {
		return unix.EINVAL
	}
	return unix.Fadvise(int(h), offset, length, adviceToLinux(advice))
}

func adviceToLinux(advice wasi.Advice) int {
	switch advice {
	case wasi.AdviceSequential:
		return unix.FADV_SEQUENTIAL
	case wasi.AdviceRandom:
		return unix.FADV_RANDOM
	case wasi.AdviceWillNeed:
		return unix.FADV_WILLNEED
	case wasi.AdviceDontNeed:
		return unix.FADV_DONTNEED
	case wasi.AdviceNoReuse:
		return unix.FADV_NOREUSE
	default:
		return unix.FADV_NORMAL
	}
}

func (unixFs) Allocate(h Handle, offset, length int64) error {
	return unix.Fallocate(int(h), 0, offset, length)
}

func (unixFs) GetFdflags(h Handle) (wasi.Fdflags, error) {
	fl, err := unix.FcntlInt(uintptr(h), unix.F_GETFL, 0)
	if err != nil {
		return 0, err
	}
	var flags wasi.Fdflags
	if fl&unix.O_APPEND != 0 {
		flags |= wasi.F_APPEND
	}
	if fl&unix.O_NONBLOCK != 0 {
		flags |= wasi.F_NONBLOCK
	}
	if fl&unix.O_SYNC != 0 {
		flags |= wasi.F_SYNC
	}
	return flags, nil
}

func (unixFs) SetFdflags(h Handle, flags wasi.Fdflags) error {
	fl, err := unix.FcntlInt(uintptr(h), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	if flags.Has(wasi.F_APPEND) {
		fl |= unix.O_APPEND
	} else {
		fl &^= unix.O_APPEND
	}
	if flags.Has(wasi.F_NONBLOCK) {
		fl |= unix.O_NONBLOCK
	} else {
		fl &^= unix.O_NONBLOCK
	}
	_, err = unix.FcntlInt(uintptr(h), unix.F_SETFL, fl)
	return err
}

func (f unixFs) FileTypeAndRights(h Handle) (wasi.Filetype, wasi.Rights, wasi.Rights, error) {
	st, err := f.Fstat(h)
	if err != nil {
		return wasi.Unknown, 0, 0, err
	}
	switch st.Filetype {
	case wasi.Directory:
		const dirBase = wasi.FD_FDSTAT_SET_FLAGS | wasi.FD_FILESTAT_GET | wasi.FD_READDIR |
			wasi.PATH_CREATE_DIRECTORY | wasi.PATH_CREATE_FILE | wasi.PATH_LINK_SOURCE |
			wasi.PATH_LINK_TARGET | wasi.PATH_OPEN | wasi.PATH_READLINK | wasi.PATH_RENAME_SOURCE |
			wasi.PATH_RENAME_TARGET | wasi.PATH_FILESTAT_GET | wasi.PATH_FILESTAT_SET_SIZE |
			wasi.PATH_FILESTAT_SET_TIMES | wasi.PATH_SYMLINK | wasi.PATH_REMOVE_DIRECTORY |
			wasi.PATH_UNLINK_FILE | wasi.FD_FILESTAT_SET_TIMES
		return st.Filetype, dirBase, wasi.AllRights, nil
	case wasi.CharacterDevice:
		const ttyBase = wasi.FD_READ | wasi.FD_WRITE | wasi.FD_FDSTAT_SET_FLAGS |
			wasi.FD_FILESTAT_GET | wasi.POLL_FD_READWRITE
		return st.Filetype, ttyBase, 0, nil
	default:
		const fileBase = wasi.FD_DATASYNC | wasi.FD_READ | wasi.FD_SEEK | wasi.FD_FDSTAT_SET_FLAGS |
			wasi.FD_SYNC | wasi.FD_TELL | wasi.FD_WRITE | wasi.FD_ADVISE | wasi.FD_ALLOCATE |
			wasi.FD_FILESTAT_GET | wasi.FD_FILESTAT_SET_SIZE | wasi.FD_FILESTAT_SET_TIMES |
			wasi.POLL_FD_READWRITE
		return st.Filetype, fileBase, 0, nil
	}
}

func (unixFs) Poll(fds []PollFd, timeout time.Duration) ([]PollEvents, error) {
	pfds := make([]unix.PollFd, len(fds))
	for i, f := range fds {
		var events int16
		if f.Events.Has(PollReadable) {
			events |= unix.POLLIN
		}
		if f.Events.Has(PollWritable) {
			events |= unix.POLLOUT
		}
		pfds[i] = unix.PollFd{Fd: int32(f.Handle), Events: events}
	}

	timeoutMs := -1
	if timeout >= 0 {
		ms := timeout.Milliseconds()
		if ms > math.MaxInt32 {
			ms = math.MaxInt32
		}
		timeoutMs = int(ms)
	}

	deadline := time.Now().Add(timeout)
	for {
		_, err := unix.Poll(pfds, timeoutMs)
		if err == unix.EINTR {
			// Retry against the same deadline rather than restarting the
			// full timeout.
			if timeoutMs > 0 {
				ms := time.Until(deadline).Milliseconds()
				if ms < 0 {
					ms = 0
				}
				if ms < int64(timeoutMs) {
					timeoutMs = int(ms)
				}
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	out := make([]PollEvents, len(pfds))
	for i, p := range pfds {
		var ev PollEvents
		if p.Revents&unix.POLLIN != 0 {
			ev |= PollReadable
		}
		if p.Revents&unix.POLLOUT != 0 {
			ev |= PollWritable
		}
		if p.Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			ev |= PollHangup
		}
		out[i] = ev
	}
	return out, nil
}

func (unixFs) ClockNow(id wasi.ClockID) (int64, error) {
	clk, err := clockFromID(id)
	if err != nil {
		return 0, err
	}
	var ts unix.Timespec
	if err := unix.ClockGettime(clk, &ts); err != nil {
		return 0, err
	}
	return unix.TimespecToNsec(ts), nil
}

func (unixFs) ClockRes(id wasi.ClockID) (int64, error) {
	clk, err := clockFromID(id)
	if err != nil {
		return 0, err
	}
	var ts unix.Timespec
	if err := unix.ClockGetres(clk, &ts); err != nil {
		return 0, err
	}
	return unix.TimespecToNsec(ts), nil
}

func clockFromID(id wasi.ClockID) (int32, error) {
	switch id {
	case wasi.Realtime:
		return unix.CLOCK_REALTIME, nil
	case wasi.Monotonic:
		return unix.CLOCK_MONOTONIC, nil
	case wasi.ProcessCPUTimeID:
		return unix.CLOCK_PROCESS_CPUTIME_ID, nil
	case wasi.ThreadCPUTimeID:
		return unix.CLOCK_THREAD_CPUTIME_ID, nil
	default:
		return 0, unix.EINVAL
	}
}

func ignoringEINTR(do func() error) error {
	for {
		err := do()
		if err != unix.EINTR {
			return err
		}
	}
}
