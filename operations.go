package wasicore

import (
	"time"

	"github.com/dispatchrun/wasicore/internal/hostfs"
	"github.com/dispatchrun/wasicore/internal/pathresolver"
	"github.com/dispatchrun/wasicore/wasi"
)

// Each guest syscall is a method on *Ctx. Every
// method starts by checking rights on its descriptor(s), resolves a path if
// one is involved, delegates to the HostFs, translates the error, and
// installs or retires table entries as needed. Nothing here retries a
// failed host call with a different strategy; every host error surfaces as
// exactly one errno.

func (c *Ctx) errno(err error) wasi.Errno {
	if err == nil {
		return wasi.ESUCCESS
	}
	return hostfs.ToErrno(err)
}

// resolveDir looks up dirfd, verifies PATH_OPEN plus extraBase, and resolves
// path under it. The returned handle must be closed by the caller exactly
// once.
func (c *Ctx) resolveDir(dirfd wasi.Fd, lflags wasi.Lookupflags, path string, needsFinalComponent bool, extraBase wasi.Rights) (pathresolver.Result, wasi.Errno) {
	dir, errno := c.fds.get(dirfd, wasi.PATH_OPEN|extraBase, 0)
	if errno != wasi.ESUCCESS {
		return pathresolver.Result{}, errno
	}
	if dir.Kind != KindDirectory {
		return pathresolver.Result{}, wasi.ENOTDIR
	}
	res, err := c.resolver.Resolve(dir.Handle, path, lflags.Has(wasi.SymlinkFollow), needsFinalComponent)
	if err != nil {
		if perr, ok := err.(*pathresolver.Error); ok {
			return pathresolver.Result{}, perr.Errno
		}
		return pathresolver.Result{}, wasi.ENOTSUP
	}
	return res, wasi.ESUCCESS
}

// Open implements "path_open". The rights the open flags imply
// (O_CREAT needs PATH_CREATE_FILE, O_TRUNC needs
// PATH_FILESTAT_SET_SIZE, sync fdflags need FD_DATASYNC/FD_SYNC
// inheriting) are required of the directory and fail ENOTCAPABLE when
// missing; the rights the caller requests for the new descriptor are
// trimmed to the directory's inheriting set instead.
func (c *Ctx) Open(dirfd wasi.Fd, dirflags wasi.Lookupflags, path string, oflags wasi.Oflags, rightsBase, rightsInheriting wasi.Rights, fdflags wasi.Fdflags) (wasi.Fd, wasi.Errno) {
	needBase, needInheriting := wasi.OpenNeededRights(oflags, fdflags, wasi.PATH_OPEN, 0)
	dirEntry, errno := c.fds.get(dirfd, needBase, needInheriting)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	parentInheriting := dirEntry.RightsInheriting
	wantBase, wantInheriting := rightsBase, rightsInheriting

	res, errno := c.resolveDir(dirfd, dirflags, path, true, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	defer c.fs.Close(res.Dir)

	var flags hostfs.OpenFlags
	if oflags.Has(wasi.O_CREAT) {
		flags |= hostfs.O_CREAT
	}
	if oflags.Has(wasi.O_EXCL) {
		flags |= hostfs.O_EXCL
	}
	if oflags.Has(wasi.O_TRUNC) {
		flags |= hostfs.O_TRUNC
	}
	if oflags.Has(wasi.O_DIRECTORY) {
		flags |= hostfs.O_DIRECTORY
	}
	if fdflags.Has(wasi.F_APPEND) {
		flags |= hostfs.O_APPEND
	}
	if fdflags.Has(wasi.F_DSYNC) {
		flags |= hostfs.O_DSYNC
	}
	if fdflags.Has(wasi.F_SYNC) || fdflags.Has(wasi.F_RSYNC) {
		flags |= hostfs.O_SYNC
	}
	if fdflags.Has(wasi.F_NONBLOCK) {
		flags |= hostfs.O_NONBLOCK
	}
	wantRead := wantBase.HasAny(wasi.ReadRights)
	wantWrite := wantBase.HasAny(wasi.WriteRights)
	switch {
	case wantRead && wantWrite:
		flags |= hostfs.O_RDWR
	case wantWrite:
		flags |= hostfs.O_WRONLY
	default:
		flags |= hostfs.O_RDONLY
	}
	// Never trust the last component's own symlink-ness to the host's
	// default string-based open: require NOFOLLOW unless the guest asked
	// to follow.
	if !dirflags.Has(wasi.SymlinkFollow) {
		flags |= hostfs.O_NOFOLLOW
	}

	h, err := c.fs.OpenAt(res.Dir, res.Leaf, flags, 0o666)
	if err != nil {
		return 0, c.errno(err)
	}

	filetype, natBase, natInheriting, err := c.fs.FileTypeAndRights(h)
	if err != nil {
		c.fs.Close(h)
		return 0, c.errno(err)
	}

	entry := &FdEntry{
		Kind:     KindFile,
		Handle:   h,
		FileType: filetype,
		// A descendant's rights are bounded by the
		// parent's rights_inheriting, not just by what the handle itself
		// naturally supports.
		RightsBase:       natBase & wantBase & parentInheriting,
		RightsInheriting: natInheriting & wantInheriting & parentInheriting,
		Fdflags:          fdflags,
		NeedsClose:       true,
	}
	if filetype == wasi.Directory {
		entry.Kind = KindDirectory
	}
	fd, errno := c.fds.insert(entry)
	if errno != wasi.ESUCCESS {
		c.fs.Close(h)
		return 0, errno
	}
	return fd, wasi.ESUCCESS
}

// Read implements "fd_read": vectored reads from the descriptor's current
// position.
func (c *Ctx) Read(fd wasi.Fd, iovs [][]byte) (wasi.Size, wasi.Errno) {
	e, errno := c.fds.get(fd, wasi.FD_READ, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	n, err := c.fs.Readv(e.Handle, iovs)
	if n == 0 && err == nil && e.Kind == KindStdin {
		e.NeedsClose = false
	}
	if err != nil {
		return 0, c.errno(err)
	}
	return wasi.Size(n), wasi.ESUCCESS
}

// Write implements "fd_write": vectored writes at the descriptor's current
// position.
func (c *Ctx) Write(fd wasi.Fd, iovs [][]byte) (wasi.Size, wasi.Errno) {
	e, errno := c.fds.get(fd, wasi.FD_WRITE, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	n, err := c.fs.Writev(e.Handle, iovs)
	if err != nil {
		return 0, c.errno(err)
	}
	return wasi.Size(n), wasi.ESUCCESS
}

// Pread implements "fd_pread": positional read, cursor unaffected.
func (c *Ctx) Pread(fd wasi.Fd, iovs [][]byte, offset wasi.Filesize) (wasi.Size, wasi.Errno) {
	e, errno := c.fds.get(fd, wasi.FD_READ|wasi.FD_SEEK, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	var total int
	off := int64(offset)
	for _, buf := range iovs {
		if len(buf) == 0 {
			continue
		}
		n, err := c.fs.ReadAt(e.Handle, buf, off)
		total += n
		off += int64(n)
		if err != nil {
			return wasi.Size(total), c.errno(err)
		}
		if n < len(buf) {
			break
		}
	}
	return wasi.Size(total), wasi.ESUCCESS
}

// Pwrite implements "fd_pwrite": positional write, cursor unaffected.
func (c *Ctx) Pwrite(fd wasi.Fd, iovs [][]byte, offset wasi.Filesize) (wasi.Size, wasi.Errno) {
	e, errno := c.fds.get(fd, wasi.FD_WRITE|wasi.FD_SEEK, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	var total int
	off := int64(offset)
	for _, buf := range iovs {
		if len(buf) == 0 {
			continue
		}
		n, err := c.fs.WriteAt(e.Handle, buf, off)
		total += n
		off += int64(n)
		if err != nil {
			return wasi.Size(total), c.errno(err)
		}
	}
	return wasi.Size(total), wasi.ESUCCESS
}

// Seek implements "fd_seek". whence=Cur with a zero offset only needs
// FD_TELL; every other request needs FD_SEEK.
func (c *Ctx) Seek(fd wasi.Fd, offset wasi.Filedelta, whence wasi.Whence) (wasi.Filesize, wasi.Errno) {
	needed := wasi.Rights(wasi.FD_SEEK)
	if whence == wasi.Cur && offset == 0 {
		needed = wasi.FD_TELL
	}
	e, errno := c.fds.get(fd, needed, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	n, err := c.fs.Seek(e.Handle, int64(offset), int(whence))
	if err != nil {
		return 0, c.errno(err)
	}
	return wasi.Filesize(n), wasi.ESUCCESS
}

// FdstatGet implements "fd_fdstat_get".
func (c *Ctx) FdstatGet(fd wasi.Fd) (wasi.Fdstat, wasi.Errno) {
	e, errno := c.fds.get(fd, 0, 0)
	if errno != wasi.ESUCCESS {
		return wasi.Fdstat{}, errno
	}
	flags := e.Fdflags
	if e.Handle != hostfs.NoHandle {
		if hf, err := c.fs.GetFdflags(e.Handle); err == nil {
			flags = hf
		}
	}
	return wasi.Fdstat{
		Filetype:         e.FileType,
		Flags:            flags,
		RightsBase:       e.RightsBase,
		RightsInheriting: e.RightsInheriting,
	}, wasi.ESUCCESS
}

// FdstatSetFlags implements "fd_fdstat_set_flags".
func (c *Ctx) FdstatSetFlags(fd wasi.Fd, flags wasi.Fdflags) wasi.Errno {
	e, errno := c.fds.get(fd, wasi.FD_FDSTAT_SET_FLAGS, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if e.Handle != hostfs.NoHandle {
		if err := c.fs.SetFdflags(e.Handle, flags); err != nil {
			return c.errno(err)
		}
	}
	e.Fdflags = flags
	return wasi.ESUCCESS
}

// FdstatSetRights implements "fd_fdstat_set_rights":
// rights may only narrow, never widen.
func (c *Ctx) FdstatSetRights(fd wasi.Fd, base, inheriting wasi.Rights) wasi.Errno {
	e, errno := c.fds.get(fd, 0, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if base&^e.RightsBase != 0 || inheriting&^e.RightsInheriting != 0 {
		return wasi.ENOTCAPABLE
	}
	e.RightsBase = base
	e.RightsInheriting = inheriting
	return wasi.ESUCCESS
}

// FilestatGet implements "fd_filestat_get".
func (c *Ctx) FilestatGet(fd wasi.Fd) (wasi.Filestat, wasi.Errno) {
	e, errno := c.fds.get(fd, wasi.FD_FILESTAT_GET, 0)
	if errno != wasi.ESUCCESS {
		return wasi.Filestat{}, errno
	}
	st, err := c.fs.Fstat(e.Handle)
	if err != nil {
		return wasi.Filestat{}, c.errno(err)
	}
	return st, wasi.ESUCCESS
}

// PathFilestatGet implements "path_filestat_get".
func (c *Ctx) PathFilestatGet(dirfd wasi.Fd, flags wasi.Lookupflags, path string) (wasi.Filestat, wasi.Errno) {
	res, errno := c.resolveDir(dirfd, flags, path, false, wasi.PATH_FILESTAT_GET)
	if errno != wasi.ESUCCESS {
		return wasi.Filestat{}, errno
	}
	defer c.fs.Close(res.Dir)
	st, err := c.fs.StatAt(res.Dir, res.Leaf, flags.Has(wasi.SymlinkFollow))
	if err != nil {
		return wasi.Filestat{}, c.errno(err)
	}
	return st, wasi.ESUCCESS
}

func timesFromFstflags(atim, mtim wasi.Timestamp, flags wasi.Fstflags) (hostfs.Times, wasi.Errno) {
	if flags.Has(wasi.ATIM) && flags.Has(wasi.ATIM_NOW) {
		return hostfs.Times{}, wasi.EINVAL
	}
	if flags.Has(wasi.MTIM) && flags.Has(wasi.MTIM_NOW) {
		return hostfs.Times{}, wasi.EINVAL
	}
	var t hostfs.Times
	switch {
	case flags.Has(wasi.ATIM):
		t.Atim = atim.Time()
	case flags.Has(wasi.ATIM_NOW):
		t.Atim = time.Now()
	default:
		t.OmitAtim = true
	}
	switch {
	case flags.Has(wasi.MTIM):
		t.Mtim = mtim.Time()
	case flags.Has(wasi.MTIM_NOW):
		t.Mtim = time.Now()
	default:
		t.OmitMtim = true
	}
	return t, wasi.ESUCCESS
}

// FilestatSetTimes implements "fd_filestat_set_times".
func (c *Ctx) FilestatSetTimes(fd wasi.Fd, atim, mtim wasi.Timestamp, flags wasi.Fstflags) wasi.Errno {
	e, errno := c.fds.get(fd, wasi.FD_FILESTAT_SET_TIMES, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	t, errno := timesFromFstflags(atim, mtim, flags)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if err := c.fs.SetTimes(e.Handle, t); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// PathFilestatSetTimes implements "path_filestat_set_times". The leaf is
// never opened: times are applied to the path itself, so without
// SymlinkFollow a symlink's own timestamps change rather than its
// target's.
func (c *Ctx) PathFilestatSetTimes(dirfd wasi.Fd, lflags wasi.Lookupflags, path string, atim, mtim wasi.Timestamp, fstflags wasi.Fstflags) wasi.Errno {
	t, errno := timesFromFstflags(atim, mtim, fstflags)
	if errno != wasi.ESUCCESS {
		return errno
	}
	res, errno := c.resolveDir(dirfd, lflags, path, false, wasi.PATH_FILESTAT_SET_TIMES)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(res.Dir)
	if err := c.fs.SetTimesAt(res.Dir, res.Leaf, lflags.Has(wasi.SymlinkFollow), t); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// FilestatSetSize implements "fd_filestat_set_size".
func (c *Ctx) FilestatSetSize(fd wasi.Fd, size wasi.Filesize) wasi.Errno {
	e, errno := c.fds.get(fd, wasi.FD_FILESTAT_SET_SIZE, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if err := c.fs.Truncate(e.Handle, int64(size)); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// Readdir implements "fd_readdir": a resumable, cookie-addressed
// directory listing serialized as fixed dirent headers plus raw names.
func (c *Ctx) Readdir(fd wasi.Fd, buf []byte, cookie wasi.Dircookie) (wasi.Size, wasi.Errno) {
	e, errno := c.fds.get(fd, wasi.FD_READDIR, 0)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	cur, err := c.fs.OpenDirCursor(e.Handle)
	if err != nil {
		return 0, c.errno(err)
	}
	defer cur.Close()
	if cookie != wasi.DircookieStart {
		if err := cur.Seek(cookie); err != nil {
			return 0, c.errno(err)
		}
	}

	var written int
	for written < len(buf) {
		ent, ok, err := cur.Next()
		if err != nil {
			return wasi.Size(written), c.errno(err)
		}
		if !ok {
			break
		}
		d := wasi.Dirent{
			Next:    cur.Tell(),
			Ino:     wasi.Inode(ent.Ino),
			Namelen: wasi.Dirnamlen(len(ent.Name)),
			Type:    ent.Type,
		}
		hdr := d.Marshal()
		n := copy(buf[written:], hdr[:])
		written += n
		if n < len(hdr) {
			break
		}
		n = copy(buf[written:], ent.Name)
		written += n
		if n < len(ent.Name) {
			break
		}
	}
	return wasi.Size(written), wasi.ESUCCESS
}

// PathSymlink implements "path_symlink": oldpath is an opaque byte string
// written verbatim as the link's target, never itself resolved.
func (c *Ctx) PathSymlink(oldpath string, dirfd wasi.Fd, newpath string) wasi.Errno {
	res, errno := c.resolveDir(dirfd, 0, newpath, true, wasi.PATH_SYMLINK)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(res.Dir)
	if err := c.fs.SymlinkAt(res.Dir, res.Leaf, oldpath); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// PathLink implements "path_link": creates a hard link from the resolved
// source to the resolved target, each side independently rights-checked.
func (c *Ctx) PathLink(olddirfd wasi.Fd, oldflags wasi.Lookupflags, oldpath string, newdirfd wasi.Fd, newpath string) wasi.Errno {
	oldRes, errno := c.resolveDir(olddirfd, oldflags, oldpath, true, wasi.PATH_LINK_SOURCE)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(oldRes.Dir)
	newRes, errno := c.resolveDir(newdirfd, 0, newpath, true, wasi.PATH_LINK_TARGET)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(newRes.Dir)
	if err := c.fs.LinkAt(oldRes.Dir, oldRes.Leaf, newRes.Dir, newRes.Leaf, oldflags.Has(wasi.SymlinkFollow)); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// PathRename implements "path_rename".
func (c *Ctx) PathRename(olddirfd wasi.Fd, oldpath string, newdirfd wasi.Fd, newpath string) wasi.Errno {
	oldRes, errno := c.resolveDir(olddirfd, 0, oldpath, true, wasi.PATH_RENAME_SOURCE)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(oldRes.Dir)
	newRes, errno := c.resolveDir(newdirfd, 0, newpath, true, wasi.PATH_RENAME_TARGET)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(newRes.Dir)
	if err := c.fs.RenameAt(oldRes.Dir, oldRes.Leaf, newRes.Dir, newRes.Leaf); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// PathReadlink implements "path_readlink".
func (c *Ctx) PathReadlink(dirfd wasi.Fd, path string, buf []byte) (wasi.Size, wasi.Errno) {
	res, errno := c.resolveDir(dirfd, 0, path, false, wasi.PATH_READLINK)
	if errno != wasi.ESUCCESS {
		return 0, errno
	}
	defer c.fs.Close(res.Dir)
	n, err := c.fs.ReadlinkAt(res.Dir, res.Leaf, buf)
	if err != nil {
		return 0, c.errno(err)
	}
	return wasi.Size(n), wasi.ESUCCESS
}

// PathUnlinkFile implements "path_unlink_file". Attempting to unlink a
// directory through this op yields EISDIR, the host's own signal.
func (c *Ctx) PathUnlinkFile(dirfd wasi.Fd, path string) wasi.Errno {
	res, errno := c.resolveDir(dirfd, 0, path, true, wasi.PATH_UNLINK_FILE)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(res.Dir)
	if err := c.fs.UnlinkAt(res.Dir, res.Leaf, false); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// PathRemoveDirectory implements "path_remove_directory". A non-empty
// target yields ENOTEMPTY, surfaced from the host.
func (c *Ctx) PathRemoveDirectory(dirfd wasi.Fd, path string) wasi.Errno {
	res, errno := c.resolveDir(dirfd, 0, path, true, wasi.PATH_REMOVE_DIRECTORY)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(res.Dir)
	if err := c.fs.UnlinkAt(res.Dir, res.Leaf, true); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// PathCreateDirectory implements "path_create_directory".
func (c *Ctx) PathCreateDirectory(dirfd wasi.Fd, path string) wasi.Errno {
	res, errno := c.resolveDir(dirfd, 0, path, true, wasi.PATH_CREATE_DIRECTORY)
	if errno != wasi.ESUCCESS {
		return errno
	}
	defer c.fs.Close(res.Dir)
	if err := c.fs.MkdirAt(res.Dir, res.Leaf, 0o777); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// FdAdvise implements "fd_advise": best-effort, silently successful when
// the host has no fadvise equivalent for an otherwise-valid advice value.
func (c *Ctx) FdAdvise(fd wasi.Fd, offset, length wasi.Filesize, advice wasi.Advice) wasi.Errno {
	e, errno := c.fds.get(fd, wasi.FD_ADVISE, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if advice > wasi.AdviceNoReuse {
		return wasi.EINVAL
	}
	if err := c.fs.Advise(e.Handle, int64(offset), int64(length), advice); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// FdAllocate implements "fd_allocate".
func (c *Ctx) FdAllocate(fd wasi.Fd, offset, length wasi.Filesize) wasi.Errno {
	e, errno := c.fds.get(fd, wasi.FD_ALLOCATE, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if err := c.fs.Allocate(e.Handle, int64(offset), int64(length)); err != nil {
		return c.errno(err)
	}
	return wasi.ESUCCESS
}

// ClockResGet implements "clock_res_get". Zero resolution is forbidden
//.
func (c *Ctx) ClockResGet(id wasi.ClockID) (wasi.Timestamp, wasi.Errno) {
	res, err := c.fs.ClockRes(id)
	if err != nil {
		return 0, c.errno(err)
	}
	if res == 0 {
		return 0, wasi.EINVAL
	}
	return wasi.Timestamp(res), wasi.ESUCCESS
}

// ClockTimeGet implements "clock_time_get".
func (c *Ctx) ClockTimeGet(id wasi.ClockID, precision wasi.Timestamp) (wasi.Timestamp, wasi.Errno) {
	now, err := c.fs.ClockNow(id)
	if err != nil {
		return 0, c.errno(err)
	}
	if now < 0 {
		return 0, wasi.EOVERFLOW
	}
	return wasi.Timestamp(now), wasi.ESUCCESS
}

// FdPrestatGet implements "fd_prestat_get".
func (c *Ctx) FdPrestatGet(fd wasi.Fd) (wasi.Prestat, wasi.Errno) {
	e, errno := c.fds.get(fd, 0, 0)
	if errno != wasi.ESUCCESS {
		return wasi.Prestat{}, errno
	}
	if !e.IsPreopen() {
		return wasi.Prestat{}, wasi.ENOTSUP
	}
	if e.Kind != KindDirectory {
		return wasi.Prestat{}, wasi.ENOTDIR
	}
	return wasi.Prestat{Type: wasi.PreopenTypeDir, NameLen: uint32(len(e.PreopenPath))}, wasi.ESUCCESS
}

// FdPrestatDirName implements "fd_prestat_dir_name".
func (c *Ctx) FdPrestatDirName(fd wasi.Fd, buf []byte) wasi.Errno {
	e, errno := c.fds.get(fd, 0, 0)
	if errno != wasi.ESUCCESS {
		return errno
	}
	if !e.IsPreopen() {
		return wasi.ENOTSUP
	}
	if e.Kind != KindDirectory {
		return wasi.ENOTDIR
	}
	if len(buf) < len(e.PreopenPath) {
		return wasi.ENAMETOOLONG
	}
	copy(buf, e.PreopenPath)
	return wasi.ESUCCESS
}

// FdClose implements "fd_close", retiring the descriptor and releasing
// its handle if this core owns it.
func (c *Ctx) FdClose(fd wasi.Fd) wasi.Errno {
	e, errno := c.fds.remove(fd)
	if errno != wasi.ESUCCESS {
		return errno
	}
	c.close(e)
	return wasi.ESUCCESS
}

// FdRenumber implements "fd_renumber": to's former occupant is
// closed, from's entry takes its place, and from is freed.
func (c *Ctx) FdRenumber(from, to wasi.Fd) wasi.Errno {
	return c.fds.renumber(from, to, c.close)
}
