package wasi

import "fmt"

// Rights is a 64-bit capability bitmask. A descriptor's base rights gate
// what it may do directly; its inheriting rights bound what a descriptor
// opened through it may carry.
type Rights uint64

const (
	FD_DATASYNC Rights = 1 << iota
	FD_READ
	FD_SEEK
	FD_FDSTAT_SET_FLAGS
	FD_SYNC
	FD_TELL
	FD_WRITE
	FD_ADVISE
	FD_ALLOCATE
	PATH_CREATE_DIRECTORY
	PATH_CREATE_FILE
	PATH_LINK_SOURCE
	PATH_LINK_TARGET
	PATH_OPEN
	FD_READDIR
	PATH_READLINK
	PATH_RENAME_SOURCE
	PATH_RENAME_TARGET
	PATH_FILESTAT_GET
	PATH_FILESTAT_SET_SIZE
	PATH_FILESTAT_SET_TIMES
	FD_FILESTAT_GET
	FD_FILESTAT_SET_SIZE
	FD_FILESTAT_SET_TIMES
	PATH_SYMLINK
	PATH_REMOVE_DIRECTORY
	PATH_UNLINK_FILE
	POLL_FD_READWRITE
)

// AllRights is the union of every recognized right; the HostFs adapters
// report it as a directory's inheriting rights.
const AllRights Rights = 1<<28 - 1

// Has reports whether r carries every bit set in rights.
func (r Rights) Has(rights Rights) bool { return (r & rights) == rights }

// HasAny reports whether r carries at least one bit set in rights.
func (r Rights) HasAny(rights Rights) bool { return (r & rights) != 0 }

func (r Rights) String() string { return fmt.Sprintf("%#016x", uint64(r)) }

// ReadRights and WriteRights group the base rights whose presence in a
// path_open request implies read (respectively write) access when choosing
// the host open mode.
const (
	ReadRights  = FD_READ | FD_READDIR
	WriteRights = FD_WRITE
)

// OpenNeededRights implements the open-flags-to-rights augmentation: the
// rights "path_open" must additionally require of the directory it resolves
// through, beyond whatever the caller already asked for, derived from the
// requested oflags/fdflags rather than the wanted base/inheriting sets
// alone.
func OpenNeededRights(oflags Oflags, fdflags Fdflags, base, inheriting Rights) (neededBase, neededInheriting Rights) {
	neededBase, neededInheriting = base, inheriting
	if oflags.Has(O_CREAT) {
		neededBase |= PATH_CREATE_FILE
	}
	if oflags.Has(O_TRUNC) {
		neededBase |= PATH_FILESTAT_SET_SIZE
	}
	if fdflags.Has(F_DSYNC) {
		neededInheriting |= FD_DATASYNC
	}
	if fdflags.Has(F_RSYNC) || fdflags.Has(F_SYNC) {
		neededInheriting |= FD_SYNC
	}
	return neededBase, neededInheriting
}
