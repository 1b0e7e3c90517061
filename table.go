package wasicore

import (
	"github.com/dispatchrun/wasicore/internal/descriptor"
	"github.com/dispatchrun/wasicore/wasi"
)

// fdTable is the guest's descriptor table, a thin rights-checking
// wrapper over the generic dense table in internal/descriptor. Fds 0-2 are
// reserved for stdio and assigned once at construction; insert therefore
// always lands at 3 or above, so preopens take densely increasing numbers
// in insertion order starting at 3.
type fdTable struct {
	entries descriptor.Table[wasi.Fd, *FdEntry]
}

// get returns the entry at fd if it exists and carries at least the
// requested rights: EBADF if unknown, ENOTCAPABLE on a rights shortfall.
func (t *fdTable) get(fd wasi.Fd, base, inheriting wasi.Rights) (*FdEntry, wasi.Errno) {
	e, ok := t.entries.Lookup(fd)
	if !ok {
		return nil, wasi.EBADF
	}
	if errno := checkRights(e, base, inheriting); errno != wasi.ESUCCESS {
		return nil, errno
	}
	return e, wasi.ESUCCESS
}

// maxFds bounds the descriptor table; the generic descriptor.Table backing
// it grows without limit on its own, and descriptor exhaustion must
// surface as EMFILE.
const maxFds = 1 << 20

// insert picks the smallest unused fd number at or above 3 and installs e
// there, failing EMFILE once the table is exhausted. Slots 0-2 are never
// handed out, even after a stdio entry has been closed.
func (t *fdTable) insert(e *FdEntry) (wasi.Fd, wasi.Errno) {
	if t.entries.Len() >= maxFds {
		return 0, wasi.EMFILE
	}
	for fd := wasi.Fd(3); ; fd++ {
		if t.entries.Access(fd) == nil {
			t.entries.Assign(fd, e)
			return fd, wasi.ESUCCESS
		}
	}
}

// insertAt overwrites whatever (if anything) occupies fd. Used only during
// Ctx construction to seed stdio and preopens at known numbers.
func (t *fdTable) insertAt(fd wasi.Fd, e *FdEntry) {
	t.entries.Assign(fd, e)
}

// remove retires fd. A preopen is refused with ENOTSUP; it stays open for
// the lifetime of the Ctx.
func (t *fdTable) remove(fd wasi.Fd) (*FdEntry, wasi.Errno) {
	e, ok := t.entries.Lookup(fd)
	if !ok {
		return nil, wasi.EBADF
	}
	if e.IsPreopen() {
		return nil, wasi.ENOTSUP
	}
	t.entries.Delete(fd)
	return e, wasi.ESUCCESS
}

// renumber atomically closes whatever occupies to, moves from's entry into
// to, and frees from. Both descriptors must exist and neither side
// may be a preopen.
func (t *fdTable) renumber(from, to wasi.Fd, closeFn func(*FdEntry)) wasi.Errno {
	fromEntry, ok := t.entries.Lookup(from)
	if !ok {
		return wasi.EBADF
	}
	toEntry, ok := t.entries.Lookup(to)
	if !ok {
		return wasi.EBADF
	}
	if fromEntry.IsPreopen() || toEntry.IsPreopen() {
		return wasi.ENOTSUP
	}
	if from == to {
		return wasi.ESUCCESS
	}
	closeFn(toEntry)
	t.entries.Assign(to, fromEntry)
	t.entries.Delete(from)
	return wasi.ESUCCESS
}

// each visits every live descriptor in ascending fd order, used by Ctx.Close
// to release every owned handle exactly once.
func (t *fdTable) each(fn func(wasi.Fd, *FdEntry) bool) {
	t.entries.Range(fn)
}
