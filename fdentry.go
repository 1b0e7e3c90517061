package wasicore

import (
	"github.com/dispatchrun/wasicore/internal/hostfs"
	"github.com/dispatchrun/wasicore/wasi"
)

// Kind tags which concrete resource a descriptor refers to.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindStdin
	KindStdout
	KindStderr
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindStdin:
		return "stdin"
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// FdEntry is one live guest descriptor: the host resource it names,
// the rights it may exercise and hand down, and the bookkeeping needed to
// close it exactly once.
type FdEntry struct {
	Kind Kind

	// Handle is the underlying host resource. Stdin/Stdout/Stderr entries
	// hold the process's own fds 0, 1 and 2 (see NewBuilder).
	Handle hostfs.Handle

	FileType         wasi.Filetype
	RightsBase       wasi.Rights
	RightsInheriting wasi.Rights
	Fdflags          wasi.Fdflags

	// PreopenPath is set iff this descriptor is a preopen root; it is
	// read-only after insertion and makes the entry un-removable by the
	// guest.
	PreopenPath string

	// NeedsClose reports whether this core owns Handle and must release it
	// on Remove/Renumber/Ctx.Close. Stdio entries typically don't; reading
	// stdin to EOF flips this to false for the stdin entry too.
	NeedsClose bool
}

// IsPreopen reports whether this descriptor is a preopen root, which makes
// it immune to Remove and Renumber.
func (e *FdEntry) IsPreopen() bool { return e.PreopenPath != "" }

func checkRights(e *FdEntry, base, inheriting wasi.Rights) wasi.Errno {
	if base&^e.RightsBase != 0 || inheriting&^e.RightsInheriting != 0 {
		return wasi.ENOTCAPABLE
	}
	return wasi.ESUCCESS
}
