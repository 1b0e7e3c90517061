// Package wasicore implements the capability-based syscall core sitting
// between a sandboxed guest and the host operating system: the descriptor
// table, the rights model, sandboxed path resolution, and the per-syscall
// operation handlers. Guest-visible types (errno, rights, stat layouts) live
// in the wasi package; platform system calls live behind the
// internal/hostfs adapter.
package wasicore

import (
	"fmt"
	"strings"

	"github.com/dispatchrun/wasicore/internal/hostfs"
	"github.com/dispatchrun/wasicore/internal/pathresolver"
	"github.com/dispatchrun/wasicore/wasi"
)

// Ctx owns the descriptor table for one guest instance plus its immutable
// argv/envp side tables. It is the handle Operations methods hang off
// of.
type Ctx struct {
	fds      fdTable
	fs       hostfs.HostFs
	resolver pathresolver.Resolver

	argv []string
	envp []string
}

// Argv returns the guest's argument list in order, each entry NUL-free.
func (c *Ctx) Argv() []string { return c.argv }

// Envp returns the guest's environment as "KEY=VALUE" strings in order.
func (c *Ctx) Envp() []string { return c.envp }

func (c *Ctx) close(e *FdEntry) {
	if e.NeedsClose && e.Handle != hostfs.NoHandle {
		c.fs.Close(e.Handle)
	}
}

// Close releases every handle this Ctx owns, including preopens. After
// Close the Ctx must not be used again: every owned handle is released
// exactly once.
func (c *Ctx) Close() error {
	c.fds.each(func(_ wasi.Fd, e *FdEntry) bool {
		c.close(e)
		return true
	})
	return nil
}

// Builder constructs a Ctx: preopens, argv, and envp are fixed at
// build time and immutable afterward.
type Builder struct {
	ctx *Ctx
	err error
}

// NewBuilder starts a Ctx builder backed by fsys for all host operations.
func NewBuilder(fsys hostfs.HostFs) *Builder {
	c := &Ctx{
		fs:       fsys,
		resolver: pathresolver.Resolver{Fs: fsys, ToErrno: hostfs.ToErrno},
	}
	// Stdio handles are the real process fds 0/1/2 (hostfs.Handle is the raw
	// fd number on Unix), taken but not owned: stdout/stderr are never
	// closed by this core; stdin starts NeedsClose=true and the first EOF
	// read flips it false.
	c.fds.insertAt(0, &FdEntry{Kind: KindStdin, Handle: 0, FileType: wasi.CharacterDevice, RightsBase: wasi.FD_READ | wasi.POLL_FD_READWRITE, NeedsClose: true})
	c.fds.insertAt(1, &FdEntry{Kind: KindStdout, Handle: 1, FileType: wasi.CharacterDevice, RightsBase: wasi.FD_WRITE | wasi.POLL_FD_READWRITE})
	c.fds.insertAt(2, &FdEntry{Kind: KindStderr, Handle: 2, FileType: wasi.CharacterDevice, RightsBase: wasi.FD_WRITE | wasi.POLL_FD_READWRITE})
	return &Builder{ctx: c}
}

// Argv appends to the guest's argument list. Arguments are NUL-free byte
// strings; an embedded NUL is a build error.
func (b *Builder) Argv(args ...string) *Builder {
	if b.err != nil {
		return b
	}
	for _, a := range args {
		if strings.IndexByte(a, 0) >= 0 {
			b.err = fmt.Errorf("wasicore: argument %q contains a NUL byte", a)
			return b
		}
	}
	b.ctx.argv = append(b.ctx.argv, args...)
	return b
}

// Env appends "KEY=VALUE" entries to the guest's environment. A duplicate
// key is a build error; the guest sees each key at most once.
func (b *Builder) Env(key, value string) *Builder {
	if b.err != nil {
		return b
	}
	if strings.IndexByte(key, 0) >= 0 || strings.IndexByte(value, 0) >= 0 {
		b.err = fmt.Errorf("wasicore: environment entry %q contains a NUL byte", key)
		return b
	}
	for _, kv := range b.ctx.envp {
		if len(kv) > len(key) && kv[len(key)] == '=' && kv[:len(key)] == key {
			b.err = fmt.Errorf("wasicore: duplicate environment key %q", key)
			return b
		}
	}
	b.ctx.envp = append(b.ctx.envp, key+"="+value)
	return b
}

// Preopen grants the guest access to hostDir (already opened as a
// directory handle, e.g. by hostfs.OpenHostDir) under guestPath, occupying the next
// free descriptor number at or above 3.
func (b *Builder) Preopen(guestPath string, hostDir hostfs.Handle) *Builder {
	if b.err != nil {
		return b
	}
	filetype, base, inheriting, err := b.ctx.fs.FileTypeAndRights(hostDir)
	if err != nil {
		b.err = err
		return b
	}
	if filetype != wasi.Directory {
		b.err = fmt.Errorf("wasicore: preopen %q is not a directory", guestPath)
		return b
	}
	if _, errno := b.ctx.fds.insert(&FdEntry{
		Kind:             KindDirectory,
		Handle:           hostDir,
		FileType:         wasi.Directory,
		RightsBase:       base,
		RightsInheriting: inheriting,
		PreopenPath:      guestPath,
		NeedsClose:       true,
	}); errno != wasi.ESUCCESS {
		b.err = fmt.Errorf("wasicore: preopen %q: %s", guestPath, errno.Name())
	}
	return b
}

// Build finalizes the Ctx, or returns the first error recorded by the
// builder chain.
func (b *Builder) Build() (*Ctx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.ctx, nil
}
