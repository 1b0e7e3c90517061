package pathresolver

import (
	"errors"
	"testing"
	"time"

	"github.com/dispatchrun/wasicore/internal/hostfs"
	"github.com/dispatchrun/wasicore/wasi"
)

// fakeFs is a tiny in-memory HostFs used only to exercise the walker's
// control flow; real syscalls are covered by the linux/windows adapters,
// which this package never touches directly.
type fakeFs struct {
	nodes   map[hostfs.Handle]*node
	nextFd  hostfs.Handle
	opCount int
}

type node struct {
	dir      map[string]*node
	isDir    bool
	symlink  string // non-empty => this entry is a symlink to this target
	isSymink bool
}

var (
	errENOENT  = errors.New("ENOENT")
	errENOTDIR = errors.New("ENOTDIR")
	errELOOP   = errors.New("ELOOP")
	errEINVAL  = errors.New("EINVAL")
)

func toTestErrno(err error) wasi.Errno {
	switch {
	case errors.Is(err, errENOENT):
		return wasi.ENOENT
	case errors.Is(err, errENOTDIR):
		return wasi.ENOTDIR
	case errors.Is(err, errELOOP):
		return wasi.ELOOP
	case errors.Is(err, errEINVAL):
		return wasi.EINVAL
	default:
		return wasi.ENOTSUP
	}
}

func newFakeFs() *fakeFs {
	root := &node{dir: map[string]*node{}, isDir: true}
	fs := &fakeFs{nodes: map[hostfs.Handle]*node{1: root}, nextFd: 2}
	return fs
}

func (f *fakeFs) rootHandle() hostfs.Handle { return 1 }

func (f *fakeFs) alloc(n *node) hostfs.Handle {
	h := f.nextFd
	f.nextFd++
	f.nodes[h] = n
	return h
}

func (f *fakeFs) OpenAt(dir hostfs.Handle, name string, flags hostfs.OpenFlags, mode uint32) (hostfs.Handle, error) {
	f.opCount++
	parent, ok := f.nodes[dir]
	if !ok || !parent.isDir {
		return hostfs.NoHandle, errENOTDIR
	}
	child, ok := parent.dir[name]
	if !ok {
		return hostfs.NoHandle, errENOENT
	}
	if child.isSymink {
		return hostfs.NoHandle, errELOOP
	}
	if flags.Has(hostfs.O_DIRECTORY) && !child.isDir {
		return hostfs.NoHandle, errENOTDIR
	}
	return f.alloc(child), nil
}

func (f *fakeFs) Dup(h hostfs.Handle) (hostfs.Handle, error) {
	n, ok := f.nodes[h]
	if !ok {
		return hostfs.NoHandle, errENOENT
	}
	return f.alloc(n), nil
}

func (f *fakeFs) Close(h hostfs.Handle) error {
	delete(f.nodes, h)
	return nil
}

func (f *fakeFs) ReadlinkAt(dir hostfs.Handle, name string, buf []byte) (int, error) {
	parent, ok := f.nodes[dir]
	if !ok {
		return 0, errENOENT
	}
	child, ok := parent.dir[name]
	if !ok {
		return 0, errENOENT
	}
	if !child.isSymink {
		return 0, errEINVAL
	}
	return copy(buf, child.symlink), nil
}

func (f *fakeFs) mkdir(parent *node, name string) *node {
	n := &node{dir: map[string]*node{}, isDir: true}
	parent.dir[name] = n
	return n
}

func (f *fakeFs) mkfile(parent *node, name string) *node {
	n := &node{}
	parent.dir[name] = n
	return n
}

func (f *fakeFs) mksymlink(parent *node, name, target string) *node {
	n := &node{symlink: target, isSymink: true}
	parent.dir[name] = n
	return n
}

// The remaining HostFs methods are unused by the resolver and panic if
// ever reached, so a test exercising them fails loudly instead of silently
// returning a wrong zero value.
func (f *fakeFs) ReadAt(hostfs.Handle, []byte, int64) (int, error)  { panic("unused") }
func (f *fakeFs) WriteAt(hostfs.Handle, []byte, int64) (int, error) { panic("unused") }
func (f *fakeFs) Readv(hostfs.Handle, [][]byte) (int, error)        { panic("unused") }
func (f *fakeFs) Writev(hostfs.Handle, [][]byte) (int, error)       { panic("unused") }
func (f *fakeFs) Seek(hostfs.Handle, int64, int) (int64, error)     { panic("unused") }
func (f *fakeFs) Tell(hostfs.Handle) (int64, error)                 { panic("unused") }
func (f *fakeFs) StatAt(hostfs.Handle, string, bool) (wasi.Filestat, error) {
	panic("unused")
}
func (f *fakeFs) Fstat(hostfs.Handle) (wasi.Filestat, error)   { panic("unused") }
func (f *fakeFs) OpenDirCursor(hostfs.Handle) (hostfs.DirCursor, error) { panic("unused") }
func (f *fakeFs) SymlinkAt(hostfs.Handle, string, string) error        { panic("unused") }
func (f *fakeFs) LinkAt(hostfs.Handle, string, hostfs.Handle, string, bool) error {
	panic("unused")
}
func (f *fakeFs) RenameAt(hostfs.Handle, string, hostfs.Handle, string) error { panic("unused") }
func (f *fakeFs) UnlinkAt(hostfs.Handle, string, bool) error                 { panic("unused") }
func (f *fakeFs) MkdirAt(hostfs.Handle, string, uint32) error                { panic("unused") }
func (f *fakeFs) SetTimes(hostfs.Handle, hostfs.Times) error                 { panic("unused") }
func (f *fakeFs) SetTimesAt(hostfs.Handle, string, bool, hostfs.Times) error { panic("unused") }
func (f *fakeFs) Truncate(hostfs.Handle, int64) error                       { panic("unused") }
func (f *fakeFs) Advise(hostfs.Handle, int64, int64, wasi.Advice) error      { panic("unused") }
func (f *fakeFs) Allocate(hostfs.Handle, int64, int64) error                { panic("unused") }
func (f *fakeFs) GetFdflags(hostfs.Handle) (wasi.Fdflags, error)            { panic("unused") }
func (f *fakeFs) SetFdflags(hostfs.Handle, wasi.Fdflags) error              { panic("unused") }
func (f *fakeFs) FileTypeAndRights(hostfs.Handle) (wasi.Filetype, wasi.Rights, wasi.Rights, error) {
	panic("unused")
}
func (f *fakeFs) Poll([]hostfs.PollFd, time.Duration) ([]hostfs.PollEvents, error) { panic("unused") }
func (f *fakeFs) ClockNow(wasi.ClockID) (int64, error)                            { panic("unused") }
func (f *fakeFs) ClockRes(wasi.ClockID) (int64, error)                           { panic("unused") }

var _ hostfs.HostFs = (*fakeFs)(nil)

func newResolver(fs *fakeFs) *Resolver {
	return &Resolver{Fs: fs, ToErrno: toTestErrno}
}

func TestResolveBasicComponent(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	foo := fs.mkdir(root, "foo")
	fs.mkfile(foo, "bar")

	r := newResolver(fs)
	res, err := r.Resolve(fs.rootHandle(), "foo/bar", false, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Leaf != "bar" {
		t.Fatalf("Leaf = %q, want \"bar\"", res.Leaf)
	}
	gotDir := fs.nodes[res.Dir]
	if gotDir != foo {
		t.Fatalf("resolved dir is not foo's node")
	}
}

func TestResolveDotDotAtRootIsNotCapable(t *testing.T) {
	fs := newFakeFs()
	r := newResolver(fs)
	_, err := r.Resolve(fs.rootHandle(), "..", false, true)
	assertErrno(t, err, wasi.ENOTCAPABLE)
}

func TestResolveDotDotEscapeTwoLevelsIsNotCapable(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	foo := fs.mkdir(root, "foo")
	fs.mkdir(foo, "bar")

	r := newResolver(fs)
	// foo/bar/../../.. pops back to foo, to root, then tries to pop root.
	_, err := r.Resolve(fs.rootHandle(), "foo/bar/../../..", false, true)
	assertErrno(t, err, wasi.ENOTCAPABLE)
}

func TestResolveAbsolutePathIsNotCapable(t *testing.T) {
	fs := newFakeFs()
	r := newResolver(fs)
	_, err := r.Resolve(fs.rootHandle(), "/etc/passwd", false, true)
	assertErrno(t, err, wasi.ENOTCAPABLE)
}

func TestResolveDriveLetterPrefixIsNotCapable(t *testing.T) {
	fs := newFakeFs()
	r := newResolver(fs)
	_, err := r.Resolve(fs.rootHandle(), `C:\Windows`, false, true)
	assertErrno(t, err, wasi.ENOTCAPABLE)
}

func TestResolveNulByteIsEILSEQ(t *testing.T) {
	fs := newFakeFs()
	r := newResolver(fs)
	_, err := r.Resolve(fs.rootHandle(), "foo\x00bar", false, true)
	assertErrno(t, err, wasi.EILSEQ)
}

func TestResolveSymlinkInMiddleExpandsTransparently(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	real := fs.mkdir(root, "real")
	fs.mkfile(real, "target")
	fs.mksymlink(root, "link", "real")

	r := newResolver(fs)
	res, err := r.Resolve(fs.rootHandle(), "link/target", false, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Leaf != "target" || fs.nodes[res.Dir] != real {
		t.Fatalf("Resolve did not transparently expand the middle symlink: leaf=%q dir=%v", res.Leaf, fs.nodes[res.Dir])
	}
}

func TestResolveSymlinkLoopHitsELOOP(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	fs.mksymlink(root, "loop", "loop")

	r := newResolver(fs)
	_, err := r.Resolve(fs.rootHandle(), "loop", true, true)
	assertErrno(t, err, wasi.ELOOP)
}

func TestResolveFinalSymlinkNotFollowedByDefault(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	fs.mkfile(root, "real")
	fs.mksymlink(root, "link", "real")

	r := newResolver(fs)
	res, err := r.Resolve(fs.rootHandle(), "link", false, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Leaf != "link" || fs.nodes[res.Dir] != root {
		t.Fatalf("expected unresolved leaf \"link\" under root, got leaf=%q", res.Leaf)
	}
}

func TestResolveFinalSymlinkFollowedWhenRequested(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	fs.mkfile(root, "real")
	fs.mksymlink(root, "link", "real")

	r := newResolver(fs)
	res, err := r.Resolve(fs.rootHandle(), "link", true, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Leaf != "real" || fs.nodes[res.Dir] != root {
		t.Fatalf("expected expanded leaf \"real\", got leaf=%q", res.Leaf)
	}
}

func TestResolveTrailingSlashOnFileProbesAsDirectory(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	fs.mkfile(root, "file")

	r := newResolver(fs)
	// needsFinalComponent=false models an op like stat that is happy with a
	// dangling/non-directory target; a trailing slash still forces a
	// directory probe, which must surface the host's ENOTDIR.
	_, err := r.Resolve(fs.rootHandle(), "file/", false, false)
	assertErrno(t, err, wasi.ENOTDIR)
}

func TestResolveDoubleSlashCollapses(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	foo := fs.mkdir(root, "foo")
	fs.mkfile(foo, "bar")

	r := newResolver(fs)
	res, err := r.Resolve(fs.rootHandle(), "foo//bar", false, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Leaf != "bar" || fs.nodes[res.Dir] != foo {
		t.Fatalf("double-slash path did not resolve like a single slash: leaf=%q", res.Leaf)
	}
}

func TestResolveDotComponentIsSkipped(t *testing.T) {
	fs := newFakeFs()
	root := fs.nodes[fs.rootHandle()]
	foo := fs.mkdir(root, "foo")
	fs.mkfile(foo, "bar")

	r := newResolver(fs)
	res, err := r.Resolve(fs.rootHandle(), "./foo/./bar", false, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Leaf != "bar" || fs.nodes[res.Dir] != foo {
		t.Fatalf("leading/embedded '.' components were not skipped: leaf=%q", res.Leaf)
	}
}

func assertErrno(t *testing.T, err error, want wasi.Errno) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want errno %v", want)
	}
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("err = %v (%T), want *pathresolver.Error", err, err)
	}
	if re.Errno != want {
		t.Fatalf("errno = %v, want %v", re.Errno, want)
	}
}
