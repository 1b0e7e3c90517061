// Package pathresolver implements the sandboxed path walk: turning a
// guest-supplied relative path anchored at some already-open directory
// descriptor into a (directory handle, leaf name) pair the caller can hand
// to a single HostFs call, without ever letting the walk escape the
// directory it started from.
//
// The walk never joins path strings. Every intermediate component is opened
// for real, relative to the previous directory, with NOFOLLOW|DIRECTORY, so
// a symlink planted mid-path is observed and counted rather than silently
// followed by the host's own string-based lookup.
package pathresolver

import (
	"strings"

	"github.com/dispatchrun/wasicore/internal/hostfs"
	"github.com/dispatchrun/wasicore/wasi"
)

// maxSymlinkExpansions bounds total symlink expansions across one resolve
// call; exceeding it yields ELOOP.
const maxSymlinkExpansions = 128

// Error is returned by Resolve, carrying the already-translated errno and
// the original host error (nil for errors synthesized by the walker itself,
// e.g. the absolute-path or ".." escape checks).
type Error struct {
	Errno wasi.Errno
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Errno.Name() + ": " + e.Cause.Error()
	}
	return e.Errno.Name()
}

func (e *Error) Unwrap() error { return e.Cause }

func fail(errno wasi.Errno, cause error) *Error { return &Error{Errno: errno, Cause: cause} }

// Result is what a successful Resolve call returns: the leaf's directory,
// not yet closed by the caller, and the single path component to apply to
// it. Whoever receives the Result must close Dir (HostFs.Close) exactly
// once, after the operation that asked for it has used it.
type Result struct {
	Dir  hostfs.Handle
	Leaf string
}

// Resolver walks guest paths against a HostFs, translating host errors with
// toErrno (supplied by the caller so this package stays platform-agnostic).
type Resolver struct {
	Fs      hostfs.HostFs
	ToErrno func(error) wasi.Errno
}

// Resolve runs the two-stack walk. start is the descriptor the
// path is relative to; the caller has already verified its rights. follow
// controls whether a symlink at the very last component is itself expanded.
// needsFinalComponent is false for operations content to observe a
// dangling final component (e.g. path_filestat_get); with it false, a
// final component written with a trailing slash is opened as a directory.
func (r *Resolver) Resolve(start hostfs.Handle, path string, follow, needsFinalComponent bool) (Result, error) {
	if strings.IndexByte(path, 0) >= 0 {
		return Result{}, fail(wasi.EILSEQ, nil)
	}
	if path == "" {
		return Result{}, fail(wasi.ENOENT, nil)
	}

	dirStack, err := r.newDirStack(start)
	if err != nil {
		return Result{}, err
	}
	defer dirStack.closeAll()

	pathStack := []string{path}
	expansions := 0

	for len(pathStack) > 0 {
		n := len(pathStack)
		cur := pathStack[n-1]
		pathStack = pathStack[:n-1]

		cur = collapseSlashes(cur)
		// An absolute path (leading '/') or a bare drive-letter-like prefix
		// such as "C:" can never be resolved inside a sandboxed subtree.
		if isAbsoluteLike(cur) {
			return Result{}, fail(wasi.ENOTCAPABLE, nil)
		}

		trailingSlash := strings.HasSuffix(cur, "/")
		head, tail, _ := splitComponent(cur)
		if tail != "" {
			pathStack = append(pathStack, tail)
		}

		switch head {
		case "":
			continue
		case ".":
			continue
		case "..":
			if err := dirStack.pop(); err != nil {
				return Result{}, err
			}
			continue
		}

		isFinal := len(pathStack) == 0
		endsInSlash := trailingSlash && tail == ""

		if !isFinal || (endsInSlash && !needsFinalComponent) {
			h, expandErr := r.Fs.OpenAt(dirStack.top(), head, hostfs.O_DIRECTORY|hostfs.O_NOFOLLOW, 0)
			if expandErr == nil {
				dirStack.push(h)
				continue
			}
			if !r.looksLikeSymlink(expandErr) {
				return Result{}, fail(r.ToErrno(expandErr), expandErr)
			}
			target, linkErr := r.readlink(dirStack.top(), head)
			if linkErr != nil {
				// The failure merely looked like a symlink indication
				// (e.g. ENOTDIR); it wasn't one, so the original error
				// from the directory-open attempt stands.
				return Result{}, fail(r.ToErrno(expandErr), expandErr)
			}
			expansions++
			if expansions > maxSymlinkExpansions {
				return Result{}, fail(wasi.ELOOP, nil)
			}
			if endsInSlash && !strings.HasSuffix(target, "/") {
				target += "/"
			}
			pathStack = append(pathStack, target)
			continue
		}

		if endsInSlash || follow {
			target, linkErr := r.readlink(dirStack.top(), head)
			if linkErr == nil {
				expansions++
				if expansions > maxSymlinkExpansions {
					return Result{}, fail(wasi.ELOOP, nil)
				}
				if endsInSlash && !strings.HasSuffix(target, "/") {
					target += "/"
				}
				pathStack = append(pathStack, target)
				continue
			}
			// Not a symlink (EINVAL/ENOENT from readlink): fall through and
			// return this component as the leaf.
		}

		return dirStack.detach(head), nil
	}

	return dirStack.detach("."), nil
}

func (r *Resolver) readlink(dir hostfs.Handle, name string) (string, *Error) {
	buf := make([]byte, wasi.MaxPathLen)
	n, err := r.Fs.ReadlinkAt(dir, name, buf)
	if err != nil {
		return "", fail(r.ToErrno(err), err)
	}
	return string(buf[:n]), nil
}

// looksLikeSymlink reports whether a NOFOLLOW|DIRECTORY open's failure is
// the host's way of saying "that component is a symlink", across the
// several errno spellings different platforms use for it.
func (r *Resolver) looksLikeSymlink(err error) bool {
	switch r.ToErrno(err) {
	case wasi.ELOOP, wasi.EMLINK, wasi.ENOTDIR:
		return true
	default:
		return false
	}
}

func isAbsoluteLike(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	// A drive-letter prefix like "C:" or "D:\" has no meaning under a
	// preopen root and must never be treated as a relative component.
	if len(p) >= 2 && p[1] == ':' && isASCIILetter(p[0]) {
		return true
	}
	return false
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// collapseSlashes reduces any run of consecutive '/' to a single one, so a
// symlink target or joined remainder like "a//b" splits into components
// "a", "b" instead of manufacturing a spurious empty component that would
// otherwise look like a leading-slash (absolute) marker one level down.
func collapseSlashes(p string) string {
	var b strings.Builder
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// splitComponent splits a (possibly slash-suffixed) relative path into its
// first component and the remainder, stripping exactly one separating '/'.
// The returned tail still carries its own trailing '/' if the original had
// one beyond the first separator.
func splitComponent(p string) (head, tail string, hadSlash bool) {
	i := strings.IndexByte(p, '/')
	if i < 0 {
		return p, "", false
	}
	return p[:i], p[i+1:], true
}

// dirStack is the owned, sandboxed directory handle stack. Every walk
// starts from a cloned directory handle, and every handle acquired while
// descending is closed exactly once.
type dirStack struct {
	fs      hostfs.HostFs
	handles []hostfs.Handle
}

func (r *Resolver) newDirStack(start hostfs.Handle) (*dirStack, *Error) {
	cloned, err := r.Fs.Dup(start)
	if err != nil {
		return nil, fail(r.ToErrno(err), err)
	}
	return &dirStack{fs: r.Fs, handles: []hostfs.Handle{cloned}}, nil
}

func (s *dirStack) top() hostfs.Handle { return s.handles[len(s.handles)-1] }

func (s *dirStack) push(h hostfs.Handle) { s.handles = append(s.handles, h) }

// pop closes and removes the top handle. Popping element 0, the preopen
// anchor itself, is the ".." escape this whole package exists to prevent.
func (s *dirStack) pop() *Error {
	if len(s.handles) <= 1 {
		return fail(wasi.ENOTCAPABLE, nil)
	}
	top := s.handles[len(s.handles)-1]
	s.handles = s.handles[:len(s.handles)-1]
	s.fs.Close(top)
	return nil
}

// closeAll closes every handle still on the stack. Resolve defers this
// unconditionally: on failure nothing has been detached, so it closes the
// whole stack including the cloned root; on success detach has already
// removed the one handle the caller keeps, so this closes whatever remains
// below it (the clone from newDirStack, unless the clone is the detached
// handle, and every directory still on the stack). Handles dropped by ".."
// were already closed by pop, so every acquired handle is closed exactly
// once.
func (s *dirStack) closeAll() {
	for len(s.handles) > 0 {
		top := s.handles[len(s.handles)-1]
		s.handles = s.handles[:len(s.handles)-1]
		s.fs.Close(top)
	}
}

// detach hands the current top handle to the caller as the Result's Dir,
// removing it from the stack so the deferred closeAll doesn't close it out
// from under them.
func (s *dirStack) detach(leaf string) Result {
	top := s.handles[len(s.handles)-1]
	s.handles = s.handles[:len(s.handles)-1]
	return Result{Dir: top, Leaf: leaf}
}
