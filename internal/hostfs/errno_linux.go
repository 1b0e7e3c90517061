//go:build linux

package hostfs

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/dispatchrun/wasicore/wasi"
)

// ToErrno translates a host error observed through this adapter into the
// stable, closed wasi.Errno space. It is the single point where a
// raw unix.Errno (or any error wrapping one, like an os.PathError)
// crosses into guest-visible ABI territory.
// Errors this adapter cannot recognize map to ENOTSUP, never EIO: a silent
// wrong answer is worse than a conservative "not supported" the guest can
// act on.
func ToErrno(err error) wasi.Errno {
	if err == nil {
		return wasi.ESUCCESS
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return wasi.ENOTSUP
	}
	if e, ok := errnoTable[errno]; ok {
		return e
	}
	return wasi.ENOTSUP
}

var errnoTable = map[unix.Errno]wasi.Errno{
	unix.E2BIG:           wasi.E2BIG,
	unix.EACCES:          wasi.EACCES,
	unix.EADDRINUSE:      wasi.EADDRINUSE,
	unix.EADDRNOTAVAIL:   wasi.EADDRNOTAVAIL,
	unix.EAFNOSUPPORT:    wasi.EAFNOSUPPORT,
	unix.EAGAIN:          wasi.EAGAIN,
	unix.EALREADY:        wasi.EALREADY,
	unix.EBADF:           wasi.EBADF,
	unix.EBADMSG:         wasi.EBADMSG,
	unix.EBUSY:           wasi.EBUSY,
	unix.ECANCELED:       wasi.ECANCELED,
	unix.ECHILD:          wasi.ECHILD,
	unix.ECONNABORTED:    wasi.ECONNABORTED,
	unix.ECONNREFUSED:    wasi.ECONNREFUSED,
	unix.ECONNRESET:      wasi.ECONNRESET,
	unix.EDEADLK:         wasi.EDEADLK,
	unix.EDESTADDRREQ:    wasi.EDESTADDRREQ,
	unix.EDOM:            wasi.EDOM,
	unix.EDQUOT:          wasi.EDQUOT,
	unix.EEXIST:          wasi.EEXIST,
	unix.EFAULT:          wasi.EFAULT,
	unix.EFBIG:           wasi.EFBIG,
	unix.EHOSTUNREACH:    wasi.EHOSTUNREACH,
	unix.EIDRM:           wasi.EIDRM,
	unix.EILSEQ:          wasi.EILSEQ,
	unix.EINPROGRESS:     wasi.EINPROGRESS,
	unix.EINTR:           wasi.EINTR,
	unix.EINVAL:          wasi.EINVAL,
	unix.EIO:             wasi.EIO,
	unix.EISCONN:         wasi.EISCONN,
	unix.EISDIR:          wasi.EISDIR,
	unix.ELOOP:           wasi.ELOOP,
	unix.EMFILE:          wasi.EMFILE,
	unix.EMLINK:          wasi.EMLINK,
	unix.EMSGSIZE:        wasi.EMSGSIZE,
	unix.EMULTIHOP:       wasi.EMULTIHOP,
	unix.ENAMETOOLONG:    wasi.ENAMETOOLONG,
	unix.ENETDOWN:        wasi.ENETDOWN,
	unix.ENETRESET:       wasi.ENETRESET,
	unix.ENETUNREACH:     wasi.ENETUNREACH,
	unix.ENFILE:          wasi.ENFILE,
	unix.ENOBUFS:         wasi.ENOBUFS,
	unix.ENODEV:          wasi.ENODEV,
	unix.ENOENT:          wasi.ENOENT,
	unix.ENOEXEC:         wasi.ENOEXEC,
	unix.ENOLCK:          wasi.ENOLCK,
	unix.ENOLINK:         wasi.ENOLINK,
	unix.ENOMEM:          wasi.ENOMEM,
	unix.ENOMSG:          wasi.ENOMSG,
	unix.ENOPROTOOPT:     wasi.ENOPROTOOPT,
	unix.ENOSPC:          wasi.ENOSPC,
	unix.ENOSYS:          wasi.ENOSYS,
	unix.ENOTCONN:        wasi.ENOTCONN,
	unix.ENOTDIR:         wasi.ENOTDIR,
	unix.ENOTEMPTY:       wasi.ENOTEMPTY,
	unix.ENOTRECOVERABLE: wasi.ENOTRECOVERABLE,
	unix.ENOTSOCK:        wasi.ENOTSOCK,
	unix.ENOTSUP:         wasi.ENOTSUP,
	unix.ENOTTY:          wasi.ENOTTY,
	unix.ENXIO:           wasi.ENXIO,
	unix.EOVERFLOW:       wasi.EOVERFLOW,
	unix.EOWNERDEAD:      wasi.EOWNERDEAD,
	unix.EPERM:           wasi.EPERM,
	unix.EPIPE:           wasi.EPIPE,
	unix.EPROTO:          wasi.EPROTO,
	unix.EPROTONOSUPPORT: wasi.EPROTONOSUPPORT,
	unix.EPROTOTYPE:      wasi.EPROTOTYPE,
	unix.ERANGE:          wasi.ERANGE,
	unix.EROFS:           wasi.EROFS,
	unix.ESPIPE:          wasi.ESPIPE,
	unix.ESRCH:           wasi.ESRCH,
	unix.ESTALE:          wasi.ESTALE,
	unix.ETIMEDOUT:       wasi.ETIMEDOUT,
	unix.ETXTBSY:         wasi.ETXTBSY,
	unix.EXDEV:           wasi.EXDEV,
}
