//go:build windows

package hostfs

import (
	"errors"

	"golang.org/x/sys/windows"

	"github.com/dispatchrun/wasicore/wasi"
)

// ToErrno translates a Win32 error observed through this adapter into the
// stable wasi.Errno space, the Windows counterpart to the Linux
// errno table. Anything this table doesn't recognize maps to ENOTSUP.
func ToErrno(err error) wasi.Errno {
	if err == nil {
		return wasi.ESUCCESS
	}
	var errno windows.Errno
	if !errors.As(err, &errno) {
		return wasi.ENOTSUP
	}
	if e, ok := winErrnoTable[errno]; ok {
		return e
	}
	return wasi.ENOTSUP
}

var winErrnoTable = map[windows.Errno]wasi.Errno{
	windows.ERROR_FILE_NOT_FOUND:        wasi.ENOENT,
	windows.ERROR_PATH_NOT_FOUND:        wasi.ENOENT,
	windows.ERROR_ACCESS_DENIED:         wasi.EACCES,
	windows.ERROR_INVALID_HANDLE:        wasi.EBADF,
	windows.ERROR_NOT_ENOUGH_MEMORY:     wasi.ENOMEM,
	windows.ERROR_INVALID_PARAMETER:     wasi.EINVAL,
	windows.ERROR_DISK_FULL:             wasi.ENOSPC,
	windows.ERROR_FILE_EXISTS:           wasi.EEXIST,
	windows.ERROR_ALREADY_EXISTS:        wasi.EEXIST,
	windows.ERROR_DIR_NOT_EMPTY:         wasi.ENOTEMPTY,
	windows.ERROR_NOT_SUPPORTED:         wasi.ENOTSUP,
	windows.ERROR_SHARING_VIOLATION:     wasi.EBUSY,
	windows.ERROR_LOCK_VIOLATION:        wasi.EBUSY,
	windows.ERROR_NOT_SAME_DEVICE:       wasi.EXDEV,
	windows.ERROR_DIRECTORY:             wasi.ENOTDIR,
	windows.ERROR_NO_MORE_FILES:         wasi.ESUCCESS,
	windows.ERROR_FILENAME_EXCED_RANGE:  wasi.ENAMETOOLONG,
	windows.ERROR_NEGATIVE_SEEK:         wasi.EINVAL,
	windows.ERROR_SEEK:                  wasi.ESPIPE,
	windows.ERROR_CANT_RESOLVE_FILENAME: wasi.ELOOP,
	windows.ERROR_INVALID_NAME:          wasi.ENOENT,
	windows.ERROR_BAD_PATHNAME:          wasi.ENOENT,
	windows.ERROR_OPERATION_ABORTED:     wasi.ECANCELED,
	windows.ERROR_IO_PENDING:            wasi.EINPROGRESS,
	windows.ERROR_NOACCESS:              wasi.EACCES,
	windows.ERROR_WRITE_PROTECT:         wasi.EROFS,
	windows.ERROR_HANDLE_EOF:            wasi.ESUCCESS,
	windows.ERROR_BROKEN_PIPE:           wasi.EPIPE,
	windows.ERROR_NO_DATA:               wasi.EPIPE,
	windows.ERROR_INVALID_FUNCTION:      wasi.ENOSYS,
	windows.ERROR_TOO_MANY_OPEN_FILES:   wasi.EMFILE,
}
