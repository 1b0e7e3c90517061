package wasi

import (
	"encoding/binary"
	"time"
)

// MaxPathLen is the size of the buffer the path resolver reads a symlink
// target into, matching the preview1 ABI's PATH_MAX-like assumption.
const MaxPathLen = 4096

// Fd is a guest-visible file descriptor number.
type Fd uint32

// NoFd is the sentinel used where no descriptor applies, e.g. resolving an
// absolute host path outside of any guest descriptor.
const NoFd Fd = ^Fd(0)

// Timestamp is nanoseconds since the Unix epoch.
type Timestamp uint64

func (t Timestamp) Time() time.Time { return time.Unix(0, int64(t)) }

// TimestampFromTime converts a time.Time into a Timestamp, mapping the zero
// time.Time to 0 rather than to its out-of-range UnixNano value.
func TimestampFromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UnixNano())
}

type (
	Device    uint64
	Inode     uint64
	Linkcount uint64
	Filesize  uint64
	Filedelta int64
	Size      uint32
)

// Filetype tags the kind of file a descriptor or directory entry refers to.
type Filetype uint8

const (
	Unknown Filetype = iota
	BlockDevice
	CharacterDevice
	Directory
	RegularFile
	SocketDgram
	SocketStream
	SymbolicLink
)

// Filestat is the wire layout of "fd_filestat_get"/"path_filestat_get"
// results: a fixed 64-byte record.
type Filestat struct {
	Dev      Device
	Ino      Inode
	Filetype Filetype
	Nlink    Linkcount
	Size     Filesize
	Atim     Timestamp
	Mtim     Timestamp
	Ctim     Timestamp
}

func (s *Filestat) Marshal() (b [64]byte) {
	binary.LittleEndian.PutUint64(b[0:], uint64(s.Dev))
	binary.LittleEndian.PutUint64(b[8:], uint64(s.Ino))
	binary.LittleEndian.PutUint64(b[16:], uint64(s.Filetype))
	binary.LittleEndian.PutUint64(b[24:], uint64(s.Nlink))
	binary.LittleEndian.PutUint64(b[32:], uint64(s.Size))
	binary.LittleEndian.PutUint64(b[40:], uint64(s.Atim))
	binary.LittleEndian.PutUint64(b[48:], uint64(s.Mtim))
	binary.LittleEndian.PutUint64(b[56:], uint64(s.Ctim))
	return b
}

func (s *Filestat) Unmarshal(b [64]byte) {
	s.Dev = Device(binary.LittleEndian.Uint64(b[0:]))
	s.Ino = Inode(binary.LittleEndian.Uint64(b[8:]))
	s.Filetype = Filetype(binary.LittleEndian.Uint64(b[16:]))
	s.Nlink = Linkcount(binary.LittleEndian.Uint64(b[24:]))
	s.Size = Filesize(binary.LittleEndian.Uint64(b[32:]))
	s.Atim = Timestamp(binary.LittleEndian.Uint64(b[40:]))
	s.Mtim = Timestamp(binary.LittleEndian.Uint64(b[48:]))
	s.Ctim = Timestamp(binary.LittleEndian.Uint64(b[56:]))
}

// Dircookie is an opaque, resumable position within a directory listing.
type Dircookie uint64

// DircookieStart is the cookie passed on the first "fd_readdir" call.
const DircookieStart Dircookie = 0

type Dirnamlen uint32

// Dirent is the fixed-size header preceding each directory entry's raw name
// bytes in an "fd_readdir" buffer.
type Dirent struct {
	Next    Dircookie
	Ino     Inode
	Namelen Dirnamlen
	Type    Filetype
}

// Size is the header size plus the raw name length.
func (d *Dirent) Size() Size { return 24 + Size(d.Namelen) }

func (d *Dirent) Marshal() (b [24]byte) {
	binary.LittleEndian.PutUint64(b[0:], uint64(d.Next))
	binary.LittleEndian.PutUint64(b[8:], uint64(d.Ino))
	binary.LittleEndian.PutUint32(b[16:], uint32(d.Namelen))
	b[20] = byte(d.Type)
	return b
}

func (d *Dirent) Unmarshal(b [24]byte) {
	d.Next = Dircookie(binary.LittleEndian.Uint64(b[0:]))
	d.Ino = Inode(binary.LittleEndian.Uint64(b[8:]))
	d.Namelen = Dirnamlen(binary.LittleEndian.Uint32(b[16:]))
	d.Type = Filetype(b[20])
}

// Whence selects the origin of an "fd_seek" offset.
type Whence uint8

const (
	Set Whence = iota
	Cur
	End
)

// Lookupflags adjusts how the final path component of a path-bearing
// operation is resolved.
type Lookupflags uint32

const (
	SymlinkFollow Lookupflags = 1 << iota
)

func (f Lookupflags) Has(flags Lookupflags) bool { return (f & flags) == flags }

// Oflags are the flags passed to "path_open", distinct from Fdflags.
type Oflags uint16

const (
	O_CREAT Oflags = 1 << iota
	O_DIRECTORY
	O_EXCL
	O_TRUNC
)

func (f Oflags) Has(flags Oflags) bool { return (f & flags) == flags }

// Fdflags are the flags tracked for the lifetime of an open descriptor.
type Fdflags uint16

const (
	F_APPEND Fdflags = 1 << iota
	F_DSYNC
	F_NONBLOCK
	F_RSYNC
	F_SYNC
)

func (f Fdflags) Has(flags Fdflags) bool { return (f & flags) == flags }

// Fdstat is the result of "fd_fdstat_get".
type Fdstat struct {
	Filetype         Filetype
	Flags            Fdflags
	RightsBase       Rights
	RightsInheriting Rights
}

func (s *Fdstat) Marshal() (b [24]byte) {
	b[0] = byte(s.Filetype)
	binary.LittleEndian.PutUint16(b[2:], uint16(s.Flags))
	binary.LittleEndian.PutUint64(b[8:], uint64(s.RightsBase))
	binary.LittleEndian.PutUint64(b[16:], uint64(s.RightsInheriting))
	return b
}

// Fstflags selects which of atim/mtim a "*filestat_set_times" call should
// change, and whether to use the supplied value or "now".
type Fstflags uint16

const (
	ATIM Fstflags = 1 << iota
	ATIM_NOW
	MTIM
	MTIM_NOW
)

func (f Fstflags) Has(flags Fstflags) bool { return (f & flags) == flags }

// Advice values accepted by "fd_advise".
type Advice uint8

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
	AdviceDontNeed
	AdviceNoReuse
)

// ClockID selects which clock "clock_res_get"/"clock_time_get" reads.
type ClockID uint32

const (
	Realtime ClockID = iota
	Monotonic
	ProcessCPUTimeID
	ThreadCPUTimeID
)

// PreopenType tags the union in Prestat; only Dir is defined by preview1.
type PreopenType uint8

const (
	PreopenTypeDir PreopenType = iota
)

// Prestat describes a preopened descriptor: its type and the byte
// length of its guest-visible path, fetched by "fd_prestat_get" before the
// name itself is fetched by "fd_prestat_dir_name".
type Prestat struct {
	Type    PreopenType
	NameLen uint32
}
