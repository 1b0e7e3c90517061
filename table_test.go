package wasicore

import (
	"testing"

	"github.com/dispatchrun/wasicore/wasi"
)

func TestFdTableReservesStdio(t *testing.T) {
	var tbl fdTable
	tbl.insertAt(0, &FdEntry{Kind: KindStdin})
	tbl.insertAt(1, &FdEntry{Kind: KindStdout})
	tbl.insertAt(2, &FdEntry{Kind: KindStderr})

	fd, errno := tbl.insert(&FdEntry{Kind: KindFile})
	if errno != wasi.ESUCCESS {
		t.Fatalf("insert: %s", errno.Name())
	}
	if fd != 3 {
		t.Fatalf("first non-stdio insert = %d, want 3", fd)
	}
}

func TestFdTableInsertPicksSmallestFreed(t *testing.T) {
	var tbl fdTable
	tbl.insertAt(0, &FdEntry{Kind: KindStdin})
	tbl.insertAt(1, &FdEntry{Kind: KindStdout})
	tbl.insertAt(2, &FdEntry{Kind: KindStderr})

	a, _ := tbl.insert(&FdEntry{Kind: KindFile})
	b, _ := tbl.insert(&FdEntry{Kind: KindFile})
	c, _ := tbl.insert(&FdEntry{Kind: KindFile})
	if a != 3 || b != 4 || c != 5 {
		t.Fatalf("inserts = %d,%d,%d, want 3,4,5", a, b, c)
	}

	// Free 3 and 4 in that order; the next insert must take 3, the smallest
	// unused number, not the most recently freed.
	tbl.remove(a)
	tbl.remove(b)
	d, errno := tbl.insert(&FdEntry{Kind: KindFile})
	if errno != wasi.ESUCCESS || d != 3 {
		t.Fatalf("insert after freeing 3,4 = (%d, %s), want (3, success)", d, errno.Name())
	}
}

func TestFdTableGetUnknownIsEBADF(t *testing.T) {
	var tbl fdTable
	if _, errno := tbl.get(5, 0, 0); errno != wasi.EBADF {
		t.Fatalf("get(unknown) = %s, want EBADF", errno.Name())
	}
}

func TestFdTableRemoveRefusesPreopen(t *testing.T) {
	var tbl fdTable
	tbl.insertAt(3, &FdEntry{Kind: KindDirectory, PreopenPath: "/"})
	if _, errno := tbl.remove(3); errno != wasi.ENOTSUP {
		t.Fatalf("remove(preopen) = %s, want ENOTSUP", errno.Name())
	}
}

func TestFdTableRemoveUnknownIsEBADF(t *testing.T) {
	var tbl fdTable
	if _, errno := tbl.remove(9); errno != wasi.EBADF {
		t.Fatalf("remove(unknown) = %s, want EBADF", errno.Name())
	}
}

func TestFdTableRenumber(t *testing.T) {
	var tbl fdTable
	a := &FdEntry{Kind: KindFile, RightsBase: wasi.FD_READ}
	b := &FdEntry{Kind: KindFile, RightsBase: wasi.FD_WRITE}
	tbl.insertAt(3, a)
	tbl.insertAt(4, b)

	var closed []*FdEntry
	if errno := tbl.renumber(3, 4, func(e *FdEntry) { closed = append(closed, e) }); errno != wasi.ESUCCESS {
		t.Fatalf("renumber: %s", errno.Name())
	}
	if len(closed) != 1 || closed[0] != b {
		t.Fatalf("renumber should close to's old occupant exactly once, closed=%v", closed)
	}
	if _, errno := tbl.get(3, 0, 0); errno != wasi.EBADF {
		t.Fatalf("get(from) after renumber = %s, want EBADF", errno.Name())
	}
	got, errno := tbl.get(4, 0, 0)
	if errno != wasi.ESUCCESS || got != a {
		t.Fatalf("get(to) after renumber = (%v, %s), want (%v, success)", got, errno.Name(), a)
	}
}

func TestFdTableRenumberRequiresBothSides(t *testing.T) {
	var tbl fdTable
	tbl.insertAt(3, &FdEntry{Kind: KindFile})

	if errno := tbl.renumber(3, 9, func(*FdEntry) {}); errno != wasi.EBADF {
		t.Fatalf("renumber(_, missing) = %s, want EBADF", errno.Name())
	}
	if errno := tbl.renumber(9, 3, func(*FdEntry) {}); errno != wasi.EBADF {
		t.Fatalf("renumber(missing, _) = %s, want EBADF", errno.Name())
	}
}

func TestFdTableRenumberRefusesPreopenEitherSide(t *testing.T) {
	var tbl fdTable
	tbl.insertAt(3, &FdEntry{Kind: KindDirectory, PreopenPath: "/"})
	tbl.insertAt(4, &FdEntry{Kind: KindFile})

	if errno := tbl.renumber(3, 4, func(*FdEntry) {}); errno != wasi.ENOTSUP {
		t.Fatalf("renumber(preopen, _) = %s, want ENOTSUP", errno.Name())
	}
	if errno := tbl.renumber(4, 3, func(*FdEntry) {}); errno != wasi.ENOTSUP {
		t.Fatalf("renumber(_, preopen) = %s, want ENOTSUP", errno.Name())
	}
}

func TestFdTableRenumberSameFdIsNoop(t *testing.T) {
	var tbl fdTable
	a := &FdEntry{Kind: KindFile}
	tbl.insertAt(3, a)

	closes := 0
	if errno := tbl.renumber(3, 3, func(*FdEntry) { closes++ }); errno != wasi.ESUCCESS {
		t.Fatalf("renumber(fd, fd) = %s, want success", errno.Name())
	}
	if closes != 0 {
		t.Fatalf("renumber(fd, fd) closed %d entries, want 0", closes)
	}
	if got, errno := tbl.get(3, 0, 0); errno != wasi.ESUCCESS || got != a {
		t.Fatalf("entry lost by self-renumber")
	}
}

func TestFdTableEachVisitsLiveEntries(t *testing.T) {
	var tbl fdTable
	tbl.insertAt(0, &FdEntry{Kind: KindStdin})
	tbl.insertAt(3, &FdEntry{Kind: KindDirectory, PreopenPath: "/"})

	seen := map[wasi.Fd]bool{}
	tbl.each(func(fd wasi.Fd, e *FdEntry) bool {
		seen[fd] = true
		return true
	})
	if !seen[0] || !seen[3] {
		t.Fatalf("each visited %v, want {0,3}", seen)
	}
}
