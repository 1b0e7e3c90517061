package wasicore

import (
	"time"

	"github.com/dispatchrun/wasicore/internal/hostfs"
	"github.com/dispatchrun/wasicore/wasi"
)

// PollOneoff implements "poll_oneoff". Every clock subscription
// is converted to a relative delay (saturating at zero for a past absolute
// deadline); the minimum delay across clock subscriptions becomes the single
// HostFs.Poll timeout, and every fd subscription is checked for the
// requested readiness in the same call. Only subscriptions that actually
// fired produce events: failed lookups immediately, ready fds after the
// poll, and, when nothing else fired first, the clock subscription that
// set the timeout. EINTR is retried by HostFs.Poll itself, keeping the
// already-computed deadline, so the delays here are computed exactly once
// per call.
func (c *Ctx) PollOneoff(subs []wasi.Subscription) ([]wasi.Event, wasi.Errno) {
	if len(subs) == 0 {
		return nil, wasi.EINVAL
	}

	events := make([]wasi.Event, 0, len(subs))
	var pollFds []hostfs.PollFd
	var pollIdx []int
	haveClock := false
	clockIdx := -1
	var minDelay time.Duration

	for i, s := range subs {
		switch s.Tag {
		case wasi.SubscriptionTagClock:
			d, errno := c.clockSubscriptionDelay(s.Clock)
			if errno != wasi.ESUCCESS {
				events = append(events, wasi.Event{Userdata: s.Userdata, Error: errno, Tag: s.Tag})
				continue
			}
			if !haveClock || d < minDelay {
				minDelay = d
				clockIdx = i
				haveClock = true
			}
		case wasi.SubscriptionTagFdRead, wasi.SubscriptionTagFdWrite:
			fd := s.FdRead.FD
			if s.Tag == wasi.SubscriptionTagFdWrite {
				fd = s.FdWrite.FD
			}
			e, errno := c.fds.get(fd, wasi.POLL_FD_READWRITE, 0)
			if errno != wasi.ESUCCESS {
				events = append(events, wasi.Event{Userdata: s.Userdata, Error: errno, Tag: s.Tag})
				continue
			}
			want := hostfs.PollReadable
			if s.Tag == wasi.SubscriptionTagFdWrite {
				want = hostfs.PollWritable
			}
			pollFds = append(pollFds, hostfs.PollFd{Handle: e.Handle, Events: want})
			pollIdx = append(pollIdx, i)
		default:
			events = append(events, wasi.Event{Userdata: s.Userdata, Error: wasi.EINVAL, Tag: s.Tag})
		}
	}

	timeout := time.Duration(-1)
	if haveClock {
		timeout = minDelay
	}
	// An already-failed subscription means the caller gets results now; the
	// poll below only samples current readiness instead of blocking.
	if len(events) > 0 {
		timeout = 0
	}

	fdFired := false
	if len(pollFds) > 0 {
		observed, err := c.fs.Poll(pollFds, timeout)
		if err != nil {
			return nil, c.errno(err)
		}
		for j, idx := range pollIdx {
			s := subs[idx]
			var flags wasi.Eventrwflags
			if observed[j]&hostfs.PollHangup != 0 {
				flags |= wasi.EventFdReadwriteHangup
			}
			ready := (s.Tag == wasi.SubscriptionTagFdRead && observed[j]&hostfs.PollReadable != 0) ||
				(s.Tag == wasi.SubscriptionTagFdWrite && observed[j]&hostfs.PollWritable != 0)
			if !ready && flags == 0 {
				continue
			}
			fdFired = true
			events = append(events, wasi.Event{
				Userdata: s.Userdata,
				Tag:      s.Tag,
				// Readiness is a level signal here; the exact transferable
				// byte count is host-dependent and reported as 1.
				FdReadwrite: wasi.EventFdReadwrite{Nbytes: 1, Flags: flags},
			})
		}
	} else if haveClock && len(events) == 0 {
		time.Sleep(minDelay)
	}

	if haveClock && !fdFired && len(events) == 0 {
		events = append(events, wasi.Event{
			Userdata: subs[clockIdx].Userdata,
			Tag:      wasi.SubscriptionTagClock,
		})
	}
	return events, wasi.ESUCCESS
}

// clockSubscriptionDelay converts a clock subscription into the relative
// delay PollOneoff should wait, saturating at zero for an already-past
// absolute deadline.
func (c *Ctx) clockSubscriptionDelay(cs wasi.SubscriptionClock) (time.Duration, wasi.Errno) {
	if !cs.Abstime {
		return time.Duration(cs.Timeout), wasi.ESUCCESS
	}
	now, err := c.fs.ClockNow(cs.ID)
	if err != nil {
		return 0, c.errno(err)
	}
	delay := int64(cs.Timeout) - now
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay), wasi.ESUCCESS
}
