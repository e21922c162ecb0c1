//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// readInputEventsEpoll reads from multiple input devices using epoll.
// sources[i] is the source name reported for files[i].
//
// One goroutine services every device; the kernel wakes us only when a
// device has data, or every epollWaitMS so that done is noticed.
func readInputEventsEpoll(files []*os.File, sources []string, events chan<- deviceEvent, readErr chan<- error, done <-chan struct{}) {
	if len(files) == 0 {
		sendReadErr(readErr, fmt.Errorf("no input devices provided"), done)
		return
	}
	if len(sources) != len(files) {
		sendReadErr(readErr, fmt.Errorf("epoll: %d files but %d source names", len(files), len(sources)), done)
		return
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		sendReadErr(readErr, fmt.Errorf("epoll_create1: %w", err), done)
		return
	}
	defer unix.Close(epfd)

	type registered struct {
		f      *os.File
		source string
	}
	byFd := make(map[int]registered)

	for i, f := range files {
		fd := int(f.Fd())
		byFd[fd] = registered{f: f, source: sources[i]}

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			sendReadErr(readErr, fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err), done)
			return
		}
	}

	const (
		maxEvents   = 16
		epollWaitMS = 250
	)
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollWaitMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			sendReadErr(readErr, fmt.Errorf("epoll_wait: %w", err), done)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			r := byFd[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				// Any device error is fatal; the supervisor restarts the daemon.
				sendReadErr(readErr, fmt.Errorf("device error/hangup: %s (fd=%d)", r.f.Name(), fd), done)
				return
			}

			if _, err := r.f.Read(buf); err != nil {
				sendReadErr(readErr, fmt.Errorf("read from %s: %w", r.f.Name(), err), done)
				return
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				continue
			}

			select {
			case events <- deviceEvent{source: r.source, ev: ev}:
			case <-done:
				return
			}
		}
	}
}
