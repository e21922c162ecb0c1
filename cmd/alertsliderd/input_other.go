//go:build !linux

package main

import (
	"errors"
	"os"
)

// readInputEventsEpoll is only available on Linux.
func readInputEventsEpoll(files []*os.File, sources []string, events chan<- deviceEvent, readErr chan<- error, done <-chan struct{}) {
	sendReadErr(readErr, errors.New("epoll input: not supported on this platform (requires Linux)"), done)
}
