//go:build linux

package player

import "golang.org/x/sys/unix"

// maxPriority raises the calling thread's scheduling priority as far as
// the kernel allows. The drive goroutine is locked to its OS thread, so
// tid 0 (self) targets the right thread.
func maxPriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, -20)
}
