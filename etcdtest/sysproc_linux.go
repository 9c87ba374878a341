//go:build linux

package etcdtest

import "syscall"

// sysProcAttr terminates etcd if the test binary dies first, as on a
// panic of a test timeout.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
