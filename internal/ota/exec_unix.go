//go:build unix

package ota

import "syscall"

func execSelf(exe string, argv, env []string) error {
	return syscall.Exec(exe, argv, env)
}
