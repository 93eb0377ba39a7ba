//go:build !unix

package ota

import "errors"

func execSelf(string, []string, []string) error {
	return errors.New("exec not supported on this platform")
}
