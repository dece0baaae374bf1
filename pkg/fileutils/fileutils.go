// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package fileutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

const (
	regularSecure os.FileMode = syscall.S_IFREG | 0600
	avoidMask     os.FileMode = 0113
)

// RegularFilePerms() takes an octal string representation and returns
// a FileMode permission.
//
// If the string can not be parsed into a 32 bit unsigned octal, or if
// the passed string is not for a regular file then an error is returned,
// and the default regularSecure file mode is returned.
//
// This functions ensures that it never returns a world writable permission and
// that the owner always has read/write permissions
func RegularFilePerms(s string) (os.FileMode, error) {
	if s == "" {
		return regularSecure, errors.New("passed permissions are empty")
	}

	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return regularSecure, err
	}

	// clear out mode flags and ensure avoidMask perms are not set
	mode := (os.FileMode(n) & os.FileMode(0000777)) & ^avoidMask

	mode |= regularSecure
	return mode, nil
}

// WriteFileAtomic writes data to a temporary file next to name and renames
// it over name, so readers never observe a partially written file.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Chmod(perm.Perm()); err != nil {
		f.Close()
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, name)
}
