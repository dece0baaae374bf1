// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package strutils

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrTooLong is returned by PutCString when a string does not fit its field.
	ErrTooLong = errors.New("string does not fit in field")
	// ErrEmbeddedNUL is returned for strings that would be cut short by
	// their own NUL terminator.
	ErrEmbeddedNUL = errors.New("string contains a NUL byte")
)

// CString returns the bytes of b up to the first NUL, or all of b if there
// is none.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// CheckCString returns an error if s cannot be stored as a NUL terminated
// string.
func CheckCString(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrEmbeddedNUL, s)
	}
	return nil
}

// PutCString copies s into the fixed size field dst, NUL terminating it and
// zeroing the rest of the field. s must leave room for the terminator.
func PutCString(dst []byte, s string) error {
	if err := CheckCString(s); err != nil {
		return err
	}
	if len(s) >= len(dst) {
		return fmt.Errorf("%w: %q (%d bytes) in %d byte field", ErrTooLong, s, len(s), len(dst))
	}
	n := copy(dst, s)
	clear(dst[n:])
	return nil
}

// ParseSize parses sizes like 4096, 64K, 16M or 1G.
func ParseSize(str string) (int, error) {
	if str == "" {
		return 0, errors.New("empty size")
	}
	suffix := str[len(str)-1:]

	if !strings.Contains("KMG", suffix) {
		return strconv.Atoi(str)
	}

	val, err := strconv.Atoi(str[0 : len(str)-1])
	if err != nil {
		return 0, err
	}

	switch suffix {
	case "K":
		return val * 1024, nil
	case "M":
		return val * 1024 * 1024, nil
	case "G":
		return val * 1024 * 1024 * 1024, nil
	}

	// never reached
	return 0, nil
}

func SizeWithSuffix(size int) string {
	suffix := [4]string{"", "K", "M", "G"}

	i := 0
	for size > 1024 && i < 3 {
		size = size / 1024
		i++
	}

	return fmt.Sprintf("%d%s", size, suffix[i])
}
