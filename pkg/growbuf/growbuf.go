// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

// Package growbuf implements an append-only byte table whose capacity
// doubles whenever the next record does not fit.
package growbuf

import (
	"errors"
	"fmt"
)

var ErrOverflow = errors.New("growbuf: capacity overflow")

// Buffer is an append-only table of encoded records. Offsets returned by
// Append stay valid across growth. Any required synchronization needs to
// happen on the caller.
type Buffer struct {
	buf   []byte
	cap   int
	max   int
	grows int
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithMaxCap bounds the capacity of the buffer. A doubling that would exceed
// it fails with ErrOverflow.
func WithMaxCap(max int) Option {
	return func(b *Buffer) {
		b.max = max
	}
}

// New returns an empty buffer with the given initial capacity.
func New(capacity int, opts ...Option) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	b := &Buffer{cap: capacity}
	for _, opt := range opts {
		opt(b)
	}
	b.buf = make([]byte, 0, capacity)
	return b
}

// NewStringTable returns a buffer for NUL terminated strings where offset 0
// is the empty string.
func NewStringTable() *Buffer {
	b := New(1)
	b.buf = append(b.buf, 0)
	return b
}

// grow doubles the capacity until need bytes fit.
func (b *Buffer) grow(need int) error {
	if need < 0 {
		return fmt.Errorf("%w: record length overflows", ErrOverflow)
	}
	newCap := b.cap
	if newCap == 0 {
		newCap = 1
	}
	for need > newCap {
		next := newCap << 1
		if next <= newCap || (b.max > 0 && next > b.max) {
			return fmt.Errorf("%w: cannot grow past %d bytes for %d", ErrOverflow, newCap, need)
		}
		newCap = next
	}
	if newCap == b.cap {
		return nil
	}

	nbuf := make([]byte, len(b.buf), newCap)
	copy(nbuf, b.buf)
	b.buf = nbuf
	b.cap = newCap
	b.grows++
	return nil
}

// Append copies rec at the end of the buffer and returns its offset.
func (b *Buffer) Append(rec []byte) (int, error) {
	off := len(b.buf)
	if err := b.grow(off + len(rec)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, rec...)
	return off, nil
}

// AppendString appends s followed by a NUL and returns its offset. The
// empty string is not stored and maps to offset 0.
func (b *Buffer) AppendString(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	rec := make([]byte, len(s)+1)
	copy(rec, s)
	return b.Append(rec)
}

// StringAt returns the NUL terminated string stored at off.
func StringAt(tab []byte, off uint32) (string, error) {
	if int64(off) >= int64(len(tab)) {
		return "", fmt.Errorf("string offset %d out of table bounds (%d)", off, len(tab))
	}
	for i := int(off); i < len(tab); i++ {
		if tab[i] == 0 {
			return string(tab[off:i]), nil
		}
	}
	return "", fmt.Errorf("string at offset %d is not NUL terminated", off)
}

// Bytes returns the written part of the buffer. It aliases the buffer until
// the next Append.
func (b *Buffer) Bytes() []byte { return b.buf }

func (b *Buffer) Len() int { return len(b.buf) }
func (b *Buffer) Cap() int { return b.cap }

// Grows returns the number of times the buffer was reallocated.
func (b *Buffer) Grows() int { return b.grows }
