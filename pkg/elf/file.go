// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

// Borrowed from https://github.com/cilium/ebpf/ thanks! ;-)

package elf

import (
	"debug/elf"
	"fmt"
	"io"
)

type SafeELFFile struct {
	*elf.File
}

// NewSafeELFFile reads an ELF safely.
//
// Any panic during parsing is turned into an error. This is necessary since
// there are a bunch of unfixed bugs in debug/elf.
//
// https://github.com/golang/go/issues?q=is%3Aissue+is%3Aopen+debug%2Felf+in%3Atitle
func NewSafeELFFile(r io.ReaderAt) (safe *SafeELFFile, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		safe = nil
		err = fmt.Errorf("reading ELF file panicked: %s", r)
	}()

	file, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}

	return &SafeELFFile{file}, nil
}

// OpenSafeELFFile reads an ELF from a file.
//
// It works like NewSafeELFFile, with the exception that safe.Close will
// close the underlying file.
func OpenSafeELFFile(path string) (safe *SafeELFFile, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		safe = nil
		err = fmt.Errorf("reading ELF file panicked: %s", r)
	}()

	file, err := elf.Open(path)
	if err != nil {
		return nil, err
	}

	return &SafeELFFile{file}, nil
}

// SectionByIndex returns the section at index idx. The null section (index
// 0) is never returned.
func (se *SafeELFFile) SectionByIndex(idx uint32) (*elf.Section, error) {
	if idx == 0 || uint64(idx) >= uint64(len(se.Sections)) {
		return nil, fmt.Errorf("section index %d out of range (%d sections)", idx, len(se.Sections))
	}
	return se.Sections[idx], nil
}

// SectionData returns the contents of the section at index idx.
func (se *SafeELFFile) SectionData(idx uint32) (data []byte, err error) {
	sec, err := se.SectionByIndex(idx)
	if err != nil {
		return nil, err
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		data = nil
		err = fmt.Errorf("reading section %d panicked: %s", idx, r)
	}()

	data, err = sec.Data()
	if err != nil {
		return nil, fmt.Errorf("reading section %d (%s): %w", idx, sec.Name, err)
	}
	return data, nil
}

// SectionsByType returns all sections in the file with the specified section type.
func (se *SafeELFFile) SectionsByType(typ elf.SectionType) []*elf.Section {
	sections := make([]*elf.Section, 0, 1)
	for _, section := range se.Sections {
		if section.Type == typ {
			sections = append(sections, section)
		}
	}
	return sections
}

// SectionsByName returns all sections in the file with the specified section name.
func (se *SafeELFFile) SectionsByName(name string) []*elf.Section {
	sections := make([]*elf.Section, 0, 1)
	for _, section := range se.Sections {
		if section.Name == name {
			sections = append(sections, section)
		}
	}
	return sections
}
