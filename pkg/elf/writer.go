// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// ShStrTabIndex is the index of the section name string table.
	ShStrTabIndex = 1

	ehdrSize = 52
	phdrSize = 32
	shdrSize = 40
)

// SectionSpec describes a section to be created by a Writer.
type SectionSpec struct {
	Name    string
	Type    elf.SectionType
	Flags   elf.SectionFlag
	Align   uint32
	EntSize uint32
}

// Section is a section of a Writer. Data may be changed freely until the
// file is written.
type Section struct {
	SectionSpec
	Index uint32
	Data  []byte

	nameOff uint32
}

// Writer builds a 32-bit ELF file made of sections only. Section indexes are
// assigned in creation order, starting with the null section (0) and the
// section name string table (ShStrTabIndex).
//
// Files with SHN_LORESERVE or more sections use extended section numbering.
type Writer struct {
	data     elf.Data
	order    binary.ByteOrder
	sections []*Section
	names    map[string]uint32
	shstrtab []byte
}

// ByteOrder returns the binary.ByteOrder of an ELF data encoding.
func ByteOrder(data elf.Data) (binary.ByteOrder, error) {
	switch data {
	case elf.ELFDATA2LSB:
		return binary.LittleEndian, nil
	case elf.ELFDATA2MSB:
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("unsupported ELF data encoding %s", data)
}

// NewWriter returns a Writer for the given data encoding.
func NewWriter(data elf.Data) (*Writer, error) {
	order, err := ByteOrder(data)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		data:     data,
		order:    order,
		sections: []*Section{{}},
		names:    map[string]uint32{"": 0},
		shstrtab: []byte{0},
	}
	_, err = w.NewSection(SectionSpec{
		Name:  ".shstrtab",
		Type:  elf.SHT_STRTAB,
		Flags: elf.SHF_STRINGS,
		Align: 1,
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ByteOrder returns the byte order of the file being written.
func (w *Writer) ByteOrder() binary.ByteOrder { return w.order }

func (w *Writer) intern(name string) uint32 {
	if off, ok := w.names[name]; ok {
		return off
	}
	off := uint32(len(w.shstrtab))
	w.shstrtab = append(w.shstrtab, name...)
	w.shstrtab = append(w.shstrtab, 0)
	w.names[name] = off
	return off
}

// NewSection appends a new empty section.
func (w *Writer) NewSection(spec SectionSpec) (*Section, error) {
	if uint64(len(w.sections)) >= math.MaxUint32 {
		return nil, fmt.Errorf("too many sections (%d)", len(w.sections))
	}
	if spec.Align == 0 {
		spec.Align = 1
	}
	if spec.Align&(spec.Align-1) != 0 {
		return nil, fmt.Errorf("section %s: alignment %d is not a power of two", spec.Name, spec.Align)
	}

	sec := &Section{
		SectionSpec: spec,
		Index:       uint32(len(w.sections)),
		nameOff:     w.intern(spec.Name),
	}
	w.sections = append(w.sections, sec)
	return sec, nil
}

// Section returns the section at index idx.
func (w *Writer) Section(idx uint32) (*Section, error) {
	if idx == 0 || uint64(idx) >= uint64(len(w.sections)) {
		return nil, fmt.Errorf("section index %d out of range (%d sections)", idx, len(w.sections))
	}
	return w.sections[idx], nil
}

// NumSections returns the number of sections, including the null section.
func (w *Writer) NumSections() int { return len(w.sections) }

func alignUp(off uint64, align uint32) uint64 {
	a := uint64(align)
	return (off + a - 1) &^ (a - 1)
}

// Bytes lays out and encodes the file.
func (w *Writer) Bytes() ([]byte, error) {
	w.sections[ShStrTabIndex].Data = w.shstrtab

	nsec := uint64(len(w.sections))
	offsets := make([]uint64, nsec)
	off := uint64(ehdrSize + phdrSize)
	for i := uint64(1); i < nsec; i++ {
		sec := w.sections[i]
		off = alignUp(off, sec.Align)
		offsets[i] = off
		off += uint64(len(sec.Data))
	}
	shoff := alignUp(off, 4)
	size := shoff + nsec*shdrSize
	if size > math.MaxUint32 {
		return nil, fmt.Errorf("ELF32 file too large (%d bytes)", size)
	}

	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_NONE),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     ehdrSize,
		Shoff:     uint32(shoff),
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: shdrSize,
		Shnum:     uint16(nsec),
		Shstrndx:  ShStrTabIndex,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(w.data)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	// The real section count lives in the null section header.
	var sh0 elf.Section32
	if nsec >= uint64(elf.SHN_LORESERVE) {
		hdr.Shnum = 0
		sh0.Size = uint32(nsec)
	}

	phdr := elf.Prog32{
		Type:   uint32(elf.PT_PHDR),
		Off:    ehdrSize,
		Filesz: phdrSize,
		Memsz:  phdrSize,
		Flags:  uint32(elf.PF_R),
		Align:  4,
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, w.order, &hdr); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, w.order, &phdr); err != nil {
		return nil, err
	}
	for i := uint64(1); i < nsec; i++ {
		pad(buf, offsets[i])
		buf.Write(w.sections[i].Data)
	}
	pad(buf, shoff)

	if err := binary.Write(buf, w.order, &sh0); err != nil {
		return nil, err
	}
	for i := uint64(1); i < nsec; i++ {
		sec := w.sections[i]
		sh := elf.Section32{
			Name:      sec.nameOff,
			Type:      uint32(sec.Type),
			Flags:     uint32(sec.Flags),
			Off:       uint32(offsets[i]),
			Size:      uint32(len(sec.Data)),
			Addralign: sec.Align,
			Entsize:   sec.EntSize,
		}
		if err := binary.Write(buf, w.order, &sh); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func pad(buf *bytes.Buffer, off uint64) {
	if n := off - uint64(buf.Len()); n > 0 {
		buf.Write(make([]byte, n))
	}
}
