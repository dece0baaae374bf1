// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"debug/elf"
	"fmt"
	"io"

	elfx "github.com/cilium/tracespec/pkg/elf"
)

// SectionInfo describes one section of a container.
type SectionInfo struct {
	Index uint32
	Name  string
	Type  elf.SectionType
	Size  uint64
	// Record is true for sections holding a record of a known kind.
	Record bool
}

// Root is the content of the root record.
type Root struct {
	FirstStatement uint32
	DOFVersion     uint8
	ResolverFlags  uint32
	Options        uint32
}

// Summary is the structure of a container, read without resolving any
// statement.
type Summary struct {
	ByteOrder  elf.Data
	Sections   []SectionInfo
	Root       Root
	Statements []uint32
}

// Inspect reads the section table, the root record and the statement chain
// of the container read from r.
func Inspect(r io.ReaderAt) (*Summary, error) {
	f, err := elfx.NewSafeELFFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	order, err := elfx.ByteOrder(f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	known := make(map[string]elf.SectionType, numRecordKinds)
	for k := recordKind(0); k < numRecordKinds; k++ {
		known[k.spec().Name] = k.spec().Type
	}

	s := &Summary{ByteOrder: f.Data}
	for i, sec := range f.Sections {
		typ, ok := known[sec.Name]
		s.Sections = append(s.Sections, SectionInfo{
			Index:  uint32(i),
			Name:   sec.Name,
			Type:   sec.Type,
			Size:   sec.Size,
			Record: ok && typ == sec.Type,
		})
	}

	d := &decoder{f: f, order: order}
	var root rootRecord
	if err := d.readFixed(RootHandle, kindRoot, &root); err != nil {
		return nil, err
	}
	s.Root = Root{
		FirstStatement: root.FirstStmt,
		DOFVersion:     root.DOFVersion,
		ResolverFlags:  root.ResolverFlags,
		Options:        root.Options,
	}

	chain, err := d.readChain(root.FirstStmt)
	if err != nil {
		return nil, err
	}
	for _, e := range chain {
		s.Statements = append(s.Statements, e.handle)
	}
	return s, nil
}
