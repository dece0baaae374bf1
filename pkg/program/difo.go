// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package program

// Instr is a single DIF instruction word.
type Instr uint32

const (
	DIFTypeCTF    uint8 = 0
	DIFTypeString uint8 = 1
)

// DIFType is the type descriptor of a DIF value.
type DIFType struct {
	Kind  uint8
	CKind uint8
	Flags uint8
	Size  uint32
}

// DIFV describes a variable referenced from a DIFO.
type DIFV struct {
	Name  uint32
	ID    uint32
	Kind  uint8
	Scope uint8
	Flags uint16
	Type  DIFType
}

// DIFO is a compiled DIF instruction object. The four tables are optional: a
// nil table is absent, a non-nil empty one is present but has no entries.
type DIFO struct {
	Buf         []Instr
	IntTab      []uint64
	StrTab      []byte
	SymTab      []byte
	VarTab      []DIFV
	RType       DIFType
	Destructive bool
}
