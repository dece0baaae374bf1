// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	elfx "github.com/cilium/tracespec/pkg/elf"
	"github.com/cilium/tracespec/pkg/program"
)

// SHT_TRACESPEC is the section type of every record section.
const SHT_TRACESPEC = elf.SHT_LOOS + 0xd7ace

const (
	// RootHandle is the handle of the root record.
	RootHandle uint32 = 2

	// NoHandle means absent.
	NoHandle uint32 = 0
)

type recordKind uint8

const (
	kindRoot recordKind = iota
	kindStatement
	kindECB
	kindAction
	kindDIFO
	kindIntTab
	kindStrTab
	kindSymTab
	kindVarTab
	kindIdent
	kindOptions
	kindIdNames

	numRecordKinds
)

const idNamesSection = ".dtrace_stmt_idname_table"

var recordSections = [numRecordKinds]elfx.SectionSpec{
	kindRoot:      traceSection(".dtrace_prog", 4, rootRecordSize),
	kindStatement: traceSection(".dtrace_stmtdesc", 4, stmtRecordSize),
	kindECB:       traceSection(".dtrace_ecbdesc", 8, ecbRecordSize),
	kindAction:    traceSection(".dtrace_actdesc", 8, actionRecordSize),
	kindDIFO:      traceSection(".dtrace_difo", 8, 0),
	kindIntTab:    traceSection(".difo_inttab", 8, 8),
	kindStrTab:    traceSection(".difo_strtab", 1, 0),
	kindSymTab:    traceSection(".difo_symtab", 1, 0),
	kindVarTab:    traceSection(".dtrace_vartab", 4, varRecordSize),
	kindIdent:     traceSection(".dtrace_ident", 4, identRecordSize),
	kindOptions:   traceSection(".dtrace_opts", 8, 0),
	kindIdNames:   {Name: idNamesSection, Type: elf.SHT_STRTAB, Flags: elf.SHF_STRINGS, Align: 1},
}

func traceSection(name string, align, entSize uint32) elfx.SectionSpec {
	return elfx.SectionSpec{
		Name:    name,
		Type:    SHT_TRACESPEC,
		Flags:   elf.SHF_OS_NONCONFORMING,
		Align:   align,
		EntSize: entSize,
	}
}

func (k recordKind) String() string {
	if k < numRecordKinds {
		return recordSections[k].Name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k recordKind) spec() elfx.SectionSpec {
	return recordSections[k]
}

const (
	rootRecordSize   = 16
	stmtRecordSize   = 28
	ecbRecordSize    = 472
	actionRecordSize = 32
	difoHeaderSize   = 72
	varRecordSize    = 20
	identRecordSize  = 20
	optionHeaderSize = program.MaxOptionNameLen + program.MaxStringValueLen + 8
)

// attrRecord is the on-disk form of program.Attribute.
type attrRecord struct {
	Name  uint8
	Data  uint8
	Class uint8
	_     uint8
}

type typeRecord struct {
	Kind  uint8
	CKind uint8
	Flags uint8
	_     uint8
	Size  uint32
}

type rootRecord struct {
	FirstStmt     uint32
	DOFVersion    uint8
	_             [3]uint8
	ResolverFlags uint32
	Options       uint32
}

type stmtRecord struct {
	ECB        uint32
	Action     uint32
	ActionLast uint32
	Next       uint32
	AggData    uint32
	DescAttr   attrRecord
	StmtAttr   attrRecord
}

type probeRecord struct {
	ID       uint32
	Target   [program.TargetNameLen]byte
	Provider [program.ProvNameLen]byte
	Module   [program.ModNameLen]byte
	Function [program.FuncNameLen]byte
	Name     [program.NameLen]byte
}

type ecbRecord struct {
	Action uint32
	Pred   uint32
	Probe  probeRecord
	_      [4]uint8
	UArg   uint64
}

type actionRecord struct {
	DIFO   uint32
	Next   uint32
	Kind   uint16
	_      uint16
	NTuple uint32
	Arg    uint64
	UArg   uint64
}

type difoHeader struct {
	IntTab      uint32
	StrTab      uint32
	SymTab      uint32
	VarTab      uint32
	IntLen      uint64
	StrLen      uint64
	SymLen      uint64
	VarLen      uint64
	RType       typeRecord
	Destructive uint64
	Len         uint64
}

type varRecord struct {
	Name  uint32
	ID    uint32
	Kind  uint8
	Scope uint8
	Flags uint16
	Type  typeRecord
}

type identRecord struct {
	Name  uint32
	ID    uint32
	Kind  uint16
	Flags uint16
	Attr  attrRecord
	Vers  uint32
}

type optionHeader struct {
	Name  [program.MaxOptionNameLen]byte
	Value [program.MaxStringValueLen]byte
	Len   uint64
}

// record is one entry of the encoder arena. The set of implementations is
// closed: every kind has exactly one record type.
type record interface {
	kind() recordKind
}

type difoRecord struct {
	hdr difoHeader
	buf []program.Instr
}

type intTabRecord []uint64

type varTabRecord []varRecord

// blobRecord carries the raw bytes of string tables and the option table.
type blobRecord struct {
	k    recordKind
	data []byte
}

func (*rootRecord) kind() recordKind   { return kindRoot }
func (*stmtRecord) kind() recordKind   { return kindStatement }
func (*ecbRecord) kind() recordKind    { return kindECB }
func (*actionRecord) kind() recordKind { return kindAction }
func (*difoRecord) kind() recordKind   { return kindDIFO }
func (intTabRecord) kind() recordKind  { return kindIntTab }
func (varTabRecord) kind() recordKind  { return kindVarTab }
func (*identRecord) kind() recordKind  { return kindIdent }
func (r *blobRecord) kind() recordKind { return r.k }

func align(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// marshalRecord encodes rec in the given byte order.
func marshalRecord(order binary.ByteOrder, rec record) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch r := rec.(type) {
	case *rootRecord, *stmtRecord, *ecbRecord, *actionRecord, *identRecord:
		err = binary.Write(&buf, order, r)
	case *difoRecord:
		if err = binary.Write(&buf, order, &r.hdr); err != nil {
			break
		}
		if err = binary.Write(&buf, order, r.buf); err != nil {
			break
		}
		buf.Write(make([]byte, align(buf.Len(), 8)-buf.Len()))
	case intTabRecord:
		err = binary.Write(&buf, order, []uint64(r))
	case varTabRecord:
		err = binary.Write(&buf, order, []varRecord(r))
	case *blobRecord:
		return r.data, nil
	default:
		return nil, fmt.Errorf("%w: unknown record type %T", ErrInvariant, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s record: %w", rec.kind(), err)
	}
	return buf.Bytes(), nil
}

func attrToRecord(a program.Attribute) attrRecord {
	return attrRecord{Name: uint8(a.Name), Data: uint8(a.Data), Class: uint8(a.Class)}
}

func attrFromRecord(r attrRecord) program.Attribute {
	return program.Attribute{
		Name:  program.Stability(r.Name),
		Data:  program.Stability(r.Data),
		Class: program.DepClass(r.Class),
	}
}

func typeToRecord(t program.DIFType) typeRecord {
	return typeRecord{Kind: t.Kind, CKind: t.CKind, Flags: t.Flags, Size: t.Size}
}

func typeFromRecord(r typeRecord) program.DIFType {
	return program.DIFType{Kind: r.Kind, CKind: r.CKind, Flags: r.Flags, Size: r.Size}
}
