// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

// Package progspec reads and writes textual descriptions of compiled tracing
// programs. A description is a YAML document in the usual apiVersion, kind,
// metadata, spec layout.
package progspec

import (
	"errors"
	"fmt"
	"os"

	"github.com/cilium/tracespec/pkg/program"
	"sigs.k8s.io/yaml"
)

const (
	APIVersion = "tracespec.io/v1alpha1"
	Kind       = "TracingProgram"
)

type Metadata struct {
	Name string `json:"name"`
}

type ProgramConf struct {
	APIVersion string      `json:"apiVersion"`
	Kind       string      `json:"kind"`
	Metadata   Metadata    `json:"metadata"`
	Spec       ProgramSpec `json:"spec"`
}

type ProgramSpec struct {
	DOFVersion    uint8           `json:"dofVersion,omitempty"`
	ResolverFlags uint32          `json:"resolverFlags,omitempty"`
	Statements    []StatementSpec `json:"statements,omitempty"`
	Options       []OptionSpec    `json:"options,omitempty"`
}

type ProbeSpec struct {
	ID       uint32 `json:"id,omitempty"`
	Target   string `json:"target,omitempty"`
	Provider string `json:"provider,omitempty"`
	Module   string `json:"module,omitempty"`
	Function string `json:"function,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ActionIndex names the action at position Action of statement Statement.
type ActionIndex struct {
	Statement int `json:"statement"`
	Action    int `json:"action"`
}

type StatementSpec struct {
	Probe     ProbeSpec    `json:"probe"`
	Predicate *DIFOSpec    `json:"predicate,omitempty"`
	UArg      uint64       `json:"uarg,omitempty"`
	Actions   []ActionSpec `json:"actions,omitempty"`
	// ECBAction is the first action fired for the probe. It defaults to the
	// first action of the statement.
	ECBAction   *ActionIndex   `json:"ecbAction,omitempty"`
	DescAttr    *AttributeSpec `json:"descAttr,omitempty"`
	StmtAttr    *AttributeSpec `json:"stmtAttr,omitempty"`
	Aggregation *IdentSpec     `json:"aggregation,omitempty"`
}

type AttributeSpec struct {
	Name  string `json:"name"`
	Data  string `json:"data"`
	Class string `json:"class"`
}

type ActionSpec struct {
	Kind   string    `json:"kind"`
	NTuple uint32    `json:"ntuple,omitempty"`
	Arg    uint64    `json:"arg,omitempty"`
	DIFO   *DIFOSpec `json:"difo,omitempty"`
}

type TypeSpec struct {
	Kind  uint8  `json:"kind,omitempty"`
	CKind uint8  `json:"ckind,omitempty"`
	Flags uint8  `json:"flags,omitempty"`
	Size  uint32 `json:"size,omitempty"`
}

type VarSpec struct {
	Name  uint32   `json:"name"`
	ID    uint32   `json:"id"`
	Kind  uint8    `json:"kind,omitempty"`
	Scope uint8    `json:"scope,omitempty"`
	Flags uint16   `json:"flags,omitempty"`
	Type  TypeSpec `json:"type"`
}

// DIFOSpec describes a DIF object. A nil table is absent; an empty list or
// string is a present table without entries. String and symbol tables are
// raw bytes, base64 encoded.
type DIFOSpec struct {
	Instructions []uint32   `json:"instructions,omitempty"`
	IntTab       *[]uint64  `json:"intTab,omitempty"`
	StrTab       *[]byte    `json:"strTab,omitempty"`
	SymTab       *[]byte    `json:"symTab,omitempty"`
	VarTab       *[]VarSpec `json:"varTab,omitempty"`
	RType        TypeSpec   `json:"rtype"`
	Destructive  bool       `json:"destructive,omitempty"`
}

type IdentSpec struct {
	Name  string         `json:"name"`
	ID    uint32         `json:"id,omitempty"`
	Kind  uint16         `json:"kind,omitempty"`
	Flags uint16         `json:"flags,omitempty"`
	Attr  *AttributeSpec `json:"attr,omitempty"`
	Vers  uint32         `json:"vers,omitempty"`
}

type OptionSpec struct {
	Name string `json:"name"`
	Arg  string `json:"arg,omitempty"`
}

var ErrInvalid = errors.New("invalid program description")

// ProgramFromYAML parses a program description.
func ProgramFromYAML(data []byte) (*ProgramConf, error) {
	var conf ProgramConf
	if err := yaml.UnmarshalStrict(data, &conf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if conf.APIVersion != APIVersion {
		return nil, fmt.Errorf("%w: unsupported apiVersion %q", ErrInvalid, conf.APIVersion)
	}
	if conf.Kind != Kind {
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrInvalid, conf.Kind)
	}
	return &conf, nil
}

// ProgramFromYAMLFilename parses the program description in fileName.
func ProgramFromYAMLFilename(fileName string) (*ProgramConf, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	conf, err := ProgramFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return conf, nil
}

// YAML returns the description as a YAML document.
func (c *ProgramConf) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Program builds the program described by c and validates it.
func (c *ProgramConf) Program() (*program.Program, error) {
	p := program.New()
	if c.Spec.DOFVersion != 0 {
		p.DOFVersion = c.Spec.DOFVersion
	}
	p.ResolverFlags = c.Spec.ResolverFlags

	// action refs of every statement, by statement index
	refs := make([][]program.ActionRef, len(c.Spec.Statements))
	for i := range c.Spec.Statements {
		ss := &c.Spec.Statements[i]
		st, err := buildStatement(p, ss)
		if err != nil {
			return nil, fmt.Errorf("%w: statement %d: %w", ErrInvalid, i, err)
		}
		if st.FirstAction != program.NoAction {
			_ = p.Actions.Range(st.FirstAction, st.LastAction, func(ref program.ActionRef, _ *program.Action) bool {
				refs[i] = append(refs[i], ref)
				return true
			})
		}
	}

	for i := range c.Spec.Statements {
		idx := c.Spec.Statements[i].ECBAction
		if idx == nil {
			continue
		}
		if idx.Statement < 0 || idx.Statement >= len(refs) ||
			idx.Action < 0 || idx.Action >= len(refs[idx.Statement]) {
			return nil, fmt.Errorf("%w: statement %d: ecbAction %d/%d out of range",
				ErrInvalid, i, idx.Statement, idx.Action)
		}
		p.Statements[i].ECB.Action = refs[idx.Statement][idx.Action]
	}

	for _, o := range c.Spec.Options {
		if err := p.Options.SetOption(o.Name, o.Arg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return p, nil
}

func buildStatement(p *program.Program, ss *StatementSpec) (*program.Statement, error) {
	ecb := &program.ECBDesc{
		Probe: program.ProbeDesc{
			ID:       ss.Probe.ID,
			Target:   ss.Probe.Target,
			Provider: ss.Probe.Provider,
			Module:   ss.Probe.Module,
			Function: ss.Probe.Function,
			Name:     ss.Probe.Name,
		},
		Pred: ss.Predicate.difo(),
		UArg: ss.UArg,
	}

	acts := make([]program.Action, 0, len(ss.Actions))
	for j, as := range ss.Actions {
		kind, err := program.ParseActionKind(as.Kind)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", j, err)
		}
		acts = append(acts, program.Action{
			Kind:   kind,
			NTuple: as.NTuple,
			Arg:    as.Arg,
			DIFO:   as.DIFO.difo(),
		})
	}

	st := p.AddStatement(ecb, acts...)

	var err error
	if st.DescAttr, err = ss.DescAttr.attribute(); err != nil {
		return nil, fmt.Errorf("descAttr: %w", err)
	}
	if st.StmtAttr, err = ss.StmtAttr.attribute(); err != nil {
		return nil, fmt.Errorf("stmtAttr: %w", err)
	}
	if ss.Aggregation != nil {
		attr, err := ss.Aggregation.Attr.attribute()
		if err != nil {
			return nil, fmt.Errorf("aggregation: %w", err)
		}
		st.AggData = &program.Ident{
			Name:  ss.Aggregation.Name,
			ID:    ss.Aggregation.ID,
			Kind:  ss.Aggregation.Kind,
			Flags: ss.Aggregation.Flags,
			Attr:  attr,
			Vers:  ss.Aggregation.Vers,
		}
	}
	return st, nil
}

func (a *AttributeSpec) attribute() (program.Attribute, error) {
	var ret program.Attribute
	if a == nil {
		return ret, nil
	}
	var err error
	if ret.Name, err = program.ParseStability(a.Name); err != nil {
		return ret, err
	}
	if ret.Data, err = program.ParseStability(a.Data); err != nil {
		return ret, err
	}
	if ret.Class, err = program.ParseDepClass(a.Class); err != nil {
		return ret, err
	}
	return ret, nil
}

func (d *DIFOSpec) difo() *program.DIFO {
	if d == nil {
		return nil
	}
	ret := &program.DIFO{
		RType:       d.RType.difType(),
		Destructive: d.Destructive,
	}
	for _, ins := range d.Instructions {
		ret.Buf = append(ret.Buf, program.Instr(ins))
	}
	if d.IntTab != nil {
		ret.IntTab = append([]uint64{}, *d.IntTab...)
	}
	if d.StrTab != nil {
		ret.StrTab = append([]byte{}, *d.StrTab...)
	}
	if d.SymTab != nil {
		ret.SymTab = append([]byte{}, *d.SymTab...)
	}
	if d.VarTab != nil {
		ret.VarTab = make([]program.DIFV, 0, len(*d.VarTab))
		for _, v := range *d.VarTab {
			ret.VarTab = append(ret.VarTab, program.DIFV{
				Name:  v.Name,
				ID:    v.ID,
				Kind:  v.Kind,
				Scope: v.Scope,
				Flags: v.Flags,
				Type:  v.Type.difType(),
			})
		}
	}
	return ret
}

func (t TypeSpec) difType() program.DIFType {
	return program.DIFType{Kind: t.Kind, CKind: t.CKind, Flags: t.Flags, Size: t.Size}
}
