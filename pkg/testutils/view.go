// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package testutils

import (
	"github.com/cilium/tracespec/pkg/program"
)

// StatementView is a statement with its actions inlined. ECBAction is the
// position of the ECB action in the program action list, or -1.
type StatementView struct {
	Probe     program.ProbeDesc
	Pred      *program.DIFO
	ECBUArg   uint64
	ECBAction int
	Actions   []program.Action
	DescAttr  program.Attribute
	StmtAttr  program.Attribute
	AggData   *program.Ident
}

type OptionView struct {
	Name  string
	Class program.OptionClass
	Arg   string
}

// ProgramView is a program without refs and owner tags, suitable for
// comparing a program with its decoded copy.
type ProgramView struct {
	Statements    []StatementView
	Actions       []program.Action
	DOFVersion    uint8
	ResolverFlags uint32
	Options       []OptionView
}

func stripOwner(a *program.Action) program.Action {
	c := *a
	c.UArg = 0
	return c
}

// View flattens p.
func View(p *program.Program) ProgramView {
	v := ProgramView{
		DOFVersion:    p.DOFVersion,
		ResolverFlags: p.ResolverFlags,
	}

	pos := make(map[program.ActionRef]int)
	for i, ref := range p.Actions.Refs() {
		pos[ref] = i
		v.Actions = append(v.Actions, stripOwner(p.Actions.Get(ref)))
	}

	for _, st := range p.Statements {
		sv := StatementView{
			Probe:     st.ECB.Probe,
			Pred:      st.ECB.Pred,
			ECBUArg:   st.ECB.UArg,
			ECBAction: -1,
			DescAttr:  st.DescAttr,
			StmtAttr:  st.StmtAttr,
			AggData:   st.AggData,
		}
		if i, ok := pos[st.ECB.Action]; ok {
			sv.ECBAction = i
		}
		for _, a := range p.StatementActions(st) {
			sv.Actions = append(sv.Actions, stripOwner(a))
		}
		v.Statements = append(v.Statements, sv)
	}

	if p.Options != nil {
		for _, opt := range p.Options.Enabled() {
			v.Options = append(v.Options, OptionView{Name: opt.Name, Class: opt.Class, Arg: opt.Arg})
		}
	}
	return v
}
