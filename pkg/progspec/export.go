// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package progspec

import (
	"fmt"

	"github.com/cilium/tracespec/pkg/program"
)

// FromProgram describes p. Actions that no statement owns are not part of
// the description.
func FromProgram(name string, p *program.Program) (*ProgramConf, error) {
	conf := &ProgramConf{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata:   Metadata{Name: name},
		Spec: ProgramSpec{
			DOFVersion:    p.DOFVersion,
			ResolverFlags: p.ResolverFlags,
		},
	}

	index := make(map[program.ActionRef]ActionIndex)
	for i, st := range p.Statements {
		if st.FirstAction == program.NoAction {
			continue
		}
		j := 0
		err := p.Actions.Range(st.FirstAction, st.LastAction, func(ref program.ActionRef, _ *program.Action) bool {
			index[ref] = ActionIndex{Statement: i, Action: j}
			j++
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
	}

	for i, st := range p.Statements {
		ss, err := describeStatement(p, st)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		if st.ECB.Action != program.NoAction && st.ECB.Action != st.FirstAction {
			idx, ok := index[st.ECB.Action]
			if !ok {
				return nil, fmt.Errorf("statement %d: ECB action %d is not owned by any statement", i, st.ECB.Action)
			}
			ss.ECBAction = &idx
		}
		conf.Spec.Statements = append(conf.Spec.Statements, ss)
	}

	if p.Options != nil {
		for _, opt := range p.Options.Enabled() {
			conf.Spec.Options = append(conf.Spec.Options, OptionSpec{Name: opt.Name, Arg: opt.Arg})
		}
	}
	return conf, nil
}

func describeStatement(p *program.Program, st *program.Statement) (StatementSpec, error) {
	if st.ECB == nil {
		return StatementSpec{}, fmt.Errorf("no ECB description")
	}
	pd := &st.ECB.Probe
	ss := StatementSpec{
		Probe: ProbeSpec{
			ID:       pd.ID,
			Target:   pd.Target,
			Provider: pd.Provider,
			Module:   pd.Module,
			Function: pd.Function,
			Name:     pd.Name,
		},
		Predicate: describeDIFO(st.ECB.Pred),
		UArg:      st.ECB.UArg,
		DescAttr:  describeAttr(st.DescAttr),
		StmtAttr:  describeAttr(st.StmtAttr),
	}
	for _, a := range p.StatementActions(st) {
		ss.Actions = append(ss.Actions, ActionSpec{
			Kind:   a.Kind.String(),
			NTuple: a.NTuple,
			Arg:    a.Arg,
			DIFO:   describeDIFO(a.DIFO),
		})
	}
	if id := st.AggData; id != nil {
		ss.Aggregation = &IdentSpec{
			Name:  id.Name,
			ID:    id.ID,
			Kind:  id.Kind,
			Flags: id.Flags,
			Attr:  describeAttr(id.Attr),
			Vers:  id.Vers,
		}
	}
	return ss, nil
}

// describeAttr omits the zero attribute.
func describeAttr(a program.Attribute) *AttributeSpec {
	if a == (program.Attribute{}) {
		return nil
	}
	return &AttributeSpec{Name: a.Name.String(), Data: a.Data.String(), Class: a.Class.String()}
}

func describeDIFO(d *program.DIFO) *DIFOSpec {
	if d == nil {
		return nil
	}
	ret := &DIFOSpec{
		RType:       describeType(d.RType),
		Destructive: d.Destructive,
	}
	for _, ins := range d.Buf {
		ret.Instructions = append(ret.Instructions, uint32(ins))
	}
	if d.IntTab != nil {
		tab := append([]uint64{}, d.IntTab...)
		ret.IntTab = &tab
	}
	if d.StrTab != nil {
		tab := append([]byte{}, d.StrTab...)
		ret.StrTab = &tab
	}
	if d.SymTab != nil {
		tab := append([]byte{}, d.SymTab...)
		ret.SymTab = &tab
	}
	if d.VarTab != nil {
		vars := make([]VarSpec, 0, len(d.VarTab))
		for _, v := range d.VarTab {
			vars = append(vars, VarSpec{
				Name:  v.Name,
				ID:    v.ID,
				Kind:  v.Kind,
				Scope: v.Scope,
				Flags: v.Flags,
				Type:  describeType(v.Type),
			})
		}
		ret.VarTab = &vars
	}
	return ret
}

func describeType(t program.DIFType) TypeSpec {
	return TypeSpec{Kind: t.Kind, CKind: t.CKind, Flags: t.Flags, Size: t.Size}
}
