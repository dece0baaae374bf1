// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

// Package program contains the in-memory representation of a compiled
// tracing program: statements, their probe descriptions and predicates, and
// the program-global list of actions the statements share.
package program

// Probe description field lengths, including the terminating NUL.
const (
	TargetNameLen = 64
	ProvNameLen   = 64
	ModNameLen    = 64
	FuncNameLen   = 192
	NameLen       = 64
)

// DefaultDOFVersion is the DOF version new programs require.
const DefaultDOFVersion uint8 = 2

// ProbeDesc is a probe ID and the 5-tuple matching it.
type ProbeDesc struct {
	ID       uint32
	Target   string
	Provider string
	Module   string
	Function string
	Name     string
}

// ECBDesc describes an enabled control block: which probes fire it, its
// predicate and its first action.
type ECBDesc struct {
	Probe  ProbeDesc
	Pred   *DIFO
	Action ActionRef
	UArg   uint64
}

// Ident describes an aggregation variable.
type Ident struct {
	Name  string
	ID    uint32
	Kind  uint16
	Flags uint16
	Attr  Attribute
	Vers  uint32
}

// Statement is one tracing rule. FirstAction and LastAction delimit the run
// of the program action list that belongs to the statement; both are
// NoAction for a statement without actions.
type Statement struct {
	ECB         *ECBDesc
	FirstAction ActionRef
	LastAction  ActionRef
	DescAttr    Attribute
	StmtAttr    Attribute
	AggData     *Ident
}

// Program is a compiled tracing program.
type Program struct {
	Statements    []*Statement
	Actions       *ActionList
	DOFVersion    uint8
	ResolverFlags uint32
	Options       *OptionSet
}

// New returns an empty program.
func New() *Program {
	return &Program{
		Actions:    NewActionList(),
		DOFVersion: DefaultDOFVersion,
		Options:    NewOptionSet(),
	}
}

// AddStatement appends a statement for ecb whose actions are acts, appended
// in order at the tail of the program action list. If ecb has no action yet,
// it is pointed at the first one.
func (p *Program) AddStatement(ecb *ECBDesc, acts ...Action) *Statement {
	st := &Statement{ECB: ecb}
	for _, a := range acts {
		ref := p.Actions.Append(a)
		if st.FirstAction == NoAction {
			st.FirstAction = ref
		}
		st.LastAction = ref
	}
	if ecb != nil && ecb.Action == NoAction {
		ecb.Action = st.FirstAction
	}
	p.Statements = append(p.Statements, st)
	return st
}

// StatementActions returns the actions of st in order.
func (p *Program) StatementActions(st *Statement) []*Action {
	if st.FirstAction == NoAction {
		return nil
	}
	var ret []*Action
	_ = p.Actions.Range(st.FirstAction, st.LastAction, func(_ ActionRef, a *Action) bool {
		ret = append(ret, a)
		return true
	})
	return ret
}
