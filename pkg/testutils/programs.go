// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package testutils

import (
	"fmt"

	"github.com/cilium/tracespec/pkg/program"
)

func probe(target string, id uint32) program.ProbeDesc {
	return program.ProbeDesc{
		ID:       id,
		Target:   target,
		Provider: "syscall",
		Module:   "freebsd",
		Function: "open",
		Name:     "entry",
	}
}

// SimpleProgram returns a program with one statement per target. Each
// statement has one action without DIFO and no predicate, and the "quiet"
// option is set.
func SimpleProgram(targets ...string) *program.Program {
	p := program.New()
	for i, target := range targets {
		p.AddStatement(&program.ECBDesc{Probe: probe(target, uint32(i+1))},
			program.Action{Kind: program.ActExit, Arg: uint64(i)})
	}
	if err := p.Options.SetOption("quiet", ""); err != nil {
		panic(err)
	}
	return p
}

// ChainProgram returns a program with one statement per target, each owning
// n actions of the shared list.
func ChainProgram(n int, targets ...string) *program.Program {
	p := program.New()
	for i, target := range targets {
		acts := make([]program.Action, n)
		for j := range acts {
			acts[j] = program.Action{
				Kind:   program.ActDIFExpr,
				NTuple: uint32(j),
				Arg:    uint64(i*100 + j),
			}
		}
		p.AddStatement(&program.ECBDesc{Probe: probe(target, uint32(i+1))}, acts...)
	}
	return p
}

func difo(seed uint32) *program.DIFO {
	return &program.DIFO{
		Buf:    []program.Instr{program.Instr(seed), 0x25000001, 0x23000001},
		IntTab: []uint64{uint64(seed), 1 << 40},
		StrTab: []byte("execname\x00pid\x00"),
		SymTab: []byte("kmem_alloc\x00"),
		VarTab: []program.DIFV{
			{Name: 9, ID: 0x500 + seed, Kind: 1, Scope: 2, Flags: 3,
				Type: program.DIFType{Kind: program.DIFTypeString, Size: 256}},
		},
		RType: program.DIFType{Kind: program.DIFTypeCTF, CKind: 1, Flags: 1, Size: 8},
	}
}

// RichProgram returns a program exercising every record kind: predicates,
// DIFOs with present, empty and absent tables, an aggregation, statements
// without actions and options of every class.
func RichProgram() *program.Program {
	p := program.New()
	p.ResolverFlags = 0x5

	// predicate and action DIFOs with all tables
	st := p.AddStatement(&program.ECBDesc{
		Probe: probe("vm0", 11),
		Pred:  difo(1),
		UArg:  0xdead,
	},
		program.Action{Kind: program.ActPrintf, DIFO: difo(2), NTuple: 1, Arg: 7},
		program.Action{Kind: program.ActStack, Arg: 20},
	)
	st.DescAttr = program.Attribute{Name: program.StabilityEvolving, Data: program.StabilityStable, Class: program.ClassCommon}
	st.StmtAttr = program.Attribute{Name: program.StabilityPrivate, Data: program.StabilityUnstable, Class: program.ClassISA}

	// empty but present tables, no instructions
	p.AddStatement(&program.ECBDesc{
		Probe: probe("host", 12),
		Pred: &program.DIFO{
			IntTab: []uint64{},
			StrTab: []byte{},
			VarTab: []program.DIFV{},
			RType:  program.DIFType{Size: 4},
		},
	}, program.Action{Kind: program.ActAggCount, DIFO: &program.DIFO{Buf: []program.Instr{0x2b000000}, Destructive: true}})
	agg := p.Statements[len(p.Statements)-1]
	agg.AggData = &program.Ident{
		Name:  "opens",
		ID:    0x77,
		Kind:  1,
		Flags: 2,
		Attr:  program.Attribute{Name: program.StabilityStable, Data: program.StabilityStable, Class: program.ClassCommon},
		Vers:  0x1000,
	}

	// no actions at all
	p.AddStatement(&program.ECBDesc{Probe: probe("vm1", 13)})

	for _, o := range []struct{ name, arg string }{
		{"define", "FOO=1"},
		{"quiet", ""},
		{"bufsize", "4m"},
		{"switchrate", "10hz"},
	} {
		if err := p.Options.SetOption(o.name, o.arg); err != nil {
			panic(fmt.Sprintf("setting %s: %s", o.name, err))
		}
	}
	return p
}
