// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package progspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cilium/tracespec/pkg/program"
	"github.com/cilium/tracespec/pkg/testutils"
)

const readFile = `
apiVersion: tracespec.io/v1alpha1
kind: TracingProgram
metadata:
  name: "read-latency"
spec:
  resolverFlags: 1
  statements:
  - probe:
      target: "vm[0-9]"
      provider: syscall
      function: read
      name: entry
    predicate:
      instructions: [0x25000001, 0x23000001]
      # "execname\0"
      strTab: ZXhlY25hbWUA
      rtype:
        size: 8
    actions:
    - kind: printf
      ntuple: 1
      arg: 3
    - kind: stack
  - probe:
      provider: syscall
      function: read
      name: return
    ecbAction:
      statement: 0
      action: 1
    aggregation:
      name: reads
      attr:
        name: Stable
        data: Stable
        class: Common
  options:
  - name: quiet
  - name: bufsize
    arg: 4m
`

func TestProgramFromYAML(t *testing.T) {
	conf, err := ProgramFromYAML([]byte(readFile))
	require.NoError(t, err)
	assert.Equal(t, "read-latency", conf.Metadata.Name)

	p, err := conf.Program()
	require.NoError(t, err)
	require.Len(t, p.Statements, 2)
	assert.Equal(t, program.DefaultDOFVersion, p.DOFVersion)
	assert.Equal(t, uint32(1), p.ResolverFlags)

	st := p.Statements[0]
	assert.Equal(t, "vm[0-9]", st.ECB.Probe.Target)
	assert.Equal(t, []byte("execname\x00"), st.ECB.Pred.StrTab)
	assert.Nil(t, st.ECB.Pred.IntTab)
	acts := p.StatementActions(st)
	require.Len(t, acts, 2)
	assert.Equal(t, program.ActPrintf, acts[0].Kind)
	assert.Equal(t, program.ActStack, acts[1].Kind)

	// the second statement has no actions but fires the stack action
	// of the first one
	st2 := p.Statements[1]
	assert.Equal(t, program.NoAction, st2.FirstAction)
	assert.Equal(t, st.LastAction, st2.ECB.Action)
	require.NotNil(t, st2.AggData)
	assert.Equal(t, program.StabilityStable, st2.AggData.Attr.Name)

	opt, ok := p.Options.Lookup("bufsize")
	require.True(t, ok)
	assert.True(t, opt.Set)
	assert.Equal(t, "4m", opt.Arg)
}

func TestRoundTrip(t *testing.T) {
	for name, p := range map[string]*program.Program{
		"simple": testutils.SimpleProgram("vm0", "", "vm1"),
		"chain":  testutils.ChainProgram(3, "a", "b"),
		"rich":   testutils.RichProgram(),
	} {
		t.Run(name, func(t *testing.T) {
			conf, err := FromProgram(name, p)
			require.NoError(t, err)
			data, err := conf.YAML()
			require.NoError(t, err)

			parsed, err := ProgramFromYAML(data)
			require.NoError(t, err)
			got, err := parsed.Program()
			require.NoError(t, err)

			if diff := cmp.Diff(testutils.View(p), testutils.View(got)); diff != "" {
				t.Errorf("program mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinaryTables(t *testing.T) {
	p := program.New()
	p.AddStatement(&program.ECBDesc{
		Probe: program.ProbeDesc{Target: "a"},
		Pred: &program.DIFO{
			StrTab: []byte{0xff, 0x00, 'a', 0x00},
			SymTab: []byte{0xc3, 0x28, 0x00},
		},
	})

	conf, err := FromProgram("binary", p)
	require.NoError(t, err)
	data, err := conf.YAML()
	require.NoError(t, err)
	parsed, err := ProgramFromYAML(data)
	require.NoError(t, err)
	got, err := parsed.Program()
	require.NoError(t, err)

	pred := got.Statements[0].ECB.Pred
	assert.Equal(t, []byte{0xff, 0x00, 'a', 0x00}, pred.StrTab)
	assert.Equal(t, []byte{0xc3, 0x28, 0x00}, pred.SymTab)
}

func TestTablePresence(t *testing.T) {
	p := testutils.RichProgram()
	conf, err := FromProgram("rich", p)
	require.NoError(t, err)

	pred := conf.Spec.Statements[1].Predicate
	require.NotNil(t, pred)
	require.NotNil(t, pred.IntTab)
	assert.Empty(t, *pred.IntTab)
	require.NotNil(t, pred.StrTab)
	assert.Empty(t, *pred.StrTab)
	assert.Nil(t, pred.SymTab)

	d := pred.difo()
	assert.NotNil(t, d.IntTab)
	assert.Empty(t, d.IntTab)
	assert.NotNil(t, d.StrTab)
	assert.Nil(t, d.SymTab)
	assert.NotNil(t, d.VarTab)
}

func TestProgramFromYAMLErrors(t *testing.T) {
	header := "apiVersion: tracespec.io/v1alpha1\nkind: TracingProgram\nmetadata:\n  name: x\n"
	cases := map[string]string{
		"apiVersion":   "apiVersion: v1\nkind: TracingProgram\n",
		"kind":         "apiVersion: tracespec.io/v1alpha1\nkind: Pod\n",
		"unknownField": header + "spec:\n  bogus: 1\n",
		"notYAML":      "{",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ProgramFromYAML([]byte(data))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	programCases := map[string]string{
		"actionKind": header + "spec:\n  statements:\n  - probe: {name: a}\n    actions:\n    - kind: nope\n",
		"ecbAction":  header + "spec:\n  statements:\n  - probe: {name: a}\n    ecbAction: {statement: 3, action: 0}\n",
		"option":     header + "spec:\n  options:\n  - name: nope\n",
		"attribute":  header + "spec:\n  statements:\n  - probe: {name: a}\n    descAttr: {name: Solid, data: Stable, class: Common}\n",
		"longName":   header + "spec:\n  statements:\n  - probe:\n      provider: " + longName() + "\n",
	}
	for name, data := range programCases {
		t.Run(name, func(t *testing.T) {
			conf, err := ProgramFromYAML([]byte(data))
			require.NoError(t, err)
			_, err = conf.Program()
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func longName() string {
	b := make([]byte, program.ProvNameLen)
	for i := range b {
		b[i] = 'p'
	}
	return string(b)
}

func TestFromProgramOrphanECBAction(t *testing.T) {
	p := program.New()
	orphan := p.Actions.Append(program.Action{Kind: program.ActExit})
	p.AddStatement(&program.ECBDesc{Probe: program.ProbeDesc{Name: "a"}, Action: orphan})

	_, err := FromProgram("orphan", p)
	require.Error(t, err)
}

func TestProgramFromYAMLFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(readFile), 0o600))

	conf, err := ProgramFromYAMLFilename(path)
	require.NoError(t, err)
	assert.Len(t, conf.Spec.Statements, 2)

	_, err = ProgramFromYAMLFilename(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
