// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	elfx "github.com/cilium/tracespec/pkg/elf"
	"github.com/cilium/tracespec/pkg/program"
	"github.com/cilium/tracespec/pkg/strutils"
	"github.com/cilium/tracespec/pkg/testutils"
)

type recordingApplier struct {
	calls []AppliedOption
}

func (r *recordingApplier) SetOption(name, arg string) error {
	r.calls = append(r.calls, AppliedOption{Name: name, Arg: arg})
	return nil
}

func rejectTargets(targets ...string) Resolver {
	return ResolverFunc(func(target string) bool {
		for _, t := range targets {
			if t == target {
				return false
			}
		}
		return true
	})
}

func testLogger(t *testing.T) Option {
	l := logrus.New()
	testutils.CaptureLog(t, l)
	return WithLogger(l)
}

func encodeT(t *testing.T, p *program.Program, opts ...Option) []byte {
	t.Helper()
	b, err := Encode(p, append([]Option{testLogger(t)}, opts...)...)
	require.NoError(t, err)
	return b
}

func decodeT(t *testing.T, b []byte, res Resolver, apply OptionApplier) (*program.Program, *Report) {
	t.Helper()
	p, report, err := DecodeBytes(b, res, apply, testLogger(t))
	require.NoError(t, err)
	return p, report
}

// findSection returns the index and file offset of the nth section called
// name.
func findSection(t *testing.T, b []byte, name string, nth int) (uint32, uint64) {
	t.Helper()
	f, err := elfx.NewSafeELFFile(bytes.NewReader(b))
	require.NoError(t, err)
	for i, sec := range f.Sections {
		if sec.Name != name {
			continue
		}
		if nth == 0 {
			return uint32(i), sec.Offset
		}
		nth--
	}
	t.Fatalf("section %s not found", name)
	return 0, 0
}

func readRecord(t *testing.T, b []byte, h uint32, v any) {
	t.Helper()
	f, err := elfx.NewSafeELFFile(bytes.NewReader(b))
	require.NoError(t, err)
	data, err := f.SectionData(h)
	require.NoError(t, err)
	require.NoError(t, binary.Read(bytes.NewReader(data), binary.LittleEndian, v))
}

func TestRoundTrip(t *testing.T) {
	for _, data := range []elf.Data{elf.ELFDATA2LSB, elf.ELFDATA2MSB} {
		t.Run(data.String(), func(t *testing.T) {
			p := testutils.RichProgram()
			require.NoError(t, p.Validate())

			b := encodeT(t, p, WithByteOrder(data))
			got, report := decodeT(t, b, nil, nil)

			if diff := cmp.Diff(testutils.View(p), testutils.View(got)); diff != "" {
				t.Errorf("decoded program differs (-want +got):\n%s", diff)
			}
			require.NoError(t, got.Validate())
			assert.Len(t, report.Accepted(), 3)
			assert.Empty(t, report.Rejected())
			assert.Equal(t, uint32(0x5), report.ResolverFlags)
			assert.True(t, report.AcceptedTargets.Contains("vm0", "host", "vm1"))
			assert.Equal(t, []AppliedOption{
				{Name: "define", Arg: "FOO=1"},
				{Name: "bufsize", Arg: "4m"},
				{Name: "quiet", Arg: ""},
				{Name: "switchrate", Arg: "10hz"},
			}, report.Options)
		})
	}
}

func TestRoundTripTablePresence(t *testing.T) {
	p := testutils.RichProgram()
	got, _ := decodeT(t, encodeT(t, p), nil, nil)

	full := got.Statements[0].ECB.Pred
	require.NotNil(t, full)
	assert.Equal(t, []uint64{1, 1 << 40}, full.IntTab)

	empty := got.Statements[1].ECB.Pred
	require.NotNil(t, empty)
	assert.NotNil(t, empty.IntTab)
	assert.Empty(t, empty.IntTab)
	assert.NotNil(t, empty.StrTab)
	assert.NotNil(t, empty.VarTab)
	assert.Nil(t, empty.SymTab)
	assert.Nil(t, empty.Buf)

	assert.Nil(t, got.Statements[2].ECB.Pred)
	assert.Equal(t, "opens", got.Statements[1].AggData.Name)
}

func TestOwnerTags(t *testing.T) {
	p := testutils.ChainProgram(2, "a", "b")
	b := encodeT(t, p)
	got, _ := decodeT(t, b, nil, nil)

	for i := range got.Statements {
		h, _ := findSection(t, b, ".dtrace_stmtdesc", i)
		for _, a := range got.StatementActions(got.Statements[i]) {
			assert.Equal(t, uint64(h), a.UArg)
		}
	}
}

func TestAbsenceFidelity(t *testing.T) {
	p := testutils.ChainProgram(1, "a")
	b := encodeT(t, p)

	var root rootRecord
	readRecord(t, b, RootHandle, &root)
	assert.Equal(t, NoHandle, root.Options)

	stmtH, _ := findSection(t, b, ".dtrace_stmtdesc", 0)
	var st stmtRecord
	readRecord(t, b, stmtH, &st)
	assert.Equal(t, NoHandle, st.AggData)

	var ecb ecbRecord
	readRecord(t, b, st.ECB, &ecb)
	assert.Equal(t, NoHandle, ecb.Pred)

	var act actionRecord
	readRecord(t, b, st.Action, &act)
	assert.Equal(t, NoHandle, act.DIFO)

	apply := &recordingApplier{}
	got, report := decodeT(t, b, nil, apply)
	require.Len(t, got.Statements, 1)
	assert.Nil(t, got.Statements[0].ECB.Pred)
	assert.Nil(t, got.Statements[0].AggData)
	assert.Nil(t, got.StatementActions(got.Statements[0])[0].DIFO)
	assert.Empty(t, apply.calls)
	assert.Empty(t, report.Options)
	assert.Empty(t, got.Options.Enabled())
}

func TestScenarioAcceptAll(t *testing.T) {
	p := testutils.SimpleProgram("a", "b")
	b := encodeT(t, p)

	apply := &recordingApplier{}
	got, report := decodeT(t, b, AcceptAll, apply)

	require.Len(t, got.Statements, 2)
	assert.Equal(t, "a", got.Statements[0].ECB.Probe.Target)
	assert.Equal(t, "b", got.Statements[1].ECB.Probe.Target)
	for _, st := range got.Statements {
		assert.Nil(t, st.ECB.Pred)
		assert.Nil(t, st.AggData)
	}
	assert.Equal(t, []AppliedOption{{Name: "quiet", Arg: ""}}, apply.calls)
	assert.Equal(t, apply.calls, report.Options)
	assert.Equal(t, 2, got.Actions.Len())
}

func TestScenarioRejectFirst(t *testing.T) {
	p := testutils.SimpleProgram("a", "b")
	b := encodeT(t, p)

	got, report := decodeT(t, b, rejectTargets("a"), &recordingApplier{})

	require.Len(t, got.Statements, 1)
	st := got.Statements[0]
	assert.Equal(t, "b", st.ECB.Probe.Target)
	assert.Equal(t, 1, got.Actions.Len())
	assert.Equal(t, got.Actions.Head(), st.FirstAction)
	assert.Equal(t, got.Actions.Tail(), st.LastAction)
	assert.Equal(t, uint64(1), got.Actions.Get(st.FirstAction).Arg)
	assert.Equal(t, st.FirstAction, st.ECB.Action)

	require.Len(t, report.Rejected(), 1)
	assert.Equal(t, "a", report.Rejected()[0].Target)
	assert.True(t, report.RejectedTargets.Contains("a"))
	assert.Equal(t, 1, report.PrunedActions)
}

func TestSharedListIntegrity(t *testing.T) {
	p := testutils.ChainProgram(3, "s1", "s2")
	want := testutils.View(p).Statements[1]
	// s2 now starts the list
	want.ECBAction = 0

	got, _ := decodeT(t, encodeT(t, p), rejectTargets("s1"), nil)
	require.Len(t, got.Statements, 1)
	st := got.Statements[0]

	if diff := cmp.Diff(want, testutils.View(got).Statements[0]); diff != "" {
		t.Errorf("surviving statement differs (-want +got):\n%s", diff)
	}
	assert.Equal(t, program.NoAction, got.Actions.Prev(st.FirstAction))
	assert.Equal(t, program.NoAction, got.Actions.Next(st.LastAction))
	assert.Equal(t, 3, got.Actions.Len())
	require.NoError(t, got.Validate())
}

func TestAdjacentOwnerSplice(t *testing.T) {
	targets := []string{"s0", "s1", "s2"}
	tests := []struct {
		reject    []string
		survivors []string
	}{
		{[]string{"s1"}, []string{"s0", "s2"}},
		{[]string{"s0"}, []string{"s1", "s2"}},
		{[]string{"s2"}, []string{"s0", "s1"}},
		{[]string{"s0", "s2"}, []string{"s1"}},
		{[]string{"s0", "s1", "s2"}, nil},
	}

	for _, test := range tests {
		p := testutils.ChainProgram(2, targets...)
		got, report := decodeT(t, encodeT(t, p), rejectTargets(test.reject...), nil)

		var survivors []string
		for _, st := range got.Statements {
			survivors = append(survivors, st.ECB.Probe.Target)
		}
		assert.Equal(t, test.survivors, survivors, test.reject)
		assert.Equal(t, 2*len(test.survivors), got.Actions.Len(), test.reject)
		assert.Equal(t, 2*len(test.reject), report.PrunedActions, test.reject)

		for i := 1; i < len(got.Statements); i++ {
			prev, next := got.Statements[i-1], got.Statements[i]
			assert.Equal(t, next.FirstAction, got.Actions.Next(prev.LastAction), test.reject)
			assert.Equal(t, prev.LastAction, got.Actions.Prev(next.FirstAction), test.reject)
		}
		if len(got.Statements) == 0 {
			assert.Equal(t, program.NoAction, got.Actions.Head())
			assert.Equal(t, program.NoAction, got.Actions.Tail())
		}
		require.NoError(t, got.Validate())
	}
}

func TestOptionTableBytes(t *testing.T) {
	p := program.New()
	var want [][]byte
	for i, opt := range p.Options.Table(program.RuntimeOption) {
		arg := string(bytes.Repeat([]byte{'x'}, i*3))
		require.NoError(t, p.Options.SetOption(opt.Name, arg))
	}
	for _, opt := range p.Options.Enabled() {
		rec, err := marshalOption(binary.LittleEndian, opt)
		require.NoError(t, err)
		want = append(want, rec)
	}

	b := encodeT(t, p, WithOptionTableSize(0, 0))
	var root rootRecord
	readRecord(t, b, RootHandle, &root)
	require.NotEqual(t, NoHandle, root.Options)

	f, err := elfx.NewSafeELFFile(bytes.NewReader(b))
	require.NoError(t, err)
	data, err := f.SectionData(root.Options)
	require.NoError(t, err)
	assert.Equal(t, bytes.Join(want, nil), data)

	apply := &recordingApplier{}
	decodeT(t, b, nil, apply)
	require.Len(t, apply.calls, len(want))
	for i, opt := range p.Options.Enabled() {
		assert.Equal(t, AppliedOption{Name: opt.Name, Arg: opt.Arg}, apply.calls[i])
	}
}

func TestOptionStringValue(t *testing.T) {
	opt, ok := program.NewOptionSet().Lookup("incdir")
	require.True(t, ok)
	rec, err := marshalOption(binary.BigEndian, opt)
	require.NoError(t, err)

	var hdr optionHeader
	require.NoError(t, binary.Read(bytes.NewReader(rec), binary.BigEndian, &hdr))
	assert.Equal(t, []byte{'-', 'I', 0, 0, 0, 0, 0, 0}, hdr.Value[:])
	assert.Equal(t, uint64(1), hdr.Len)
	assert.Len(t, rec, optionHeaderSize+1)
}

func TestOptionTableOverflow(t *testing.T) {
	p := testutils.RichProgram()
	_, err := Encode(p, testLogger(t), WithOptionTableSize(16, 64))
	require.ErrorIs(t, err, ErrResource)
}

func TestEncodeInvariants(t *testing.T) {
	t.Run("nil ECB", func(t *testing.T) {
		p := program.New()
		p.Statements = append(p.Statements, &program.Statement{})
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("first without last", func(t *testing.T) {
		p := testutils.ChainProgram(1, "a")
		p.Statements[0].LastAction = program.NoAction
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("shared action", func(t *testing.T) {
		p := testutils.ChainProgram(1, "a")
		st := p.Statements[0]
		p.Statements = append(p.Statements, &program.Statement{
			ECB:         &program.ECBDesc{Probe: program.ProbeDesc{Target: "b"}},
			FirstAction: st.FirstAction,
			LastAction:  st.LastAction,
		})
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("ECB action never emitted", func(t *testing.T) {
		p := testutils.ChainProgram(1, "a", "b")
		p.Statements[0].ECB.Action = p.Statements[1].FirstAction
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("broken range", func(t *testing.T) {
		p := testutils.ChainProgram(2, "a", "b")
		p.Statements[1].LastAction = p.Statements[0].FirstAction
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("probe name too long", func(t *testing.T) {
		p := testutils.ChainProgram(1, string(bytes.Repeat([]byte{'t'}, program.TargetNameLen)))
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("NUL in target", func(t *testing.T) {
		p := testutils.SimpleProgram("a\x00b", "c")
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
		require.ErrorIs(t, err, strutils.ErrEmbeddedNUL)
	})

	t.Run("NUL in aggregation name", func(t *testing.T) {
		p := testutils.SimpleProgram("a")
		p.Statements[0].AggData = &program.Ident{Name: "op\x00ens"}
		_, err := Encode(p, testLogger(t))
		require.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("nil program", func(t *testing.T) {
		_, err := Encode(nil)
		require.ErrorIs(t, err, ErrInvariant)
	})
}

func TestECBActionOfEarlierStatement(t *testing.T) {
	p := testutils.ChainProgram(1, "a", "b")
	p.Statements[1].ECB.Action = p.Statements[0].FirstAction
	require.NoError(t, p.Validate())
	b := encodeT(t, p)

	got, _ := decodeT(t, b, nil, nil)
	assert.Equal(t, got.Statements[0].FirstAction, got.Statements[1].ECB.Action)

	// the action the ECB starts at goes away with its statement
	_, _, err := DecodeBytes(b, rejectTargets("a"), nil, testLogger(t))
	require.ErrorIs(t, err, ErrInvariant)
}

func TestDecodeCorrupt(t *testing.T) {
	good := encodeT(t, testutils.SimpleProgram("a", "b"))

	patch := func(fn func(b []byte)) []byte {
		b := bytes.Clone(good)
		fn(b)
		return b
	}

	tests := map[string][]byte{
		"not an ELF file": []byte("tracespec"),
		"truncated":       good[:60],
		"bad root name": patch(func(b []byte) {
			i := bytes.Index(b, []byte(".dtrace_prog"))
			require.GreaterOrEqual(t, i, 0)
			copy(b[i:], ".dtrace_prug")
		}),
		"dangling ECB action": patch(func(b []byte) {
			_, off := findSection(t, b, ".dtrace_ecbdesc", 0)
			binary.LittleEndian.PutUint32(b[off:], 0xffff)
		}),
		"ECB action is a statement": patch(func(b []byte) {
			h, _ := findSection(t, b, ".dtrace_stmtdesc", 0)
			_, off := findSection(t, b, ".dtrace_actdesc", 0)
			binary.LittleEndian.PutUint32(b[off+4:], h)
		}),
		"truncated option table": patch(func(b []byte) {
			_, off := findSection(t, b, ".dtrace_opts", 0)
			binary.LittleEndian.PutUint64(b[off+64+8:], 0xffffffff)
		}),
		"statement chain loop": patch(func(b []byte) {
			h, off := findSection(t, b, ".dtrace_stmtdesc", 1)
			binary.LittleEndian.PutUint32(b[off+12:], h)
		}),
		"foreign action range": patch(func(b []byte) {
			_, off := findSection(t, b, ".dtrace_stmtdesc", 1)
			first := binary.LittleEndian.Uint32(b[off+4:])
			_, off0 := findSection(t, b, ".dtrace_stmtdesc", 0)
			binary.LittleEndian.PutUint32(b[off0+8:], first)
		}),
	}

	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			p, report, err := DecodeBytes(b, nil, &recordingApplier{}, testLogger(t))
			require.ErrorIs(t, err, ErrCorrupt)
			assert.Nil(t, p)
			assert.Nil(t, report)
		})
	}
}

func TestDecodeCorruptRejected(t *testing.T) {
	b := encodeT(t, testutils.SimpleProgram("a", "b"))
	_, off := findSection(t, b, ".dtrace_ecbdesc", 0)
	binary.LittleEndian.PutUint32(b[off:], 0xffff)

	// handles are checked before the statement is filtered out
	p, report, err := DecodeBytes(b, rejectTargets("a"), nil, testLogger(t))
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Nil(t, p)
	assert.Nil(t, report)
}

func TestDecodeApplierError(t *testing.T) {
	b := encodeT(t, testutils.SimpleProgram("a"))

	_, _, err := DecodeBytes(b, nil, applierFunc(func(name, _ string) error {
		return assert.AnError
	}), testLogger(t))
	require.ErrorIs(t, err, assert.AnError)
}

type applierFunc func(name, arg string) error

func (f applierFunc) SetOption(name, arg string) error { return f(name, arg) }

func TestConcurrentEncode(t *testing.T) {
	want := encodeT(t, testutils.RichProgram())

	log := testLogger(t)
	var g errgroup.Group
	results := make([][]byte, 16)
	for i := range results {
		i := i
		g.Go(func() error {
			b, err := Encode(testutils.RichProgram(), log)
			results[i] = b
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, b := range results {
		assert.Equal(t, want, b)
	}
}

func TestExtendedNumbering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}

	// statement, ECB and action: three sections per statement
	n := int(elf.SHN_LORESERVE)/3 + 10
	targets := make([]string, n)
	for i := range targets {
		targets[i] = "t"
	}
	p := testutils.ChainProgram(1, targets...)
	b, err := Encode(p)
	require.NoError(t, err)

	f, err := elfx.NewSafeELFFile(bytes.NewReader(b))
	require.NoError(t, err)
	require.Greater(t, len(f.Sections), int(elf.SHN_LORESERVE))

	got, _, err := DecodeBytes(b, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got.Statements, n)
	assert.Equal(t, n, got.Actions.Len())
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	b, err := Encode(testutils.SimpleProgram("a"), WithLogger(l), WithTrace(true))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Allocated record")

	buf.Reset()
	_, _, err = DecodeBytes(b, nil, nil, WithLogger(l), WithTrace(true))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ACTIONLIST_WALKED")

	buf.Reset()
	_, err = Encode(testutils.SimpleProgram("a"), WithLogger(l))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracing_spec.elf")
	require.NoError(t, os.WriteFile(path, encodeT(t, testutils.SimpleProgram("a")), 0600))

	got, _, err := DecodeFile(path, nil, nil, testLogger(t))
	require.NoError(t, err)
	assert.Len(t, got.Statements, 1)

	_, _, err = DecodeFile(filepath.Join(t.TempDir(), "missing.elf"), nil, nil, testLogger(t))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NotErrorIs(t, err, ErrCorrupt)
}
