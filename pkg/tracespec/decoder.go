// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	elfx "github.com/cilium/tracespec/pkg/elf"
	"github.com/cilium/tracespec/pkg/growbuf"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/logger/logfields"
	"github.com/cilium/tracespec/pkg/metrics/tracespecmetrics"
	"github.com/cilium/tracespec/pkg/program"
	"github.com/cilium/tracespec/pkg/strutils"
)

// Resolver decides whether a statement whose probe has the given target
// belongs to the current execution context.
type Resolver interface {
	Belongs(target string) bool
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(target string) bool

func (f ResolverFunc) Belongs(target string) bool { return f(target) }

// AcceptAll keeps every statement.
var AcceptAll Resolver = ResolverFunc(func(string) bool { return true })

// OptionApplier receives the options stored in a container.
// *program.OptionSet implements it.
type OptionApplier interface {
	SetOption(name, arg string) error
}

// StatementResult is the filtering outcome of one statement record.
type StatementResult struct {
	Handle   uint32
	Target   string
	Accepted bool
}

// AppliedOption is one option passed to the OptionApplier.
type AppliedOption struct {
	Name string
	Arg  string
}

// Report describes what Decode did with a container.
type Report struct {
	Statements      []StatementResult
	AcceptedTargets mapset.Set[string]
	RejectedTargets mapset.Set[string]
	ResolverFlags   uint32
	Options         []AppliedOption
	PrunedActions   int
}

func newReport() *Report {
	return &Report{
		AcceptedTargets: mapset.NewThreadUnsafeSet[string](),
		RejectedTargets: mapset.NewThreadUnsafeSet[string](),
	}
}

func (r *Report) filter(accepted bool) []StatementResult {
	var ret []StatementResult
	for _, s := range r.Statements {
		if s.Accepted == accepted {
			ret = append(ret, s)
		}
	}
	return ret
}

// Accepted returns the statements kept by the resolver, in chain order.
func (r *Report) Accepted() []StatementResult { return r.filter(true) }

// Rejected returns the statements pruned by the resolver, in chain order.
func (r *Report) Rejected() []StatementResult { return r.filter(false) }

type stmtEntry struct {
	handle uint32
	rec    stmtRecord
}

// decoder holds the state of one Decode call.
type decoder struct {
	f     *elfx.SafeELFFile
	order binary.ByteOrder
	state decodeState

	root  rootRecord
	chain []stmtEntry

	prog *program.Program
	// actions maps action record handles to the reconstructed list.
	actions map[uint32]program.ActionRef
	idnames []byte

	report *Report
	log    logrus.FieldLogger
	dbg    *logger.DebugLogger
}

// Decode reconstructs the program stored in the container read from r,
// keeping only the statements res accepts. Options stored in the container
// are passed to apply; with a nil apply they are set on the returned
// program. A nil res accepts every statement.
func Decode(r io.ReaderAt, res Resolver, apply OptionApplier, opts ...Option) (*program.Program, *Report, error) {
	f, err := elfx.NewSafeELFFile(r)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCorrupt, err)
		tracespecmetrics.ErrorsTotal.WithLabelValues(tracespecmetrics.OpDecode, errorReason(err)).Inc()
		return nil, nil, err
	}
	return decodeFile(f, res, apply, newConfig(opts))
}

// DecodeBytes is Decode for an in-memory container.
func DecodeBytes(b []byte, res Resolver, apply OptionApplier, opts ...Option) (*program.Program, *Report, error) {
	return Decode(bytes.NewReader(b), res, apply, opts...)
}

// DecodeFile is Decode for a container stored at path.
func DecodeFile(path string, res Resolver, apply OptionApplier, opts ...Option) (*program.Program, *Report, error) {
	f, err := elfx.OpenSafeELFFile(path)
	if err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			err = fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		tracespecmetrics.ErrorsTotal.WithLabelValues(tracespecmetrics.OpDecode, errorReason(err)).Inc()
		return nil, nil, err
	}
	defer f.Close()
	return decodeFile(f, res, apply, newConfig(opts))
}

func decodeFile(f *elfx.SafeELFFile, res Resolver, apply OptionApplier, cfg config) (*program.Program, *Report, error) {
	prog, report, err := decode(f, res, apply, cfg)
	if err != nil {
		tracespecmetrics.ErrorsTotal.WithLabelValues(tracespecmetrics.OpDecode, errorReason(err)).Inc()
		return nil, nil, err
	}
	tracespecmetrics.ContainersTotal.WithLabelValues(tracespecmetrics.OpDecode).Inc()
	tracespecmetrics.StatementsTotal.WithLabelValues(tracespecmetrics.ResultAccepted).Add(float64(len(report.Accepted())))
	tracespecmetrics.StatementsTotal.WithLabelValues(tracespecmetrics.ResultRejected).Add(float64(len(report.Rejected())))
	tracespecmetrics.ActionsPrunedTotal.Add(float64(report.PrunedActions))
	return prog, report, nil
}

func decode(f *elfx.SafeELFFile, res Resolver, apply OptionApplier, cfg config) (*program.Program, *Report, error) {
	if f.Class != elf.ELFCLASS32 {
		return nil, nil, fmt.Errorf("%w: unexpected ELF class %s", ErrCorrupt, f.Class)
	}
	order, err := elfx.ByteOrder(f.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if res == nil {
		res = AcceptAll
	}

	log := cfg.log.WithField(logfields.LogSubsys, "decoder")
	d := &decoder{
		f:       f,
		order:   order,
		prog:    program.New(),
		actions: make(map[uint32]program.ActionRef),
		report:  newReport(),
		log:     log,
		dbg:     logger.NewDebugLogger(log, cfg.trace),
	}
	if apply == nil {
		apply = d.prog.Options
	}

	if err := d.readRoot(); err != nil {
		return nil, nil, err
	}
	if err := d.walkActions(); err != nil {
		return nil, nil, err
	}
	for _, e := range d.chain {
		if err := d.resolveStatement(e, res); err != nil {
			return nil, nil, fmt.Errorf("statement %d: %w", e.handle, err)
		}
	}
	if err := d.checkECBActions(); err != nil {
		return nil, nil, err
	}
	if err := d.applyOptions(apply); err != nil {
		return nil, nil, err
	}
	if err := d.enter(stateDone); err != nil {
		return nil, nil, err
	}

	log.WithFields(logrus.Fields{
		"accepted": len(d.report.Accepted()),
		"rejected": len(d.report.Rejected()),
		"actions":  d.prog.Actions.Len(),
	}).Debug("Decoded program")
	return d.prog, d.report, nil
}

func (d *decoder) enter(next decodeState) error {
	if !d.state.canEnter(next) {
		return fmt.Errorf("%w: decoder cannot go from %s to %s", ErrInvariant, d.state, next)
	}
	d.dbg.Debugf("Decoder state %s -> %s", d.state, next)
	d.state = next
	return nil
}

// section returns the data of the section at handle h after checking that
// it holds a record of kind k.
func (d *decoder) section(h uint32, k recordKind) ([]byte, error) {
	sec, err := d.f.SectionByIndex(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %s record: %w", ErrCorrupt, k, err)
	}
	spec := k.spec()
	if sec.Name != spec.Name || sec.Type != spec.Type {
		return nil, fmt.Errorf("%w: handle %d: expected %s record, found section %q of type %s",
			ErrCorrupt, h, k, sec.Name, sec.Type)
	}
	data, err := d.f.SectionData(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return data, nil
}

// readFixed reads the fixed size record of kind k at handle h into v.
func (d *decoder) readFixed(h uint32, k recordKind, v any) error {
	data, err := d.section(h, k)
	if err != nil {
		return err
	}
	if len(data) != binary.Size(v) {
		return fmt.Errorf("%w: handle %d: %s record is %d bytes, expected %d",
			ErrCorrupt, h, k, len(data), binary.Size(v))
	}
	if err := binary.Read(bytes.NewReader(data), d.order, v); err != nil {
		return fmt.Errorf("%w: handle %d: %w", ErrCorrupt, h, err)
	}
	return nil
}

func (d *decoder) readRoot() error {
	if err := d.readFixed(RootHandle, kindRoot, &d.root); err != nil {
		return err
	}
	d.prog.DOFVersion = d.root.DOFVersion
	d.prog.ResolverFlags = d.root.ResolverFlags
	d.report.ResolverFlags = d.root.ResolverFlags

	chain, err := d.readChain(d.root.FirstStmt)
	if err != nil {
		return err
	}
	d.chain = chain
	return d.enter(stateRootRead)
}

// readChain reads the statement records linked from first.
func (d *decoder) readChain(first uint32) ([]stmtEntry, error) {
	var chain []stmtEntry
	seen := make(map[uint32]struct{})
	for h := first; h != NoHandle; {
		if _, ok := seen[h]; ok {
			return nil, fmt.Errorf("%w: statement chain loops at handle %d", ErrCorrupt, h)
		}
		seen[h] = struct{}{}

		e := stmtEntry{handle: h}
		if err := d.readFixed(h, kindStatement, &e.rec); err != nil {
			return nil, err
		}
		chain = append(chain, e)
		h = e.rec.Next
	}
	return chain, nil
}

// walkActions rebuilds the whole program action list. It starts at the
// first action of the first statement that has any.
func (d *decoder) walkActions() error {
	head := NoHandle
	for _, e := range d.chain {
		if e.rec.Action != NoHandle {
			head = e.rec.Action
			break
		}
	}

	for h := head; h != NoHandle; {
		if _, ok := d.actions[h]; ok {
			return fmt.Errorf("%w: action list loops at handle %d", ErrCorrupt, h)
		}
		var rec actionRecord
		if err := d.readFixed(h, kindAction, &rec); err != nil {
			return err
		}
		difo, err := d.readDIFO(rec.DIFO)
		if err != nil {
			return fmt.Errorf("action %d: %w", h, err)
		}
		d.actions[h] = d.prog.Actions.Append(program.Action{
			DIFO:   difo,
			Kind:   program.ActionKind(rec.Kind),
			NTuple: rec.NTuple,
			Arg:    rec.Arg,
			UArg:   rec.UArg,
		})
		h = rec.Next
	}
	d.dbg.Debugf("Walked %d actions from handle %d", len(d.actions), head)
	return d.enter(stateActionListWalked)
}

func (d *decoder) readDIFO(h uint32) (*program.DIFO, error) {
	if h == NoHandle {
		return nil, nil
	}
	data, err := d.section(h, kindDIFO)
	if err != nil {
		return nil, err
	}
	if len(data) < difoHeaderSize {
		return nil, fmt.Errorf("%w: handle %d: truncated DIFO header", ErrCorrupt, h)
	}
	var hdr difoHeader
	if err := binary.Read(bytes.NewReader(data[:difoHeaderSize]), d.order, &hdr); err != nil {
		return nil, fmt.Errorf("%w: handle %d: %w", ErrCorrupt, h, err)
	}
	words := data[difoHeaderSize:]
	if hdr.Len > uint64(len(words)/4) {
		return nil, fmt.Errorf("%w: handle %d: DIFO claims %d instructions, has room for %d",
			ErrCorrupt, h, hdr.Len, len(words)/4)
	}

	dp := &program.DIFO{
		RType:       typeFromRecord(hdr.RType),
		Destructive: hdr.Destructive != 0,
	}
	if hdr.Len > 0 {
		dp.Buf = make([]program.Instr, hdr.Len)
		if err := binary.Read(bytes.NewReader(words[:hdr.Len*4]), d.order, dp.Buf); err != nil {
			return nil, fmt.Errorf("%w: handle %d: %w", ErrCorrupt, h, err)
		}
	}

	if dp.IntTab, err = d.readIntTab(hdr.IntTab, hdr.IntLen); err != nil {
		return nil, err
	}
	if dp.StrTab, err = d.readBlob(hdr.StrTab, hdr.StrLen, kindStrTab); err != nil {
		return nil, err
	}
	if dp.SymTab, err = d.readBlob(hdr.SymTab, hdr.SymLen, kindSymTab); err != nil {
		return nil, err
	}
	if dp.VarTab, err = d.readVarTab(hdr.VarTab, hdr.VarLen); err != nil {
		return nil, err
	}
	return dp, nil
}

// tableData returns the data of an optional DIFO table holding n entries of
// entSize bytes. A nil slice means the table is absent.
func (d *decoder) tableData(h uint32, n uint64, k recordKind, entSize int) ([]byte, error) {
	if h == NoHandle {
		if n != 0 {
			return nil, fmt.Errorf("%w: absent %s table with %d entries", ErrCorrupt, k, n)
		}
		return nil, nil
	}
	data, err := d.section(h, k)
	if err != nil {
		return nil, err
	}
	if len(data)%entSize != 0 || uint64(len(data)/entSize) != n {
		return nil, fmt.Errorf("%w: handle %d: %s table is %d bytes, expected %d entries",
			ErrCorrupt, h, k, len(data), n)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (d *decoder) readIntTab(h uint32, n uint64) ([]uint64, error) {
	data, err := d.tableData(h, n, kindIntTab, 8)
	if data == nil || err != nil {
		return nil, err
	}
	tab := make([]uint64, n)
	if err := binary.Read(bytes.NewReader(data), d.order, tab); err != nil {
		return nil, fmt.Errorf("%w: handle %d: %w", ErrCorrupt, h, err)
	}
	return tab, nil
}

func (d *decoder) readBlob(h uint32, n uint64, k recordKind) ([]byte, error) {
	data, err := d.tableData(h, n, k, 1)
	if data == nil || err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

func (d *decoder) readVarTab(h uint32, n uint64) ([]program.DIFV, error) {
	data, err := d.tableData(h, n, kindVarTab, varRecordSize)
	if data == nil || err != nil {
		return nil, err
	}
	recs := make([]varRecord, n)
	if err := binary.Read(bytes.NewReader(data), d.order, recs); err != nil {
		return nil, fmt.Errorf("%w: handle %d: %w", ErrCorrupt, h, err)
	}
	tab := make([]program.DIFV, n)
	for i, r := range recs {
		tab[i] = program.DIFV{
			Name:  r.Name,
			ID:    r.ID,
			Kind:  r.Kind,
			Scope: r.Scope,
			Flags: r.Flags,
			Type:  typeFromRecord(r.Type),
		}
	}
	return tab, nil
}

func probeFromRecord(r *probeRecord) program.ProbeDesc {
	return program.ProbeDesc{
		ID:       r.ID,
		Target:   strutils.CString(r.Target[:]),
		Provider: strutils.CString(r.Provider[:]),
		Module:   strutils.CString(r.Module[:]),
		Function: strutils.CString(r.Function[:]),
		Name:     strutils.CString(r.Name[:]),
	}
}

func (d *decoder) resolveStatement(e stmtEntry, res Resolver) error {
	if e.rec.ECB == NoHandle {
		return fmt.Errorf("%w: statement has no ECB", ErrCorrupt)
	}
	if (e.rec.Action == NoHandle) != (e.rec.ActionLast == NoHandle) {
		return fmt.Errorf("%w: first action %d, last action %d", ErrCorrupt, e.rec.Action, e.rec.ActionLast)
	}

	var ecb ecbRecord
	if err := d.readFixed(e.rec.ECB, kindECB, &ecb); err != nil {
		return err
	}
	probe := probeFromRecord(&ecb.Probe)
	var ecbAction program.ActionRef
	if ecb.Action != NoHandle {
		ref, ok := d.actions[ecb.Action]
		if !ok {
			return fmt.Errorf("%w: ECB action %d is not in the action list", ErrCorrupt, ecb.Action)
		}
		ecbAction = ref
	}

	log := d.dbg.WithFields(logrus.Fields{
		logfields.Statement: e.handle,
		logfields.Target:    probe.Target,
	})
	if !res.Belongs(probe.Target) {
		if err := d.reject(e); err != nil {
			return err
		}
		log.Debug("Statement rejected")
		d.report.Statements = append(d.report.Statements, StatementResult{Handle: e.handle, Target: probe.Target})
		d.report.RejectedTargets.Add(probe.Target)
		return d.enter(stateStatementResolved)
	}

	pred, err := d.readDIFO(ecb.Pred)
	if err != nil {
		return fmt.Errorf("predicate: %w", err)
	}
	st := &program.Statement{
		ECB: &program.ECBDesc{
			Probe: probe,
			Pred:  pred,
			UArg:  ecb.UArg,
		},
		DescAttr: attrFromRecord(e.rec.DescAttr),
		StmtAttr: attrFromRecord(e.rec.StmtAttr),
	}
	if ecb.Action != NoHandle {
		st.ECB.Action = ecbAction
	}

	if e.rec.Action != NoHandle {
		if st.FirstAction, st.LastAction, err = d.ownedRange(e); err != nil {
			return err
		}
	}

	if e.rec.AggData != NoHandle {
		if st.AggData, err = d.readIdent(e.rec.AggData); err != nil {
			return err
		}
	}

	d.prog.Statements = append(d.prog.Statements, st)
	log.Debug("Statement accepted")
	d.report.Statements = append(d.report.Statements, StatementResult{Handle: e.handle, Target: probe.Target, Accepted: true})
	d.report.AcceptedTargets.Add(probe.Target)
	return d.enter(stateStatementResolved)
}

// ownedRange resolves the action range of an accepted statement and checks
// that it is exactly the run of actions the statement owns.
func (d *decoder) ownedRange(e stmtEntry) (first, last program.ActionRef, err error) {
	var ok bool
	if first, ok = d.actions[e.rec.Action]; !ok {
		return 0, 0, fmt.Errorf("%w: first action %d is not in the action list", ErrCorrupt, e.rec.Action)
	}
	if last, ok = d.actions[e.rec.ActionLast]; !ok {
		return 0, 0, fmt.Errorf("%w: last action %d is not in the action list", ErrCorrupt, e.rec.ActionLast)
	}

	owner := uint64(e.handle)
	foreign := false
	err = d.prog.Actions.Range(first, last, func(_ program.ActionRef, a *program.Action) bool {
		foreign = a.UArg != owner
		return !foreign
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if foreign {
		return 0, 0, fmt.Errorf("%w: action range [%d, %d] holds actions of another statement",
			ErrCorrupt, e.rec.Action, e.rec.ActionLast)
	}
	for _, ref := range []program.ActionRef{d.prog.Actions.Prev(first), d.prog.Actions.Next(last)} {
		if a := d.prog.Actions.Get(ref); a != nil && a.UArg == owner {
			return 0, 0, fmt.Errorf("%w: statement owns actions outside [%d, %d]",
				ErrCorrupt, e.rec.Action, e.rec.ActionLast)
		}
	}
	return first, last, nil
}

// reject unlinks the run of actions owned by a rejected statement from the
// shared list. The run is found by owner tag since positions shift as
// earlier runs are removed.
func (d *decoder) reject(e stmtEntry) error {
	first, last, ok := d.prog.Actions.FindOwnerRun(uint64(e.handle))
	if e.rec.Action == NoHandle {
		if ok {
			return fmt.Errorf("%w: statement without actions owns action run", ErrCorrupt)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: no actions owned by statement", ErrCorrupt)
	}
	if d.actions[e.rec.Action] != first || d.actions[e.rec.ActionLast] != last {
		return fmt.Errorf("%w: owned actions do not match range [%d, %d]",
			ErrCorrupt, e.rec.Action, e.rec.ActionLast)
	}
	n, err := d.prog.Actions.RemoveRun(first, last)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	d.report.PrunedActions += n
	return nil
}

func (d *decoder) readIdent(h uint32) (*program.Ident, error) {
	var rec identRecord
	if err := d.readFixed(h, kindIdent, &rec); err != nil {
		return nil, err
	}
	if d.idnames == nil {
		secs := d.f.SectionsByName(idNamesSection)
		if len(secs) != 1 || secs[0].Type != elf.SHT_STRTAB {
			return nil, fmt.Errorf("%w: expected one %s section, found %d", ErrCorrupt, idNamesSection, len(secs))
		}
		data, err := secs[0].Data()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		d.idnames = data
	}
	name, err := growbuf.StringAt(d.idnames, rec.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: identifier %d: %w", ErrCorrupt, h, err)
	}
	return &program.Ident{
		Name:  name,
		ID:    rec.ID,
		Kind:  rec.Kind,
		Flags: rec.Flags,
		Attr:  attrFromRecord(rec.Attr),
		Vers:  rec.Vers,
	}, nil
}

// checkECBActions fails if pruning removed the action an accepted ECB
// starts at.
func (d *decoder) checkECBActions() error {
	for i, st := range d.prog.Statements {
		if ref := st.ECB.Action; ref != program.NoAction && !d.prog.Actions.Contains(ref) {
			return fmt.Errorf("%w: statement %d: ECB action was pruned with a rejected statement", ErrInvariant, i)
		}
	}
	return nil
}

func (d *decoder) applyOptions(apply OptionApplier) error {
	if h := d.root.Options; h != NoHandle {
		data, err := d.section(h, kindOptions)
		if err != nil {
			return err
		}
		for off := 0; off < len(data); {
			if len(data)-off < optionHeaderSize {
				return fmt.Errorf("%w: option table truncated at offset %d", ErrCorrupt, off)
			}
			var hdr optionHeader
			if err := binary.Read(bytes.NewReader(data[off:off+optionHeaderSize]), d.order, &hdr); err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			off += optionHeaderSize
			if hdr.Len == 0 || hdr.Len > uint64(len(data)-off) || data[off+int(hdr.Len)-1] != 0 {
				return fmt.Errorf("%w: option argument at offset %d is truncated", ErrCorrupt, off)
			}
			name := strutils.CString(hdr.Name[:])
			arg := string(data[off : off+int(hdr.Len)-1])
			off += int(hdr.Len)

			if err := apply.SetOption(name, arg); err != nil {
				return fmt.Errorf("applying option %q: %w", name, err)
			}
			d.log.WithField(logfields.Option, name).Debug("Applied option")
			d.report.Options = append(d.report.Options, AppliedOption{Name: name, Arg: arg})
		}
	}
	return d.enter(stateOptionsApplied)
}
