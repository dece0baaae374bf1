// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	elfx "github.com/cilium/tracespec/pkg/elf"
	"github.com/cilium/tracespec/pkg/growbuf"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/logger/logfields"
	"github.com/cilium/tracespec/pkg/metrics/tracespecmetrics"
	"github.com/cilium/tracespec/pkg/program"
	"github.com/cilium/tracespec/pkg/strutils"
)

type config struct {
	data      elf.Data
	log       logrus.FieldLogger
	trace     bool
	optionCap int
	optionMax int
}

// Option configures Encode and Decode.
type Option func(*config)

// WithByteOrder selects the byte order of encoded containers. The default is
// little endian.
func WithByteOrder(data elf.Data) Option {
	return func(c *config) {
		c.data = data
	}
}

// WithLogger sets the logger used by Encode and Decode.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithTrace logs every emitted record at info level.
func WithTrace(enabled bool) Option {
	return func(c *config) {
		c.trace = enabled
	}
}

// WithOptionTableSize sets the initial and maximum capacity of the option
// table. A max of 0 leaves it unbounded.
func WithOptionTableSize(initial, max int) Option {
	return func(c *config) {
		c.optionCap = initial
		c.optionMax = max
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		data: elf.ELFDATA2LSB,
		log:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// encoder holds the state of one Encode call.
type encoder struct {
	order binary.ByteOrder
	w     *elfx.Writer

	// arena is indexed by handle. Entries stay mutable until finalize, so
	// back-patching a next field is a plain field write.
	arena []record

	actions    map[program.ActionRef]uint32
	prevAction uint32
	prevStmt   uint32

	opts    *growbuf.Buffer
	idnames *growbuf.Buffer

	log logrus.FieldLogger
	dbg *logger.DebugLogger
}

// Encode serializes p into an ELF container.
func Encode(p *program.Program, opts ...Option) ([]byte, error) {
	b, err := encode(p, newConfig(opts))
	if err != nil {
		tracespecmetrics.ErrorsTotal.WithLabelValues(tracespecmetrics.OpEncode, errorReason(err)).Inc()
		return nil, err
	}
	tracespecmetrics.ContainersTotal.WithLabelValues(tracespecmetrics.OpEncode).Inc()
	tracespecmetrics.ContainerSize.Observe(float64(len(b)))
	return b, nil
}

func encode(p *program.Program, cfg config) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil program", ErrInvariant)
	}

	w, err := elfx.NewWriter(cfg.data)
	if err != nil {
		return nil, err
	}

	log := cfg.log.WithField(logfields.LogSubsys, "encoder")
	e := &encoder{
		order:   w.ByteOrder(),
		w:       w,
		arena:   make([]record, w.NumSections()),
		actions: make(map[program.ActionRef]uint32),
		opts:    growbuf.New(cfg.optionCap, growbuf.WithMaxCap(cfg.optionMax)),
		idnames: growbuf.NewStringTable(),
		log:     log,
		dbg:     logger.NewDebugLogger(log, cfg.trace),
	}

	root := &rootRecord{
		DOFVersion:    p.DOFVersion,
		ResolverFlags: p.ResolverFlags,
	}
	h, err := e.alloc(root)
	if err != nil {
		return nil, err
	}
	if h != RootHandle {
		return nil, fmt.Errorf("%w: root record got handle %d", ErrInvariant, h)
	}

	for i, st := range p.Statements {
		sh, err := e.emitStatement(p, st)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		if root.FirstStmt == NoHandle {
			root.FirstStmt = sh
		}
	}

	if root.Options, err = e.emitOptions(p.Options); err != nil {
		return nil, err
	}
	if _, err := e.alloc(&blobRecord{k: kindIdNames, data: e.idnames.Bytes()}); err != nil {
		return nil, err
	}

	b, err := e.finalize()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"sections":     len(e.arena),
		"statements":   len(p.Statements),
		logfields.Size: len(b),
	}).Debug("Encoded program")
	return b, nil
}

// alloc creates the section of rec and returns its handle.
func (e *encoder) alloc(rec record) (uint32, error) {
	sec, err := e.w.NewSection(rec.kind().spec())
	if err != nil {
		return NoHandle, fmt.Errorf("%w: %w", ErrResource, err)
	}
	if int(sec.Index) != len(e.arena) {
		return NoHandle, fmt.Errorf("%w: section %d allocated out of order", ErrInvariant, sec.Index)
	}
	e.arena = append(e.arena, rec)
	e.dbg.WithFields(logrus.Fields{
		logfields.Handle: sec.Index,
		logfields.Kind:   rec.kind(),
	}).Debug("Allocated record")
	return sec.Index, nil
}

func (e *encoder) emitDIFO(dp *program.DIFO) (uint32, error) {
	if dp == nil {
		return NoHandle, nil
	}

	rec := &difoRecord{buf: dp.Buf}
	rec.hdr.RType = typeToRecord(dp.RType)
	rec.hdr.Len = uint64(len(dp.Buf))
	if dp.Destructive {
		rec.hdr.Destructive = 1
	}

	var err error
	if dp.IntTab != nil {
		if rec.hdr.IntTab, err = e.alloc(intTabRecord(dp.IntTab)); err != nil {
			return NoHandle, err
		}
		rec.hdr.IntLen = uint64(len(dp.IntTab))
	}
	if dp.StrTab != nil {
		if rec.hdr.StrTab, err = e.alloc(&blobRecord{k: kindStrTab, data: dp.StrTab}); err != nil {
			return NoHandle, err
		}
		rec.hdr.StrLen = uint64(len(dp.StrTab))
	}
	if dp.SymTab != nil {
		if rec.hdr.SymTab, err = e.alloc(&blobRecord{k: kindSymTab, data: dp.SymTab}); err != nil {
			return NoHandle, err
		}
		rec.hdr.SymLen = uint64(len(dp.SymTab))
	}
	if dp.VarTab != nil {
		vars := make(varTabRecord, len(dp.VarTab))
		for i, v := range dp.VarTab {
			vars[i] = varRecord{
				Name:  v.Name,
				ID:    v.ID,
				Kind:  v.Kind,
				Scope: v.Scope,
				Flags: v.Flags,
				Type:  typeToRecord(v.Type),
			}
		}
		if rec.hdr.VarTab, err = e.alloc(vars); err != nil {
			return NoHandle, err
		}
		rec.hdr.VarLen = uint64(len(dp.VarTab))
	}

	return e.alloc(rec)
}

// emitActions emits the run [first, last] of the program action list,
// linking it after the previously emitted action.
func (e *encoder) emitActions(p *program.Program, st *program.Statement, rec *stmtRecord, owner uint32) error {
	if st.FirstAction == program.NoAction {
		return nil
	}
	if p.Actions == nil {
		return fmt.Errorf("%w: statement has actions but program has no action list", ErrInvariant)
	}

	var emitErr error
	err := p.Actions.Range(st.FirstAction, st.LastAction, func(ref program.ActionRef, act *program.Action) bool {
		if _, ok := e.actions[ref]; ok {
			emitErr = fmt.Errorf("%w: action %d is shared by two statements", ErrInvariant, ref)
			return false
		}
		difo, err := e.emitDIFO(act.DIFO)
		if err != nil {
			emitErr = err
			return false
		}
		h, err := e.alloc(&actionRecord{
			DIFO:   difo,
			Kind:   uint16(act.Kind),
			NTuple: act.NTuple,
			Arg:    act.Arg,
			UArg:   uint64(owner),
		})
		if err != nil {
			emitErr = err
			return false
		}

		if e.prevAction != NoHandle {
			e.arena[e.prevAction].(*actionRecord).Next = h
		}
		e.prevAction = h
		e.actions[ref] = h

		if rec.Action == NoHandle {
			rec.Action = h
		}
		rec.ActionLast = h
		return true
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return emitErr
}

func (e *encoder) emitECB(ecb *program.ECBDesc) (uint32, error) {
	rec := &ecbRecord{UArg: ecb.UArg}

	probe := &rec.Probe
	probe.ID = ecb.Probe.ID
	for _, f := range []struct {
		dst []byte
		val string
	}{
		{probe.Target[:], ecb.Probe.Target},
		{probe.Provider[:], ecb.Probe.Provider},
		{probe.Module[:], ecb.Probe.Module},
		{probe.Function[:], ecb.Probe.Function},
		{probe.Name[:], ecb.Probe.Name},
	} {
		if err := strutils.PutCString(f.dst, f.val); err != nil {
			return NoHandle, fmt.Errorf("%w: probe description: %w", ErrInvariant, err)
		}
	}

	var err error
	if rec.Pred, err = e.emitDIFO(ecb.Pred); err != nil {
		return NoHandle, err
	}

	if ecb.Action != program.NoAction {
		h, ok := e.actions[ecb.Action]
		if !ok {
			return NoHandle, fmt.Errorf("%w: ECB action %d was never emitted", ErrInvariant, ecb.Action)
		}
		rec.Action = h
	}

	return e.alloc(rec)
}

func (e *encoder) emitIdent(id *program.Ident) (uint32, error) {
	if id == nil {
		return NoHandle, nil
	}
	if err := strutils.CheckCString(id.Name); err != nil {
		return NoHandle, fmt.Errorf("%w: identifier name: %w", ErrInvariant, err)
	}
	off, err := e.idnames.AppendString(id.Name)
	if err != nil {
		return NoHandle, fmt.Errorf("%w: identifier names: %w", ErrResource, err)
	}
	return e.alloc(&identRecord{
		Name:  uint32(off),
		ID:    id.ID,
		Kind:  id.Kind,
		Flags: id.Flags,
		Attr:  attrToRecord(id.Attr),
		Vers:  id.Vers,
	})
}

func (e *encoder) emitStatement(p *program.Program, st *program.Statement) (uint32, error) {
	if st == nil || st.ECB == nil {
		return NoHandle, fmt.Errorf("%w: statement has no ECB", ErrInvariant)
	}
	if (st.FirstAction == program.NoAction) != (st.LastAction == program.NoAction) {
		return NoHandle, fmt.Errorf("%w: first action %d, last action %d", ErrInvariant, st.FirstAction, st.LastAction)
	}

	// The statement is allocated first: its handle is the owner tag of
	// its actions.
	rec := &stmtRecord{
		DescAttr: attrToRecord(st.DescAttr),
		StmtAttr: attrToRecord(st.StmtAttr),
	}
	sh, err := e.alloc(rec)
	if err != nil {
		return NoHandle, err
	}

	if err := e.emitActions(p, st, rec, sh); err != nil {
		return NoHandle, err
	}
	if rec.ECB, err = e.emitECB(st.ECB); err != nil {
		return NoHandle, err
	}
	if rec.AggData, err = e.emitIdent(st.AggData); err != nil {
		return NoHandle, err
	}

	if e.prevStmt != NoHandle {
		e.arena[e.prevStmt].(*stmtRecord).Next = sh
	}
	e.prevStmt = sh

	e.dbg.WithFields(logrus.Fields{
		logfields.Statement: sh,
		logfields.Target:    st.ECB.Probe.Target,
	}).Debugf("Emitted statement, actions [%d, %d]", rec.Action, rec.ActionLast)
	return sh, nil
}

// marshalOption encodes one option table entry.
func marshalOption(order binary.ByteOrder, opt *program.Option) ([]byte, error) {
	var hdr optionHeader
	if err := strutils.PutCString(hdr.Name[:], opt.Name); err != nil {
		return nil, fmt.Errorf("%w: option name: %w", ErrInvariant, err)
	}
	switch v := opt.Value.(type) {
	case program.StringValue:
		if err := strutils.PutCString(hdr.Value[:], string(v)); err != nil {
			return nil, fmt.Errorf("%w: option %s value: %w", ErrInvariant, opt.Name, err)
		}
	case program.ScalarValue:
		order.PutUint64(hdr.Value[:], uint64(v))
	case nil:
	default:
		return nil, fmt.Errorf("%w: option %s has value of type %T", ErrInvariant, opt.Name, v)
	}
	hdr.Len = uint64(len(opt.Arg)) + 1

	var buf bytes.Buffer
	buf.Grow(optionHeaderSize + len(opt.Arg) + 1)
	if err := binary.Write(&buf, order, &hdr); err != nil {
		return nil, err
	}
	buf.WriteString(opt.Arg)
	buf.WriteByte(0)
	return buf.Bytes(), nil
}

func (e *encoder) emitOptions(set *program.OptionSet) (uint32, error) {
	if set == nil {
		return NoHandle, nil
	}
	for _, opt := range set.Enabled() {
		b, err := marshalOption(e.order, opt)
		if err != nil {
			return NoHandle, err
		}
		if _, err := e.opts.Append(b); err != nil {
			if errors.Is(err, growbuf.ErrOverflow) {
				return NoHandle, fmt.Errorf("%w: option table: %w", ErrResource, err)
			}
			return NoHandle, err
		}
		e.log.WithField(logfields.Option, opt.Name).Debug("Stored option")
	}
	tracespecmetrics.OptionTableGrowsTotal.Add(float64(e.opts.Grows()))

	if e.opts.Len() == 0 {
		return NoHandle, nil
	}
	return e.alloc(&blobRecord{k: kindOptions, data: e.opts.Bytes()})
}

func (e *encoder) finalize() ([]byte, error) {
	for h := RootHandle; h < uint32(len(e.arena)); h++ {
		data, err := marshalRecord(e.order, e.arena[h])
		if err != nil {
			return nil, err
		}
		sec, err := e.w.Section(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvariant, err)
		}
		sec.Data = data
	}
	b, err := e.w.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	return b, nil
}
