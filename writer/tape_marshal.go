package writer

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/icza/bitio"

	"github.com/opalhq/opal/model"
)

// Instruction stream bit layout. Opcodes fit 5 bits; operand counts and
// slot references use fixed widths so decoding never needs a lookahead.
const (
	opBits   = 5
	argBits  = 32
	nargBits = 16
)

// MarshalBinary bit-packs the instruction stream.
func (p *Program) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)

	if err := w.WriteBits(uint64(len(p.Code)), argBits); err != nil {
		return nil, err
	}
	for _, ins := range p.Code {
		if err := w.WriteBits(uint64(ins.Op), opBits); err != nil {
			return nil, err
		}
		switch ins.Op {
		case OpConst:
			if err := w.WriteBits(math.Float64bits(ins.Imm), 64); err != nil {
				return nil, err
			}
		case OpVar, OpParam:
			if err := w.WriteBits(uint64(ins.Ref), argBits); err != nil {
				return nil, err
			}
		default:
			if err := w.WriteBits(uint64(len(ins.Args)), nargBits); err != nil {
				return nil, err
			}
			for _, a := range ins.Args {
				if err := w.WriteBits(uint64(a), argBits); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a stream produced by MarshalBinary.
func (p *Program) UnmarshalBinary(data []byte) error {
	r := bitio.NewReader(bytes.NewReader(data))

	n, err := r.ReadBits(argBits)
	if err != nil {
		return err
	}
	p.Code = make([]Instr, n)
	for i := range p.Code {
		op, err := r.ReadBits(opBits)
		if err != nil {
			return err
		}
		if OpCode(op) >= nbOpCodes {
			return fmt.Errorf("writer: invalid opcode %d at instruction %d", op, i)
		}
		ins := Instr{Op: OpCode(op)}
		switch ins.Op {
		case OpConst:
			bits, err := r.ReadBits(64)
			if err != nil {
				return err
			}
			ins.Imm = math.Float64frombits(bits)
		case OpVar, OpParam:
			ref, err := r.ReadBits(argBits)
			if err != nil {
				return err
			}
			ins.Ref = uint32(ref)
		default:
			nargs, err := r.ReadBits(nargBits)
			if err != nil {
				return err
			}
			ins.Args = make([]uint32, nargs)
			for j := range ins.Args {
				a, err := r.ReadBits(argBits)
				if err != nil {
					return err
				}
				if a >= uint64(i) {
					return fmt.Errorf("writer: instruction %d references later slot %d", i, a)
				}
				ins.Args[j] = uint32(a)
			}
		}
		p.Code[i] = ins
	}
	return nil
}

// tapeWire is the serialized shape of TapeForm: programs travel as opaque
// bit-packed blobs inside a deterministic CBOR envelope.
type tapeWire struct {
	Version string

	Constraints [][]byte
	RowLower    []float64
	RowUpper    []float64
	RowName     []string

	Objectives [][]byte
	Senses     []uint8

	ColLower  []float64
	ColUpper  []float64
	ColInit   []float64
	ColDomain []uint8
	ColName   []string
}

// ToBytes serializes the tape form.
func (t *TapeForm) ToBytes() ([]byte, error) {
	w := tapeWire{
		Version:     t.Version,
		Constraints: make([][]byte, len(t.Constraints)),
		RowLower:    t.RowLower,
		RowUpper:    t.RowUpper,
		RowName:     t.RowName,
		Objectives:  make([][]byte, len(t.Objectives)),
		Senses:      make([]uint8, len(t.Senses)),
		ColLower:    t.ColLower,
		ColUpper:    t.ColUpper,
		ColInit:     t.ColInit,
		ColDomain:   make([]uint8, len(t.ColDomain)),
		ColName:     t.ColName,
	}
	for i := range t.Constraints {
		b, err := t.Constraints[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Constraints[i] = b
	}
	for i := range t.Objectives {
		b, err := t.Objectives[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Objectives[i] = b
	}
	for i, s := range t.Senses {
		w.Senses[i] = uint8(s)
	}
	for i, d := range t.ColDomain {
		w.ColDomain[i] = uint8(d)
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(&w)
}

// FromBytes deserializes a tape form produced by ToBytes.
func (t *TapeForm) FromBytes(data []byte) error {
	dm, err := cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecMode()
	if err != nil {
		return err
	}
	var w tapeWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := checkVersion(w.Version); err != nil {
		return err
	}
	if len(w.Constraints) != len(w.RowLower) || len(w.Constraints) != len(w.RowUpper) ||
		len(w.Objectives) != len(w.Senses) {
		return errors.New("writer: inconsistent tape sections")
	}

	t.Version = w.Version
	t.RowLower = w.RowLower
	t.RowUpper = w.RowUpper
	t.RowName = w.RowName
	t.ColLower = w.ColLower
	t.ColUpper = w.ColUpper
	t.ColInit = w.ColInit
	t.ColName = w.ColName

	t.Constraints = make([]Program, len(w.Constraints))
	for i, b := range w.Constraints {
		if err := t.Constraints[i].UnmarshalBinary(b); err != nil {
			return err
		}
	}
	t.Objectives = make([]Program, len(w.Objectives))
	for i, b := range w.Objectives {
		if err := t.Objectives[i].UnmarshalBinary(b); err != nil {
			return err
		}
	}
	t.Senses = make([]model.Sense, len(w.Senses))
	for i, s := range w.Senses {
		t.Senses[i] = model.Sense(s)
	}
	t.ColDomain = make([]model.Domain, len(w.ColDomain))
	for i, d := range w.ColDomain {
		t.ColDomain[i] = model.Domain(d)
	}
	return nil
}
