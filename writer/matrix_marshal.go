package writer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/opalhq/opal/internal/ioutils"
)

// ToBytes serializes the matrix form. The triple streams are written as
// compressed binary sections ahead of the CBOR body; index streams are
// near-sequential and compress very well.
//
// The byte layout (header of section lengths, then sections) is stable per
// release and versioned through the Version field checked on read.
func (f *MatrixForm) ToBytes() ([]byte, error) {
	var triples []byte
	var g errgroup.Group
	g.Go(func() error {
		var err error
		triples, err = f.triplesToBytes()
		return err
	})
	body, err := f.bodyToBytes()
	if err != nil {
		return nil, err
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h := header{triplesLen: uint64(len(triples)), bodyLen: uint64(len(body))}
	buf := h.toBytes()
	buf = append(buf, triples...)
	buf = append(buf, body...)
	return buf, nil
}

// FromBytes deserializes a matrix form produced by ToBytes and returns the
// number of bytes read.
func (f *MatrixForm) FromBytes(data []byte) (int, error) {
	if len(data) < headerLen {
		return 0, errors.New("writer: invalid data length")
	}
	h := new(header)
	h.fromBytes(data)
	// compare against the remaining bytes without summing the untrusted
	// section lengths, which could wrap
	rest := uint64(len(data) - headerLen)
	if h.triplesLen > rest || h.bodyLen > rest-h.triplesLen {
		return 0, errors.New("writer: invalid data length")
	}

	var g errgroup.Group
	g.Go(func() error {
		return f.triplesFromBytes(data[headerLen : headerLen+h.triplesLen])
	})

	dm, err := cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecMode()
	if err != nil {
		return 0, err
	}
	if err := dm.Unmarshal(data[headerLen+h.triplesLen:headerLen+h.triplesLen+h.bodyLen], f); err != nil {
		return 0, err
	}
	if err := checkVersion(f.Version); err != nil {
		return 0, err
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return headerLen + int(h.triplesLen) + int(h.bodyLen), nil
}

func (f *MatrixForm) bodyToBytes() ([]byte, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(f)
}

const headerLen = 2 * 8

type header struct {
	triplesLen uint64
	bodyLen    uint64
}

func (h *header) toBytes() []byte {
	buf := make([]byte, 0, headerLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.triplesLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.bodyLen)
	return buf
}

func (h *header) fromBytes(buf []byte) {
	h.triplesLen = binary.LittleEndian.Uint64(buf[:8])
	h.bodyLen = binary.LittleEndian.Uint64(buf[8:16])
}

func (f *MatrixForm) triplesToBytes() ([]byte, error) {
	sRow := make([]uint32, len(f.Nonzeros))
	sCol := make([]uint32, len(f.Nonzeros))
	sCoeff := make([]uint64, len(f.Nonzeros))
	for i, nz := range f.Nonzeros {
		sRow[i] = nz.Row
		sCol[i] = nz.Col
		sCoeff[i] = math.Float64bits(nz.Coeff)
	}

	var buf bytes.Buffer
	buf.Grow(4 * len(f.Nonzeros) * 3)

	var buf32 []uint32
	var err error
	buf32, err = ioutils.CompressAndWriteUints32(&buf, sRow, buf32)
	if err != nil {
		return nil, err
	}
	if _, err = ioutils.CompressAndWriteUints32(&buf, sCol, buf32); err != nil {
		return nil, err
	}
	if err = ioutils.CompressAndWriteUints64(&buf, sCoeff); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *MatrixForm) triplesFromBytes(in []byte) error {
	n, sRow, err := ioutils.ReadAndDecompressUints32(in)
	if err != nil {
		return err
	}
	in = in[n:]
	n, sCol, err := ioutils.ReadAndDecompressUints32(in)
	if err != nil {
		return err
	}
	in = in[n:]
	_, sCoeff, err := ioutils.ReadAndDecompressUints64(in)
	if err != nil {
		return err
	}

	if len(sRow) != len(sCol) || len(sRow) != len(sCoeff) {
		return errors.New("writer: inconsistent triple sections")
	}
	f.Nonzeros = make([]Nonzero, len(sRow))
	for i := range f.Nonzeros {
		f.Nonzeros[i] = Nonzero{Row: sRow[i], Col: sCol[i], Coeff: math.Float64frombits(sCoeff[i])}
	}
	return nil
}
