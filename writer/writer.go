// Package writer linearizes a finalized (registry, expression graph) pair
// into solver-consumable encodings: sparse matrix triples for affine
// models, a reverse-Polish instruction tape for nonlinear ones, and a
// textual LP rendering.
//
// All encodings follow registry index order exactly: constraint i is row i,
// variable id j is column j. Solver adapters key off this ordering for
// their result vectors.
package writer

import (
	"bytes"
	"fmt"

	"github.com/blang/semver/v4"

	"github.com/opalhq/opal"
	"github.com/opalhq/opal/logger"
	"github.com/opalhq/opal/model"
)

// Format selects the output encoding of Write.
type Format uint8

const (
	FormatMatrix Format = iota
	FormatTape
	FormatLP
)

func (f Format) String() string {
	switch f {
	case FormatMatrix:
		return "matrix"
	case FormatTape:
		return "tape"
	case FormatLP:
		return "lp"
	default:
		return "invalid"
	}
}

// Write encodes the model in the requested format. It is a convenience
// dispatcher over Matrix, Tape and WriteLP; callers needing the structured
// forms use those directly.
func Write(m *model.Model, format Format) ([]byte, error) {
	switch format {
	case FormatMatrix:
		f, err := Matrix(m)
		if err != nil {
			return nil, err
		}
		return f.ToBytes()
	case FormatTape:
		t, err := Tape(m)
		if err != nil {
			return nil, err
		}
		return t.ToBytes()
	case FormatLP:
		var buf bytes.Buffer
		if err := WriteLP(&buf, m); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("writer: unknown format %d", format)
	}
}

func versionString() string {
	return opal.Version.String()
}

// checkVersion parses the version header of a serialized form and warns on
// mismatch with the running library; there are no compatibility guarantees
// across releases.
func checkVersion(v string) error {
	objectVersion, err := semver.Parse(v)
	if err != nil {
		return fmt.Errorf("when parsing opal version: %w", err)
	}
	if opal.Version.Compare(objectVersion) != 0 {
		log := logger.Logger()
		log.Warn().Str("binary", opal.Version.String()).Str("object", objectVersion.String()).Msg("opal version (binary) mismatch with serialized model. there are no guarantees on compatibility")
	}
	return nil
}
