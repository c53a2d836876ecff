package writer

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opalhq/opal/model"
)

func TestWriteLP(t *testing.T) {
	assert := require.New(t)
	m := productionModel(t)

	var buf bytes.Buffer
	assert.NoError(WriteLP(&buf, m))

	want := "\\ opal " + versionString() + "\n" +
		`Minimize
 obj: 3 x + 5 y + 7
Subject To
 cap: x + y <= 10
 min: 2 x - y >= 1
 bal: x + 4 y = 8
Bounds
 0 <= x <= 10
 0 <= y <= 6
Generals
 y
End
`
	assert.Equal(want, buf.String())
}

func TestWriteLPRangedRow(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x")
	assert.NoError(err)
	_, err = m.AddConstraint("band", m.VarExpr(x), model.Between(2, 5))
	assert.NoError(err)

	var buf bytes.Buffer
	assert.NoError(WriteLP(&buf, m))
	out := buf.String()

	// the format has no range rows, so the band splits in two
	assert.Contains(out, " band_lo: x >= 2\n")
	assert.Contains(out, " band_hi: x <= 5\n")
	assert.Contains(out, " x free\n")
}

func TestWriteLPBinaries(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	b, err := m.AddVariable("pick", model.AsBinary())
	assert.NoError(err)
	_, err = m.AddConstraint("c", m.VarExpr(b), model.AtMost(1))
	assert.NoError(err)
	_, err = m.AddObjective("obj", m.VarExpr(b), model.Maximize)
	assert.NoError(err)

	var buf bytes.Buffer
	assert.NoError(WriteLP(&buf, m))
	out := buf.String()
	assert.True(strings.HasPrefix(out, "\\ opal "))
	assert.Contains(out, "Maximize\n obj: pick\n")
	assert.Contains(out, "Binaries\n pick\n")
}

func TestWriteLPNameSanitization(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	// a leading digit cannot start an identifier, so the column falls back
	// to its positional name
	_, err := m.AddVariable("2nd stage")
	assert.NoError(err)
	s := m.Scope("plant")
	v, err := s.AddVariable("flow rate", model.WithBounds(0, 1))
	assert.NoError(err)
	_, err = m.AddConstraint("c", m.VarExpr(v), model.AtMost(1))
	assert.NoError(err)

	var buf bytes.Buffer
	assert.NoError(WriteLP(&buf, m))
	out := buf.String()
	assert.Contains(out, "x0")
	assert.NotContains(out, "2nd stage")
	assert.Contains(out, "plant.flow_rate")
}

func TestWriteLPNonlinear(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x")
	assert.NoError(err)
	_, err = m.AddConstraint("quad", m.Graph.Mul(m.VarExpr(x), m.VarExpr(x)), model.AtMost(1))
	assert.NoError(err)

	var nerr *NonlinearTermError
	assert.ErrorAs(WriteLP(&bytes.Buffer{}, m), &nerr)
}

func TestWriteDispatcher(t *testing.T) {
	assert := require.New(t)
	m := productionModel(t)

	for _, format := range []Format{FormatMatrix, FormatTape, FormatLP} {
		data, err := Write(m, format)
		assert.NoError(err, format.String())
		assert.NotEmpty(data)
	}

	_, err := Write(m, Format(99))
	assert.Error(err)

	var buf bytes.Buffer
	assert.NoError(WriteLP(&buf, m))
	lp, err := Write(m, FormatLP)
	assert.NoError(err)
	assert.Equal(buf.Bytes(), lp)
}

func TestFormatString(t *testing.T) {
	assert := require.New(t)
	assert.Equal("matrix", FormatMatrix.String())
	assert.Equal("tape", FormatTape.String())
	assert.Equal("lp", FormatLP.String())
	assert.Equal("invalid", Format(99).String())
}

func TestSubFinite(t *testing.T) {
	assert := require.New(t)
	assert.Equal(7.0, subFinite(10, 3))
	assert.True(math.IsInf(subFinite(math.Inf(1), 3), 1))
	assert.True(math.IsInf(subFinite(math.Inf(-1), 3), -1))
}
