package writer

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/model"
)

// WriteLP renders the model in CPLEX LP text format. The model must be
// affine, like Matrix; ranged constraints (finite lower and upper bound,
// not equal) become a _lo and a _hi row since the format has no range rows.
//
// Output is deterministic: rows follow constraint index order and terms
// within a row follow ascending variable id.
func WriteLP(w io.Writer, m *model.Model) error {
	if len(m.Disjunctions) > 0 {
		return ErrUnresolvedDisjunction
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("\\ opal " + versionString() + "\n")

	lin := expr.NewLinearizer(m.Graph, m.ParamValue)

	// objective section
	sense := "Minimize"
	var obj expr.Affine
	if len(m.Objectives) > 0 {
		o := &m.Objectives[0]
		if o.Sense == model.Maximize {
			sense = "Maximize"
		}
		aff, err := lin.Walk(o.Root)
		if err != nil {
			if errors.Is(err, expr.ErrNonlinear) {
				return &NonlinearTermError{Constraint: o.Index, IsObjective: true, Err: err}
			}
			return err
		}
		obj = aff
	}
	bw.WriteString(sense + "\n obj:")
	writeTerms(bw, obj.Terms, m)
	if obj.Offset != 0 {
		writeSigned(bw, obj.Offset)
	}
	bw.WriteByte('\n')

	bw.WriteString("Subject To\n")
	for i := range m.Constraints {
		c := &m.Constraints[i]
		aff, err := lin.Walk(c.Root)
		if err != nil {
			if errors.Is(err, expr.ErrNonlinear) {
				return &NonlinearTermError{Constraint: c.Index, Err: err}
			}
			return err
		}
		name := rowName(c, i)
		lo := subFinite(c.Rel.Lower, aff.Offset)
		hi := subFinite(c.Rel.Upper, aff.Offset)

		switch {
		case c.Rel.IsEquality():
			writeRow(bw, name, aff.Terms, m, "=", lo)
		case math.IsInf(lo, -1) && math.IsInf(hi, 1):
			// vacuous row, keep it for index parity with the registry
			writeRow(bw, name, aff.Terms, m, ">=", math.Inf(-1))
		case math.IsInf(lo, -1):
			writeRow(bw, name, aff.Terms, m, "<=", hi)
		case math.IsInf(hi, 1):
			writeRow(bw, name, aff.Terms, m, ">=", lo)
		default:
			writeRow(bw, name+"_lo", aff.Terms, m, ">=", lo)
			writeRow(bw, name+"_hi", aff.Terms, m, "<=", hi)
		}
	}

	bw.WriteString("Bounds\n")
	for i := range m.Variables {
		v := &m.Variables[i]
		name := colName(v, i)
		switch {
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			bw.WriteString(" " + name + " free\n")
		case math.IsInf(v.Upper, 1):
			bw.WriteString(" " + name + " >= " + formatFloat(v.Lower) + "\n")
		case math.IsInf(v.Lower, -1):
			bw.WriteString(" " + name + " <= " + formatFloat(v.Upper) + "\n")
		default:
			bw.WriteString(" " + formatFloat(v.Lower) + " <= " + name + " <= " + formatFloat(v.Upper) + "\n")
		}
	}

	var generals, binaries []string
	for i := range m.Variables {
		v := &m.Variables[i]
		switch v.Domain {
		case model.Integer:
			generals = append(generals, colName(v, i))
		case model.Binary:
			binaries = append(binaries, colName(v, i))
		}
	}
	if len(generals) > 0 {
		bw.WriteString("Generals\n")
		for _, n := range generals {
			bw.WriteString(" " + n + "\n")
		}
	}
	if len(binaries) > 0 {
		bw.WriteString("Binaries\n")
		for _, n := range binaries {
			bw.WriteString(" " + n + "\n")
		}
	}

	bw.WriteString("End\n")
	return bw.Flush()
}

func writeRow(bw *bufio.Writer, name string, terms []expr.LinTerm, m *model.Model, rel string, rhs float64) {
	bw.WriteString(" " + name + ":")
	if len(terms) == 0 {
		// the format requires at least one term on the left-hand side
		bw.WriteString(" 0 " + lpVarName(m, 0))
	} else {
		writeTerms(bw, terms, m)
	}
	bw.WriteString(" " + rel + " " + formatFloat(rhs) + "\n")
}

func writeTerms(bw *bufio.Writer, terms []expr.LinTerm, m *model.Model) {
	for i, t := range terms {
		c := t.Coeff
		if i == 0 {
			if c < 0 {
				bw.WriteString(" - ")
				c = -c
			} else {
				bw.WriteByte(' ')
			}
		} else {
			if c < 0 {
				bw.WriteString(" - ")
				c = -c
			} else {
				bw.WriteString(" + ")
			}
		}
		if c != 1 {
			bw.WriteString(formatFloat(c) + " ")
		}
		bw.WriteString(lpVarName(m, t.VID))
	}
}

func writeSigned(bw *bufio.Writer, v float64) {
	if v < 0 {
		bw.WriteString(" - " + formatFloat(-v))
	} else {
		bw.WriteString(" + " + formatFloat(v))
	}
}

func lpVarName(m *model.Model, id uint32) string {
	if int(id) < len(m.Variables) {
		return colName(&m.Variables[id], int(id))
	}
	return "x" + strconv.FormatUint(uint64(id), 10)
}

func rowName(c *model.Constraint, i int) string {
	if n := sanitizeName(c.Name); n != "" {
		return n
	}
	return "c" + strconv.Itoa(i)
}

func colName(v *model.Variable, i int) string {
	if n := sanitizeName(v.FullName()); n != "" {
		return n
	}
	return "x" + strconv.Itoa(i)
}

// sanitizeName maps a registry name onto the format's identifier alphabet.
// Names that would still be ambiguous (leading digit, period or e) are
// rejected so the caller falls back to a positional name.
func sanitizeName(name string) string {
	if name == "" {
		return ""
	}
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		case c == '_', c == '[', c == ']', c == '(', c == ')':
			out = append(out, c)
		case c == '.':
			out = append(out, '.')
		default:
			out = append(out, '_')
		}
	}
	c := out[0]
	if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' {
		return ""
	}
	return string(out)
}

func formatFloat(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if math.IsInf(v, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
