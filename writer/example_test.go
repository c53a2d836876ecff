package writer_test

import (
	"fmt"

	"github.com/opalhq/opal/model"
	"github.com/opalhq/opal/transform"
	"github.com/opalhq/opal/writer"
)

// Build a production model with an either-or constraint, compile the
// disjunction away and write the sparse matrix form.
func ExampleMatrix() {
	m := model.New()
	x, _ := m.AddVariable("x", model.WithBounds(0, 10))
	y, _ := m.AddVariable("y", model.WithBounds(0, 6))
	g := m.Graph

	m.AddConstraint("cap", g.Add(m.VarExpr(x), m.VarExpr(y)), model.AtMost(10))
	m.AddDisjunction("mode",
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtMost(2)}},
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtLeast(8)}},
	)
	m.AddObjective("cost", g.Add(m.VarExpr(x), m.VarExpr(y)), model.Minimize)

	flat, _, err := transform.Sequence(m, transform.BigM{}, transform.Simplify{})
	if err != nil {
		panic(err)
	}

	f, err := writer.Matrix(flat)
	if err != nil {
		panic(err)
	}

	fmt.Println("rows:", f.NbRows())
	fmt.Println("cols:", f.NbCols())
	for _, nz := range f.Nonzeros {
		fmt.Printf("%s: %g %s\n", f.RowName[nz.Row], nz.Coeff, f.ColName[nz.Col])
	}
	// Output:
	// rows: 4
	// cols: 4
	// cap: 1 x
	// cap: 1 y
	// mode[0][0].ub: 1 x
	// mode[0][0].ub: 8 mode.ind[0]
	// mode[1][0].lb: 1 x
	// mode[1][0].lb: -8 mode.ind[1]
	// mode.choose: 1 mode.ind[0]
	// mode.choose: 1 mode.ind[1]
}
