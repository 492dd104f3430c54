package anyopt

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
)

// A Param is a trainable variable with a stable name.
//
// The name is the identity an optimizer uses to tell
// parameters apart from its own slots, so it must be
// unique among the parameters passed to one update.
type Param struct {
	Name string
	Var  *anydiff.Var
}

// NewParam creates a named parameter around a vector.
func NewParam(name string, v anyvec.Vector) *Param {
	return &Param{Name: name, Var: anydiff.NewVar(v)}
}

// Vector returns the parameter's current value.
func (p *Param) Vector() anyvec.Vector {
	return p.Var.Vector
}

// A Gradient is the gradient of the loss with respect to
// one Param.
//
// If Indices is nil, Vector is dense and has the same
// length as the parameter.
// Otherwise, the parameter is viewed as a row-major
// matrix, and Vector packs one row for each entry of
// Indices.
// Indices may repeat, in which case the rows are summed.
type Gradient struct {
	Param   *Param
	Vector  anyvec.Vector
	Indices []int
}

// Sparse returns true if the gradient only covers a
// subset of rows.
func (g *Gradient) Sparse() bool {
	return g.Indices != nil
}

// RowSize returns the length of each row in a sparse
// gradient.
func (g *Gradient) RowSize() int {
	if len(g.Indices) == 0 {
		return 0
	}
	return g.Vector.Len() / len(g.Indices)
}

// Dense returns a dense copy of the gradient.
func (g *Gradient) Dense() anyvec.Vector {
	if !g.Sparse() {
		return g.Vector.Copy()
	}
	p := g.Param.Vector()
	res := p.Creator().MakeVector(p.Len())
	scatterAdd(res, g.Indices, g.Vector)
	return res
}

// Params returns the parameters of a list of gradients,
// in order.
func Params(grads []*Gradient) []*Param {
	res := make([]*Param, len(grads))
	for i, g := range grads {
		res[i] = g.Param
	}
	return res
}

// GradientsFromGrad creates a dense gradient list from an
// anydiff.Grad, ordered like params.
// Parameters missing from g are an error.
func GradientsFromGrad(params []*Param, g anydiff.Grad) ([]*Gradient, error) {
	res := make([]*Gradient, len(params))
	for i, p := range params {
		vec, ok := g[p.Var]
		if !ok {
			return nil, shapeMsgErr(p.Name, "no gradient for parameter")
		}
		res[i] = &Gradient{Param: p, Vector: vec}
	}
	return res, nil
}

// checkGradients validates a gradient list before any
// write happens.
func checkGradients(grads []*Gradient) error {
	seen := map[string]bool{}
	for _, g := range grads {
		if g.Param == nil || g.Param.Var == nil {
			return configErr("parameter", nil, "gradient has no parameter")
		}
		name := g.Param.Name
		if seen[name] {
			return configErr("parameter name", name, "duplicate parameter name")
		}
		seen[name] = true

		p := g.Param.Vector()
		if g.Vector == nil {
			return shapeMsgErr(name, "missing gradient vector")
		}
		if g.Vector.Creator() != p.Creator() {
			return shapeMsgErr(name, "gradient creator does not match parameter")
		}
		if !g.Sparse() {
			if g.Vector.Len() != p.Len() {
				return shapeErr(name, p.Len(), g.Vector.Len())
			}
			continue
		}
		if len(g.Indices) == 0 {
			if g.Vector.Len() != 0 {
				return shapeMsgErr(name, "row data without row indices")
			}
			continue
		}
		rowSize := g.RowSize()
		if rowSize == 0 || rowSize*len(g.Indices) != g.Vector.Len() {
			return shapeMsgErr(name, "%d values do not split into %d rows",
				g.Vector.Len(), len(g.Indices))
		}
		if p.Len()%rowSize != 0 {
			return shapeMsgErr(name, "row size %d does not divide length %d",
				rowSize, p.Len())
		}
		numRows := p.Len() / rowSize
		for _, idx := range g.Indices {
			if idx < 0 || idx >= numRows {
				return shapeMsgErr(name, "row index %d out of range [0, %d)", idx, numRows)
			}
		}
	}
	return nil
}

// scatterAdd adds each row of rows into dst at the
// corresponding row index.
func scatterAdd(dst anyvec.Vector, indices []int, rows anyvec.Vector) {
	if len(indices) == 0 {
		return
	}
	rowSize := rows.Len() / len(indices)
	table := make([]int, 0, rows.Len())
	for _, idx := range indices {
		for j := 0; j < rowSize; j++ {
			table = append(table, idx*rowSize+j)
		}
	}
	c := dst.Creator()
	sum := c.MakeVector(dst.Len())
	c.MakeMapper(dst.Len(), table).MapTranspose(rows, sum)
	dst.Add(sum)
}
