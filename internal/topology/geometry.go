package topology

import (
	"errors"
	"math"
)

// ErrSingular is returned when an inverse map meets a degenerate Jacobian.
var ErrSingular = errors.New("topology: singular jacobian")

// DefaultPullBackIterations bounds the Gauss-Newton iterations of PullBack.
const DefaultPullBackIterations = 25

// ShapeValues evaluates the nodal shape functions at the reference point p.
func (t *CellTopology) ShapeValues(p []float64) []float64 {
	out := make([]float64, len(t.nodes))
	if !t.tensor {
		x, y := p[0], p[1]
		out[0], out[1], out[2] = 1-x-y, x, y
		return out
	}
	for i, n := range t.nodes {
		v := 1.0
		for k := 0; k < t.dim; k++ {
			v *= (1 + n[k]*p[k]) / 2
		}
		out[i] = v
	}
	return out
}

// ShapeGradients returns dN_i/dxi_j as out[i][j].
func (t *CellTopology) ShapeGradients(p []float64) [][]float64 {
	out := make([][]float64, len(t.nodes))
	if !t.tensor {
		out[0] = []float64{-1, -1}
		out[1] = []float64{1, 0}
		out[2] = []float64{0, 1}
		return out
	}
	for i, n := range t.nodes {
		g := make([]float64, t.dim)
		for j := 0; j < t.dim; j++ {
			v := n[j] / 2
			for k := 0; k < t.dim; k++ {
				if k != j {
					v *= (1 + n[k]*p[k]) / 2
				}
			}
			g[j] = v
		}
		out[i] = g
	}
	return out
}

// MapToPhysical maps reference point p through the nodal interpolation of the
// given physical node coordinates.
func (t *CellTopology) MapToPhysical(nodes [][]float64, p []float64) []float64 {
	if len(nodes) == 0 {
		return nil
	}
	w := t.ShapeValues(p)
	x := make([]float64, len(nodes[0]))
	for i, n := range nodes {
		for k := range x {
			x[k] += w[i] * n[k]
		}
	}
	return x
}

// Jacobian returns dx_k/dxi_j as out[k][j] at reference point p.
func (t *CellTopology) Jacobian(nodes [][]float64, p []float64) [][]float64 {
	grads := t.ShapeGradients(p)
	spaceDim := len(nodes[0])
	jac := make([][]float64, spaceDim)
	for k := range jac {
		jac[k] = make([]float64, t.dim)
		for i, n := range nodes {
			for j := 0; j < t.dim; j++ {
				jac[k][j] += n[k] * grads[i][j]
			}
		}
	}
	return jac
}

// MapToReferenceSubcell maps points given in the reference space of subcell
// (d, ord) into t's reference space.
func (t *CellTopology) MapToReferenceSubcell(d, ord int, pts [][]float64) [][]float64 {
	sub := t.subTopos[d][ord]
	subNodes := t.subcells[d][ord]
	embedded := make([][]float64, len(subNodes))
	for i, n := range subNodes {
		embedded[i] = t.nodes[n]
	}
	out := make([][]float64, len(pts))
	for i, p := range pts {
		if d == 0 {
			out[i] = append([]float64(nil), embedded[0]...)
			continue
		}
		out[i] = sub.MapToPhysical(embedded, p)
	}
	return out
}

// ContainsReferencePoint reports whether p lies in the reference domain,
// allowing tol slack on every face.
func (t *CellTopology) ContainsReferencePoint(p []float64, tol float64) bool {
	if t.dim == 0 {
		return true
	}
	if !t.tensor {
		x, y := p[0], p[1]
		return x >= -tol && y >= -tol && x+y <= 1+tol
	}
	for k := 0; k < t.dim; k++ {
		if math.Abs(p[k]) > 1+tol {
			return false
		}
	}
	return true
}

// PullBack inverts MapToPhysical for point x by Gauss-Newton iteration starting
// from the reference centroid. It works for embedded cells (physical dimension
// larger than t's) by minimising the residual. The returned residual is the
// physical distance between the mapped result and x.
func (t *CellTopology) PullBack(nodes [][]float64, x []float64, maxIter int) ([]float64, float64, error) {
	if maxIter <= 0 {
		maxIter = DefaultPullBackIterations
	}
	ref := t.ReferenceCentroid()
	if t.dim == 0 {
		return ref, distance(nodes[0], x), nil
	}
	for iter := 0; iter < maxIter; iter++ {
		mapped := t.MapToPhysical(nodes, ref)
		r := make([]float64, len(x))
		for k := range r {
			r[k] = mapped[k] - x[k]
		}
		jac := t.Jacobian(nodes, ref)
		// normal equations: (J^T J) delta = -J^T r
		n := t.dim
		a := make([][]float64, n)
		b := make([]float64, n)
		for i := 0; i < n; i++ {
			a[i] = make([]float64, n)
			for j := 0; j < n; j++ {
				for k := range jac {
					a[i][j] += jac[k][i] * jac[k][j]
				}
			}
			for k := range jac {
				b[i] -= jac[k][i] * r[k]
			}
		}
		delta, err := solveDense(a, b)
		if err != nil {
			return ref, math.Inf(1), err
		}
		step := 0.0
		for i := range ref {
			ref[i] += delta[i]
			step += delta[i] * delta[i]
		}
		if math.Sqrt(step) < 1e-14 {
			break
		}
	}
	return ref, distance(t.MapToPhysical(nodes, ref), x), nil
}

// solveDense solves a small square system by Gaussian elimination with
// partial pivoting.
func solveDense(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-300 {
			return nil, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	out := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		v := b[r]
		for c := r + 1; c < n; c++ {
			v -= a[r][c] * out[c]
		}
		out[r] = v / a[r][r]
	}
	return out, nil
}

func distance(a, b []float64) float64 {
	s := 0.0
	for k := range a {
		d := a[k] - b[k]
		s += d * d
	}
	return math.Sqrt(s)
}
