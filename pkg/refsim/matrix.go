package refsim

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// system is the real MNA system: node equations 1..nodes, then one branch
// equation per voltage-defined element. Indexing is 1-based; 0 is ground.
type system struct {
	size     int
	nodes    int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
}

func newSystem(nodes, branches int) (*system, error) {
	size := nodes + branches

	config := &sparse.Configuration{
		Real:           true,
		Complex:        false,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	return &system{
		size:   size,
		nodes:  nodes,
		matrix: mat,
		rhs:    make([]float64, size+1),
	}, nil
}

// add stamps value at (i, j). Ground rows and columns are dropped.
func (s *system) add(i, j int, value float64) {
	if i <= 0 || j <= 0 {
		return
	}
	if i > s.size || j > s.size {
		panic(fmt.Sprintf("refsim: matrix index out of bounds (i=%d, j=%d, size=%d)", i, j, s.size))
	}
	s.matrix.GetElement(int64(i), int64(j)).Real += value
}

func (s *system) addRHS(i int, value float64) {
	if i <= 0 {
		return
	}
	if i > s.size {
		panic(fmt.Sprintf("refsim: rhs index out of bounds (i=%d, size=%d)", i, s.size))
	}
	s.rhs[i] += value
}

// loadGmin adds gmin from every node to ground. Branch rows are untouched.
func (s *system) loadGmin(gmin float64) {
	for i := 1; i <= s.nodes; i++ {
		s.matrix.GetElement(int64(i), int64(i)).Real += gmin
	}
}

func (s *system) clear() {
	s.matrix.Clear()
	for i := range s.rhs {
		s.rhs[i] = 0
	}
}

func (s *system) solve() error {
	if err := s.matrix.Factor(); err != nil {
		return fmt.Errorf("matrix factorization failed: %w", err)
	}

	solution, err := s.matrix.Solve(s.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %w", err)
	}
	s.solution = solution
	return nil
}

// value returns unknown i of the last solution.
func (s *system) value(i int) float64 {
	if i <= 0 || i >= len(s.solution) {
		return 0
	}
	return s.solution[i]
}

func (s *system) destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
		s.matrix = nil
	}
}
