// Package wavefile materializes a waveform.Stream into an in-memory,
// column-blocked dataset supporting binary-search point lookup and linear
// interpolation, the way the original library's WaveFile/WvTable layer sits
// on top of the streaming reader.
package wavefile

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/stgtell/waveform"
)

// dsBlockSize and dsInitBlocks mirror DS_DBLKSIZE/DS_INBLKS: each column is
// stored as a sequence of fixed-size blocks rather than one flat array, so
// a long-running capture doesn't require copying the whole column to grow
// it. Go's slice-of-slices growth replaces the original's manual
// doubling-and-realloc of the block-pointer array.
const (
	dsBlockSize  = 8192
	dsInitBlocks = 1024
)

// dataSet is one column's blocked storage plus its running min/max.
type dataSet struct {
	blocks [][]float64
	min    float64
	max    float64
}

func newDataSet() *dataSet {
	return &dataSet{blocks: make([][]float64, 0, dsInitBlocks), min: math.Inf(1), max: math.Inf(-1)}
}

func (ds *dataSet) set(n int, val float64) {
	blk, off := n/dsBlockSize, n%dsBlockSize
	for blk >= len(ds.blocks) {
		ds.blocks = append(ds.blocks, make([]float64, dsBlockSize))
	}
	ds.blocks[blk][off] = val
	if val < ds.min {
		ds.min = val
	}
	if val > ds.max {
		ds.max = val
	}
}

func (ds *dataSet) get(n int) float64 {
	return ds.blocks[n/dsBlockSize][n%dsBlockSize]
}

// Table is one materialized table: a sweep index and optional sweep value
// plus the independent-variable column and one blocked column per output
// (flat row-vector) position.
type Table struct {
	SweepIndex int
	Name       string
	HasSweep   bool
	SweepValue float64
	NValues    int

	ivar     *dataSet
	dvars    []*dataSet
	ivarCols int
}

func newTable(sweepIndex int, s *waveform.Stream) *Table {
	t := &Table{SweepIndex: sweepIndex, ivar: newDataSet(), ivarCols: s.IVar.NCols}
	t.dvars = make([]*dataSet, s.NCols-s.IVar.NCols)
	for i := range t.dvars {
		t.dvars[i] = newDataSet()
	}
	return t
}

func (t *Table) append(ival float64, dvals []float64) {
	t.ivar.set(t.NValues, ival)
	for i, v := range dvals {
		t.dvars[i].set(t.NValues, v)
	}
	t.NValues++
}

// ColumnIndex maps a dependent variable's flat column plus a within-variable
// offset (0 for a real scalar, 0 or 1 for the real/imaginary half of a
// complex variable) to its index into the table's per-column storage.
func (t *Table) ColumnIndex(v waveform.Variable, col int) int {
	return v.Col - t.ivarCols + col
}

// IVarAt returns the independent variable's value at row i.
func (t *Table) IVarAt(i int) float64 { return t.ivar.get(i) }

// ValueAt returns the value at row i of the output column identified by
// ColumnIndex.
func (t *Table) ValueAt(col, i int) float64 { return t.dvars[col].get(i) }

// IVarRange returns the independent variable's running min and max.
func (t *Table) IVarRange() (min, max float64) { return t.ivar.min, t.ivar.max }

// ColumnRange returns a column's running min and max.
func (t *Table) ColumnRange(col int) (min, max float64) {
	return t.dvars[col].min, t.dvars[col].max
}

// FindPoint returns the highest row index whose independent-variable value
// is not greater than ival, clamped to the last row once ival reaches the
// column's max and to row 0 when ival is below the first value. Ties
// resolve to the highest index sharing the value.
//
// The original caps this search at 32 iterations as a sanity assertion
// against a multi-billion-point column; sort.Search has no such cap, and
// none is needed here (resolves Open Question 4).
func (t *Table) FindPoint(ival float64) int {
	if t.NValues == 0 {
		return -1
	}
	if ival >= t.ivar.max {
		return t.NValues - 1
	}
	idx := sort.Search(t.NValues, func(i int) bool { return t.ivar.get(i) > ival })
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// InterpColumn linearly interpolates the output column col at independent
// value ival. It never extrapolates: past the last point it holds the
// final value, and a target past the right-hand search point (which
// shouldn't happen after FindPoint) clamps rather than projects forward.
func (t *Table) InterpColumn(col int, ival float64) float64 {
	li := t.FindPoint(ival)
	ri := li + 1
	if ri >= t.NValues {
		return t.ValueAt(col, t.NValues-1)
	}
	lx, rx := t.IVarAt(li), t.IVarAt(ri)
	if ival > rx {
		return t.ValueAt(col, ri)
	}
	ly, ry := t.ValueAt(col, li), t.ValueAt(col, ri)
	if rx == lx {
		return ly
	}
	return ly + (ry-ly)*(ival-lx)/(rx-lx)
}

// Materialized is a stream's data read to completion: one Table per sweep
// point or table boundary, plus the stream's variable metadata.
type Materialized struct {
	Stream *waveform.Stream
	Tables []*Table
}

// FindVariable looks up a dependent variable by name, returning its
// descriptor for use with Table.ColumnIndex.
func FindVariable(s *waveform.Stream, name string) (waveform.Variable, bool) {
	for _, v := range s.DVars {
		if v.Name == name {
			return v, true
		}
	}
	return waveform.Variable{}, false
}

// Materialize drives s to completion through a {0: initial, 1: table
// complete more follow, 2: first row of next table already fetched} state
// machine, appending rows into column-blocked storage and checking that
// the independent column never decreases within the first two rows of a
// table (a later decrease signals a table boundary instead, for formats
// such as spice3 raw whose decoder did not already resolve it as one).
func Materialize(s *waveform.Stream) (*Materialized, error) {
	if len(s.SVars) > 1 {
		return nil, errors.Errorf("wavefile: %d-dimensional sweeps not supported", len(s.SVars))
	}
	m := &Materialized{Stream: s}
	dvals := make([]float64, s.NCols-s.IVar.NCols)
	heldDvals := make([]float64, s.NCols-s.IVar.NCols)
	var heldIval float64
	state := 0

	for {
		var svec [1]float64
		haveSweep := false
		if len(s.SVars) == 1 {
			rc, err := s.ReadSweep(svec[:])
			if err != nil {
				return nil, err
			}
			if rc != waveform.RowOK {
				break
			}
			haveSweep = true
		}

		t := newTable(len(m.Tables), s)
		if haveSweep {
			t.HasSweep = true
			t.SweepValue = svec[0]
			t.Name = s.SVars[0].Name
		}

		row := 0
		lastIval := math.Inf(-1)
		if state == 2 {
			t.append(heldIval, heldDvals)
			row = 1
			lastIval = heldIval
		}

		var ival float64
		nextState := 0
		for {
			rc, err := s.ReadRow(&ival, dvals)
			if err != nil {
				return nil, err
			}
			if rc != waveform.RowOK {
				if rc == waveform.RowBoundary {
					nextState = 1
				} else {
					nextState = 0
				}
				break
			}
			if row > 0 && ival < lastIval {
				if row == 1 {
					return nil, errors.Errorf("wavefile: independent variable decreases at row %d (ival=%g, last=%g)", row, ival, lastIval)
				}
				copy(heldDvals, dvals)
				heldIval = ival
				nextState = 2
				break
			}
			lastIval = ival
			t.append(ival, dvals)
			row++
		}

		m.Tables = append(m.Tables, t)
		state = nextState
		if state <= 0 {
			break
		}
	}
	return m, nil
}
