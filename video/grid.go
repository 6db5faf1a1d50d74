package video

import (
	"fmt"
)

// Neighbor is an explicit optional reference to an already-constructed grid
// cell. A zero Neighbor means "no neighbor" (the cell sits on the top or
// left edge); callers must check Ok before dereferencing.
type Neighbor[T any] struct {
	cell *T
}

// Ok reports whether the neighbor exists.
func (n Neighbor[T]) Ok() bool { return n.cell != nil }

// Get returns the neighbor cell. Calling Get on an empty Neighbor returns
// nil; use Ok to distinguish.
func (n Neighbor[T]) Get() *T { return n.cell }

// GridContext is passed to a cell constructor during grid construction.
//
// Above and Left reference the cells constructed immediately before this one
// in row-major order, so a cell may derive its initial state causally from
// its upper and left neighbors (e.g. spatial prediction).
type GridContext[T any] struct {
	Column int
	Row    int
	Above  Neighbor[T]
	Left   Neighbor[T]
}

// Plane is the read surface shared by Grid and GridView: a bounds-checked
// two-dimensional collection addressed column-first.
type Plane[T any] interface {
	Width() int
	Height() int
	At(column, row int) (*T, error)
}

// Grid is a fixed-size row-major two-dimensional container whose cells are
// constructed one at a time, each with access to its already-constructed
// upper and left neighbors.
//
// Storage is a single backing slice; cells are never moved after
// construction, so neighbor references taken during construction stay valid
// for the lifetime of the grid. Grids are not safe for concurrent mutation.
type Grid[T any] struct {
	width  int
	height int
	cells  []T
}

// NewGrid constructs a width x height grid, invoking build once per cell in
// row-major order.
//
// Parameters:
//   - width: Number of columns (must be positive)
//   - height: Number of rows (must be positive)
//   - build: Cell constructor, called with the cell's causal context
//
// Returns:
//   - *Grid[T]: The constructed grid
//   - error: Any error from dimension validation
func NewGrid[T any](width, height int, build func(GridContext[T]) T) (*Grid[T], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid size: %dx%d", width, height)
	}

	g := &Grid[T]{
		width:  width,
		height: height,
		cells:  make([]T, 0, width*height),
	}

	// Each cell is constructed separately so it can observe the cells above
	// and to its left, which are guaranteed to exist already in row-major
	// construction order.
	for row := 0; row < height; row++ {
		for column := 0; column < width; column++ {
			ctx := GridContext[T]{Column: column, Row: row}
			if row > 0 {
				ctx.Above = Neighbor[T]{cell: &g.cells[(row-1)*width+column]}
			}
			if column > 0 {
				ctx.Left = Neighbor[T]{cell: &g.cells[row*width+column-1]}
			}
			g.cells = append(g.cells, build(ctx))
		}
	}

	return g, nil
}

// Width returns the number of columns.
func (g *Grid[T]) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid[T]) Height() int { return g.height }

// At returns a pointer to the cell at the given coordinates.
func (g *Grid[T]) At(column, row int) (*T, error) {
	if column < 0 || column >= g.width || row < 0 || row >= g.height {
		return nil, fmt.Errorf("grid access out of range: (%d,%d) in %dx%d", column, row, g.width, g.height)
	}
	return &g.cells[row*g.width+column], nil
}

// ForEach visits every cell in row-major order.
func (g *Grid[T]) ForEach(f func(cell *T, column, row int)) {
	for row := 0; row < g.height; row++ {
		for column := 0; column < g.width; column++ {
			f(&g.cells[row*g.width+column], column, row)
		}
	}
}

// GridView is a zero-copy rectangular window over a Grid or over another
// GridView. Coordinates are translated to the underlying plane; accesses are
// bounds-checked against the view's own extent.
type GridView[T any] struct {
	base   Plane[T]
	column int
	row    int
	width  int
	height int
}

// NewGridView creates a view of the given extent over base.
//
// The window must lie entirely within base; construction fails otherwise.
func NewGridView[T any](base Plane[T], column, row, width, height int) (*GridView[T], error) {
	if column < 0 || row < 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid view window: origin (%d,%d) size %dx%d", column, row, width, height)
	}
	if column+width > base.Width() || row+height > base.Height() {
		return nil, fmt.Errorf("view window %dx%d at (%d,%d) exceeds plane %dx%d",
			width, height, column, row, base.Width(), base.Height())
	}

	return &GridView[T]{
		base:   base,
		column: column,
		row:    row,
		width:  width,
		height: height,
	}, nil
}

// Width returns the number of columns in the view.
func (v *GridView[T]) Width() int { return v.width }

// Height returns the number of rows in the view.
func (v *GridView[T]) Height() int { return v.height }

// At returns a pointer to the cell at view-relative coordinates.
func (v *GridView[T]) At(column, row int) (*T, error) {
	if column < 0 || column >= v.width || row < 0 || row >= v.height {
		return nil, fmt.Errorf("view access out of range: (%d,%d) in %dx%d", column, row, v.width, v.height)
	}
	return v.base.At(v.column+column, v.row+row)
}

// ForEach visits every cell of the view in row-major order.
func (v *GridView[T]) ForEach(f func(cell *T, column, row int)) {
	for row := 0; row < v.height; row++ {
		for column := 0; column < v.width; column++ {
			cell, err := v.At(column, row)
			if err != nil {
				// Unreachable: the view was bounds-checked at construction.
				continue
			}
			f(cell, column, row)
		}
	}
}
