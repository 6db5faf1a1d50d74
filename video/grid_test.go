package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// traceCell records what its constructor observed.
type traceCell struct {
	column, row int
	hadAbove    bool
	hadLeft     bool
	sum         int
}

func buildTrace(ctx GridContext[traceCell]) traceCell {
	cell := traceCell{
		column:   ctx.Column,
		row:      ctx.Row,
		hadAbove: ctx.Above.Ok(),
		hadLeft:  ctx.Left.Ok(),
		sum:      1,
	}
	if ctx.Above.Ok() {
		cell.sum += ctx.Above.Get().sum
	}
	if ctx.Left.Ok() {
		cell.sum += ctx.Left.Get().sum
	}
	return cell
}

func TestNewGridCausalNeighbors(t *testing.T) {
	g, err := NewGrid(3, 2, buildTrace)
	require.NoError(t, err)

	// Top-left corner has no neighbors; top row lacks Above; left column
	// lacks Left.
	corner, err := g.At(0, 0)
	require.NoError(t, err)
	assert.False(t, corner.hadAbove)
	assert.False(t, corner.hadLeft)

	topMid, err := g.At(1, 0)
	require.NoError(t, err)
	assert.False(t, topMid.hadAbove)
	assert.True(t, topMid.hadLeft)

	leftBottom, err := g.At(0, 1)
	require.NoError(t, err)
	assert.True(t, leftBottom.hadAbove)
	assert.False(t, leftBottom.hadLeft)

	inner, err := g.At(1, 1)
	require.NoError(t, err)
	assert.True(t, inner.hadAbove)
	assert.True(t, inner.hadLeft)

	// The sums prove construction order: each cell saw fully-built
	// neighbors. (0,0)=1, (1,0)=2, (2,0)=3, (0,1)=2, (1,1)=5, (2,1)=9.
	last, err := g.At(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, last.sum)
}

func TestNewGridInvalidSize(t *testing.T) {
	_, err := NewGrid(0, 4, buildTrace)
	assert.Error(t, err)

	_, err = NewGrid(4, -1, buildTrace)
	assert.Error(t, err)
}

func TestGridAtOutOfRange(t *testing.T) {
	g, err := NewGrid(2, 2, buildTrace)
	require.NoError(t, err)

	_, err = g.At(2, 0)
	assert.Error(t, err)
	_, err = g.At(0, 2)
	assert.Error(t, err)
	_, err = g.At(-1, 0)
	assert.Error(t, err)
}

func TestGridForEachRowMajor(t *testing.T) {
	g, err := NewGrid(3, 2, buildTrace)
	require.NoError(t, err)

	var visited []int
	g.ForEach(func(cell *traceCell, column, row int) {
		assert.Equal(t, cell.column, column)
		assert.Equal(t, cell.row, row)
		visited = append(visited, row*3+column)
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, visited)
}

func TestGridViewTranslation(t *testing.T) {
	g, err := NewGrid(4, 4, buildTrace)
	require.NoError(t, err)

	view, err := NewGridView[traceCell](g, 1, 2, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Width())
	assert.Equal(t, 2, view.Height())

	cell, err := view.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, cell.column)
	assert.Equal(t, 2, cell.row)

	// A view over a view translates through both windows.
	sub, err := NewGridView[traceCell](view, 1, 1, 1, 1)
	require.NoError(t, err)
	cell, err = sub.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, cell.column)
	assert.Equal(t, 3, cell.row)
}

func TestGridViewBounds(t *testing.T) {
	g, err := NewGrid(4, 4, buildTrace)
	require.NoError(t, err)

	_, err = NewGridView[traceCell](g, 3, 3, 2, 2)
	assert.Error(t, err)

	view, err := NewGridView[traceCell](g, 0, 0, 2, 2)
	require.NoError(t, err)
	_, err = view.At(2, 0)
	assert.Error(t, err)
}
