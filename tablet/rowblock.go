package tablet

import (
	"cstore/utils"

	"github.com/pkg/errors"
)

// RowBlock 一批行的列式表现：cells[col][row]
// sel是selection vector，被delete命中的行会被清掉
type RowBlock struct {
	schema *Schema
	cells  [][][]byte
	nrows  int
	sel    []bool
}

func NewRowBlock(schema *Schema, capacity int) *RowBlock {
	cells := make([][][]byte, schema.NumColumns())
	for i := range cells {
		cells[i] = make([][]byte, 0, capacity)
	}
	return &RowBlock{
		schema: schema,
		cells:  cells,
		sel:    make([]bool, 0, capacity),
	}
}

func (b *RowBlock) Schema() *Schema {
	return b.schema
}

func (b *RowBlock) NumRows() int {
	return b.nrows
}

// AppendRow 按schema顺序追加一行的cell
func (b *RowBlock) AppendRow(row [][]byte) error {
	if len(row) != b.schema.NumColumns() {
		return errors.Wrapf(utils.ErrInvalidArgument, "want %d cells, got %d", b.schema.NumColumns(), len(row))
	}
	for i, cell := range row {
		width := b.schema.Column(i).Type.FixedWidth()
		if width > 0 && len(cell) != width {
			return errors.Wrapf(utils.ErrInvalidArgument, "column %d cell width %d != %d", i, len(cell), width)
		}
		b.cells[i] = append(b.cells[i], cell)
	}
	b.sel = append(b.sel, true)
	b.nrows++
	return nil
}

func (b *RowBlock) Cell(col, row int) []byte {
	return b.cells[col][row]
}

func (b *RowBlock) SetCell(col, row int, cell []byte) {
	b.cells[col][row] = cell
}

// Row 返回一行的所有cell，不做拷贝
func (b *RowBlock) Row(row int) [][]byte {
	cells := make([][]byte, len(b.cells))
	for col := range b.cells {
		cells[col] = b.cells[col][row]
	}
	return cells
}

func (b *RowBlock) Selected(row int) bool {
	return b.sel[row]
}

func (b *RowBlock) Unselect(row int) {
	b.sel[row] = false
}

// delete之后又有update，等于重新插入，行重新可见
func (b *RowBlock) Select(row int) {
	b.sel[row] = true
}

// CountSelected 还可见的行数
func (b *RowBlock) CountSelected() int {
	count := 0
	for _, ok := range b.sel {
		if ok {
			count++
		}
	}
	return count
}
