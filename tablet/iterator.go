package tablet

// RowBlockBatch 列式迭代的单位：一个block的行加上起始rowid
type RowBlockBatch struct {
	Block *RowBlock
	// block第一行在base里的rowid
	StartRowid uint32
}

// ColumnwiseIterator 按rowid升序产出block
// 迭代结束时NextBlock返回(nil, nil)
type ColumnwiseIterator interface {
	NextBlock() (*RowBlockBatch, error)
	Close() error
}

// MaterializingIterator 把列式block物化成一行一行的输出
// 用法：for it.Next() { it.Row() }
type MaterializingIterator struct {
	base ColumnwiseIterator

	batch  *RowBlockBatch
	rowIdx int
	err    error
	done   bool
}

func NewMaterializingIterator(base ColumnwiseIterator) *MaterializingIterator {
	return &MaterializingIterator{base: base, rowIdx: -1}
}

// RowView 物化出的一行
type RowView struct {
	Rowid uint32
	Cells [][]byte
}

// Next 推进到下一个可见的行；没有了返回false
func (it *MaterializingIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for {
		if it.batch != nil {
			for it.rowIdx+1 < it.batch.Block.NumRows() {
				it.rowIdx++
				// 被delete命中的行跳过
				if it.batch.Block.Selected(it.rowIdx) {
					return true
				}
			}
		}
		batch, err := it.base.NextBlock()
		if err != nil {
			it.err = err
			return false
		}
		if batch == nil {
			it.done = true
			return false
		}
		it.batch = batch
		it.rowIdx = -1
	}
}

// Row 当前行；只在Next返回true之后调用
func (it *MaterializingIterator) Row() RowView {
	return RowView{
		Rowid: it.batch.StartRowid + uint32(it.rowIdx),
		Cells: it.batch.Block.Row(it.rowIdx),
	}
}

func (it *MaterializingIterator) Err() error {
	return it.err
}

func (it *MaterializingIterator) Close() error {
	return it.base.Close()
}
