package tablet

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// DeltaApplyingIterator 对base迭代出的每个block应用delta：
// 只应用snap认为已提交的txid；同一个rowid内按txid升序回放；
// 最后生效的如果是delete，这一行在selection vector里被清掉
type DeltaApplyingIterator struct {
	base    ColumnwiseIterator
	snap    MvccSnapshot
	sources []deltaSource
	// 有delete标记的rowid集合；集合为空时update不需要检查selection vector
	deleted *roaring.Bitmap
	// projection列号 -> base列号
	mapping []int
}

// 把多个source的record按(rowid, txid)归并
// 每个source自身有序，量不大，直接拼起来排序
// source按时间从老到新排列，同(rowid, txid)的record靠稳定排序保持这个顺序
func collectMerged(sources []deltaSource, startRowid, endRowid uint32) []DeltaRecordView {
	var all []DeltaRecordView
	for _, src := range sources {
		all = append(all, src.CollectForRange(startRowid, endRowid)...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Key.Rowid != all[j].Key.Rowid {
			return all[i].Key.Rowid < all[j].Key.Rowid
		}
		return all[i].Key.Txid < all[j].Key.Txid
	})
	return all
}

func (it *DeltaApplyingIterator) NextBlock() (*RowBlockBatch, error) {
	batch, err := it.base.NextBlock()
	if err != nil || batch == nil {
		return nil, err
	}
	start := batch.StartRowid
	end := start + uint32(batch.Block.NumRows())

	records := collectMerged(it.sources, start, end)
	if len(records) == 0 {
		return batch, nil
	}

	// base列号 -> projection列号
	revMap := make(map[int]int, len(it.mapping))
	for projCol, baseCol := range it.mapping {
		revMap[baseCol] = projCol
	}

	hasDeletes := it.deleted != nil && !it.deleted.IsEmpty()
	for _, rec := range records {
		if !it.snap.IsCommitted(rec.Key.Txid) {
			continue
		}
		change, err := DecodeChangeList(rec.Change)
		if err != nil {
			return nil, err
		}
		row := int(rec.Key.Rowid - start)
		if change.IsDelete() {
			batch.Block.Unselect(row)
			continue
		}
		if hasDeletes && !batch.Block.Selected(row) {
			// delete之后的update等于重新插入
			batch.Block.Select(row)
		}
		for _, up := range change.Updates() {
			if projCol, ok := revMap[up.ColIdx]; ok {
				batch.Block.SetCell(projCol, row, up.Value)
			}
		}
	}
	return batch, nil
}

func (it *DeltaApplyingIterator) Close() error {
	return it.base.Close()
}
