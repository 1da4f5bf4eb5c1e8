package tablet

import (
	"bytes"
	"fmt"

	"cstore/file"
	"cstore/utils"

	"github.com/pkg/errors"
)

// CompactionRow compaction merger消费的一行：
// 编码key、base里的rowid、完整schema的cell、这一行上所有的delta（txid升序）
type CompactionRow struct {
	EncodedKey []byte
	Rowid      uint32
	Cells      [][]byte
	Deltas     []DeltaRecordView
}

// CompactionInput 一个rowset的原始输出流，按rowid升序
// delta不在这里按snap过滤，merger自己决定哪些应用哪些携带
type CompactionInput struct {
	schema *Schema
	snap   MvccSnapshot
	iter   ColumnwiseIterator

	sources []deltaSource

	batch        *RowBlockBatch
	batchRecords []DeltaRecordView
	recIdx       int
	rowIdx       int
}

func newCompactionInput(rs *DiskRowSet, snap MvccSnapshot) (*CompactionInput, error) {
	iter, err := rs.base.NewIterator(rs.schema)
	if err != nil {
		return nil, err
	}
	sources, _ := rs.delta.snapshotSources()
	return &CompactionInput{
		schema:  rs.schema,
		snap:    snap,
		iter:    iter,
		sources: sources,
	}, nil
}

// Snapshot merger应用delta时要用的MVCC快照
func (in *CompactionInput) Snapshot() MvccSnapshot {
	return in.snap
}

func (in *CompactionInput) Schema() *Schema {
	return in.schema
}

// Next 产出下一行；没有了返回(nil, nil)
func (in *CompactionInput) Next() (*CompactionRow, error) {
	for in.batch == nil || in.rowIdx >= in.batch.Block.NumRows() {
		batch, err := in.iter.NextBlock()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return nil, nil
		}
		in.batch = batch
		in.rowIdx = 0
		in.recIdx = 0
		in.batchRecords = collectMerged(in.sources,
			batch.StartRowid, batch.StartRowid+uint32(batch.Block.NumRows()))
	}

	rowid := in.batch.StartRowid + uint32(in.rowIdx)
	cells := in.batch.Block.Row(in.rowIdx)
	in.rowIdx++

	encodedKey, err := in.schema.EncodeKeyFromRow(cells)
	if err != nil {
		return nil, err
	}
	// batchRecords按rowid有序，游标往前走就行
	var deltas []DeltaRecordView
	for in.recIdx < len(in.batchRecords) && in.batchRecords[in.recIdx].Key.Rowid == rowid {
		deltas = append(deltas, in.batchRecords[in.recIdx])
		in.recIdx++
	}
	return &CompactionRow{
		EncodedKey: encodedKey,
		Rowid:      rowid,
		Cells:      cells,
		Deltas:     deltas,
	}, nil
}

func (in *CompactionInput) Close() error {
	return in.iter.Close()
}

// flush/compaction结束后要带进新rowset的delta
type carriedDelta struct {
	outRowid uint32
	txid     uint64
	change   *ChangeList
}

// MergeCompactionInputs 把若干个compaction input按key归并成一个新的rowset：
//   - snap认为已提交的delta按txid升序折进base
//   - 其余的delta重新按输出rowid记进新rowset的delta track
//   - 已提交的delete且后面没有未提交delta的行直接丢掉
//
// 同一个编码key出现在两个输入里时返回ErrInvalidArgument；
// key区间交错但key互不相同的输入照常归并
func MergeCompactionInputs(env file.Env, schema *Schema, opt *Options,
	inputs []*CompactionInput, snap MvccSnapshot, outDir string) (*DiskRowSet, error) {
	if len(inputs) == 0 {
		return nil, errors.Wrap(utils.ErrInvalidArgument, "no compaction inputs")
	}
	writer, err := OpenRowSetWriter(env, schema, outDir, opt)
	if err != nil {
		return nil, err
	}

	heads := make([]*CompactionRow, len(inputs))
	for i, in := range inputs {
		if heads[i], err = in.Next(); err != nil {
			return nil, err
		}
	}

	var carried []carriedDelta
	for {
		// 挑编码key最小的head
		minIdx := -1
		for i, head := range heads {
			if head == nil {
				continue
			}
			if minIdx < 0 || bytes.Compare(head.EncodedKey, heads[minIdx].EncodedKey) < 0 {
				minIdx = i
			}
		}
		if minIdx < 0 {
			break
		}
		for i, head := range heads {
			if i != minIdx && head != nil && bytes.Equal(head.EncodedKey, heads[minIdx].EncodedKey) {
				return nil, errors.Wrapf(utils.ErrInvalidArgument,
					"compaction inputs overlap on key %x", head.EncodedKey)
			}
		}
		row := heads[minIdx]
		if heads[minIdx], err = inputs[minIdx].Next(); err != nil {
			return nil, err
		}

		// 已提交的delta按txid升序折进cell；delete之后的update等于重新插入
		cells := append([][]byte(nil), row.Cells...)
		deleted := false
		var deleteTxid uint64
		var uncommitted []DeltaRecordView
		for _, rec := range row.Deltas {
			change, err := DecodeChangeList(rec.Change)
			if err != nil {
				return nil, err
			}
			if !snap.IsCommitted(rec.Key.Txid) {
				uncommitted = append(uncommitted, rec)
				continue
			}
			if change.IsDelete() {
				deleted = true
				deleteTxid = rec.Key.Txid
				continue
			}
			deleted = false
			change.ApplyToRow(cells)
		}

		if deleted && len(uncommitted) == 0 {
			// 彻底消失的行，compaction顺手回收
			continue
		}

		outRowid := writer.WrittenCount()
		if err := writer.WriteRow(cells); err != nil {
			return nil, err
		}
		if deleted {
			// 行暂时留在base里，delete以delta的形式带过去保持可见性
			carried = append(carried, carriedDelta{outRowid, deleteTxid, NewDeleteChangeList()})
		}
		for _, rec := range uncommitted {
			change, err := DecodeChangeList(rec.Change)
			if err != nil {
				return nil, err
			}
			carried = append(carried, carriedDelta{outRowid, rec.Key.Txid, change})
		}
	}

	if err := writer.Finish(); err != nil {
		return nil, err
	}
	out, err := OpenDiskRowSet(env, schema, outDir, opt)
	if err != nil {
		return nil, err
	}
	for _, d := range carried {
		if err := out.delta.Update(d.txid, d.outRowid, d.change); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DebugDumpCompactionInput 把input的每一行连同delta链打成可读的行
func DebugDumpCompactionInput(input *CompactionInput) ([]string, error) {
	var lines []string
	for {
		row, err := input.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return lines, nil
		}
		var deltas []string
		for _, rec := range row.Deltas {
			change, err := DecodeChangeList(rec.Change)
			if err != nil {
				return nil, err
			}
			deltas = append(deltas, fmt.Sprintf("@%d:%s", rec.Key.Txid, change.String()))
		}
		line := fmt.Sprintf("rowid=%d key=%x cells=%x deltas=%v", row.Rowid, row.EncodedKey, row.Cells, deltas)
		lines = append(lines, line)
	}
}
