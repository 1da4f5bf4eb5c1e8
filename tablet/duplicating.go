package tablet

import (
	"fmt"
	"strings"
	"sync"

	"cstore/utils"

	"github.com/pkg/errors"
)

// DuplicatingRowSet flush/compaction窗口期的过渡门面：
// 持有若干个输入rowset和一个输出rowset
//   - 读走输入集合的并集，输出里可能还缺快照之后的事务，不读
//   - 写打到每个包含这一行的输入上，同时也打到输出上；
//     输出还没有这一行时（NotFound）不算错，merger会从输入的delta track把它带过去
//
// 窗口内的不变式：发到任何输入的mutation最终都会出现在输出里，
// 要么进了输出的base，要么挂在输出的delta track上
type DuplicatingRowSet struct {
	inputs []RowSet
	output RowSet

	// 构造时就锁住：flush中的rowset永远不能再被别的compaction选中
	alwaysLocked sync.Mutex
}

func NewDuplicatingRowSet(inputs []RowSet, output RowSet) *DuplicatingRowSet {
	utils.CondPanic(len(inputs) == 0, errors.New("duplicating rowset needs inputs"))
	d := &DuplicatingRowSet{
		inputs: append([]RowSet(nil), inputs...),
		output: output,
	}
	d.alwaysLocked.Lock()
	return d
}

// CheckRowPresent 任何一个输入里有就算有
func (d *DuplicatingRowSet) CheckRowPresent(probe *RowSetKeyProbe) (bool, error) {
	for _, in := range d.inputs {
		present, err := in.CheckRowPresent(probe)
		if err != nil {
			return false, err
		}
		if present {
			return true, nil
		}
	}
	return false, nil
}

// MutateRow 对每个包含这一行的输入应用，再复制一份到输出
func (d *DuplicatingRowSet) MutateRow(txid uint64, probe *RowSetKeyProbe, change *ChangeList) error {
	found := false
	for _, in := range d.inputs {
		err := in.MutateRow(txid, probe, change)
		if err == nil {
			found = true
			continue
		}
		if errors.Is(err, utils.ErrKeyNotFound) {
			continue
		}
		return err
	}
	if !found {
		return errors.Wrapf(utils.ErrKeyNotFound, "key %x not in any input rowset", probe.EncodedKey())
	}
	// 输出还没有这行时mutation由merger从输入侧带过去
	if err := d.output.MutateRow(txid, probe, change); err != nil && !errors.Is(err, utils.ErrKeyNotFound) {
		return err
	}
	return nil
}

// NewRowIterator 输入集合的并集
func (d *DuplicatingRowSet) NewRowIterator(projection *Schema, snap MvccSnapshot) (RowwiseIterator, error) {
	iters := make([]RowwiseIterator, 0, len(d.inputs))
	for _, in := range d.inputs {
		it, err := in.NewRowIterator(projection, snap)
		if err != nil {
			for _, opened := range iters {
				_ = opened.Close()
			}
			return nil, err
		}
		iters = append(iters, it)
	}
	return &unionRowwiseIterator{iters: iters}, nil
}

// NewCompactionInput 窗口期的rowset不能再当别的compaction的输入
func (d *DuplicatingRowSet) NewCompactionInput(snap MvccSnapshot) (*CompactionInput, error) {
	return nil, errors.Wrap(utils.ErrInvalidArgument, "duplicating rowset cannot be compacted")
}

func (d *DuplicatingRowSet) CountRows() (uint32, error) {
	var total uint32
	for _, in := range d.inputs {
		count, err := in.CountRows()
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (d *DuplicatingRowSet) EstimateOnDiskSize() uint64 {
	var total uint64
	for _, in := range d.inputs {
		total += in.EstimateOnDiskSize()
	}
	return total
}

// CompactFlushLock 返回一把永远锁着的锁
func (d *DuplicatingRowSet) CompactFlushLock() *sync.Mutex {
	return &d.alwaysLocked
}

func (d *DuplicatingRowSet) Schema() *Schema {
	return d.output.Schema()
}

func (d *DuplicatingRowSet) ToString() string {
	names := make([]string, 0, len(d.inputs))
	for _, in := range d.inputs {
		names = append(names, in.ToString())
	}
	return fmt.Sprintf("DuplicatingRowSet(%s -> %s)", strings.Join(names, "+"), d.output.ToString())
}

func (d *DuplicatingRowSet) DebugDump() ([]string, error) {
	var lines []string
	for _, in := range d.inputs {
		sub, err := in.DebugDump()
		if err != nil {
			return nil, err
		}
		lines = append(lines, sub...)
	}
	return lines, nil
}

// Delete 窗口期的rowset不能删；输入输出的存储都还有人引用
func (d *DuplicatingRowSet) Delete() error {
	return errors.Wrap(utils.ErrInvalidArgument, "cannot delete a duplicating rowset")
}

// Output swap时tablet用它拿到输出rowset
func (d *DuplicatingRowSet) Output() RowSet {
	return d.output
}

// Inputs swap之后这些输入就可以delete了
func (d *DuplicatingRowSet) Inputs() []RowSet {
	return append([]RowSet(nil), d.inputs...)
}

// unionRowwiseIterator 依次耗尽每个输入的迭代器
type unionRowwiseIterator struct {
	iters []RowwiseIterator
	cur   int
	err   error
}

func (it *unionRowwiseIterator) Next() bool {
	for it.cur < len(it.iters) {
		if it.iters[it.cur].Next() {
			return true
		}
		if err := it.iters[it.cur].Err(); err != nil {
			it.err = err
			return false
		}
		it.cur++
	}
	return false
}

func (it *unionRowwiseIterator) Row() RowView {
	return it.iters[it.cur].Row()
}

func (it *unionRowwiseIterator) Err() error {
	return it.err
}

func (it *unionRowwiseIterator) Close() error {
	var firstErr error
	for _, iter := range it.iters {
		if err := iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
