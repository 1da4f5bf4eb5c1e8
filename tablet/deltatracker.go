package tablet

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"cstore/file"
	"cstore/utils"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
)

// DeltaTracker 管理一个rowset在base之上的可变状态：
// 一个in-memory delta buffer加上零个或多个已落盘的delta文件
//
// 并发约定：
//   - Update在mu.RLock下写当前buffer，flush的换buffer在mu.Lock下做，
//     所以迭代器拿到的(buffer, 文件列表)要么完全包含一次flush要么完全不包含
//   - Flush自身由flushMu串行，不阻塞reader和updater
type DeltaTracker struct {
	dir      string
	schema   *Schema
	opt      *Options
	baseRows uint32

	mu sync.RWMutex
	// 当前接收写入的buffer
	dms *DeltaMemStore
	// flush中途的旧buffer，文件ready之前reader还要读它
	flushing *DeltaMemStore
	// 已落盘的delta文件，按编号升序
	readers      []*DeltaFileReader
	nextDeltaIdx int

	flushMu sync.Mutex
}

// OpenDeltaTracker 列出目录下的delta_*文件并全部打开
// 编号出现空洞说明之前有flush只做了一半，按corruption处理
func OpenDeltaTracker(env file.Env, dir string, schema *Schema, baseRows uint32, opt *Options) (*DeltaTracker, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	names, err := env.List(dir)
	if err != nil {
		return nil, err
	}
	var idxs []int
	for _, name := range names {
		if !strings.HasPrefix(name, utils.DeltaFilePrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, utils.DeltaFilePrefix))
		if err != nil {
			return nil, errors.Wrapf(utils.ErrCorruption, "bad delta file name %s", name)
		}
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)

	t := &DeltaTracker{
		dir:      dir,
		schema:   schema,
		opt:      opt,
		baseRows: baseRows,
		dms:      NewDeltaMemStore(opt.ArenaSize),
	}
	for i, idx := range idxs {
		if idx != i {
			return nil, errors.Wrapf(utils.ErrCorruption, "delta file gap in %s: expect %d, found %d", dir, i, idx)
		}
		r, err := OpenDeltaFileReader(DeltaPath(dir, idx))
		if err != nil {
			return nil, err
		}
		// delta不能指向base之外的rowid
		if r.Stats().Count > 0 && r.Stats().MaxRowid >= baseRows {
			return nil, errors.Wrapf(utils.ErrCorruption,
				"delta file %s references rowid %d beyond base rows %d", DeltaPath(dir, idx), r.Stats().MaxRowid, baseRows)
		}
		t.readers = append(t.readers, r)
	}
	t.nextDeltaIdx = len(idxs)
	return t, nil
}

// Update 记录一条针对rowid的修改
// rowid越界返回ErrKeyNotFound；change碰key列返回ErrInvalidArgument
func (t *DeltaTracker) Update(txid uint64, rowid uint32, change *ChangeList) error {
	if rowid >= t.baseRows {
		return errors.Wrapf(utils.ErrKeyNotFound, "rowid %d >= base rows %d", rowid, t.baseRows)
	}
	if err := change.Validate(t.schema); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dms.Update(txid, rowid, change)
}

// Flush 把当前buffer原子地变成下一个delta_k文件
// 先换上空buffer（写入立刻走新buffer），旧buffer写成文件后挂进reader列表
func (t *DeltaTracker) Flush() error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if t.dms.IsEmpty() {
		t.mu.Unlock()
		return nil
	}
	flushing := t.dms
	t.flushing = flushing
	t.dms = NewDeltaMemStore(t.opt.ArenaSize)
	idx := t.nextDeltaIdx
	t.mu.Unlock()

	path := DeltaPath(t.dir, idx)
	w := NewDeltaFileWriter()
	for _, rec := range flushing.CollectForRange(0, t.baseRows) {
		if err := w.Append(rec); err != nil {
			t.abortFlush()
			return err
		}
	}
	if err := w.Finish(path); err != nil {
		t.abortFlush()
		return err
	}
	r, err := OpenDeltaFileReader(path)
	if err != nil {
		t.abortFlush()
		return err
	}

	t.mu.Lock()
	t.readers = append(t.readers, r)
	t.nextDeltaIdx = idx + 1
	t.flushing = nil
	t.mu.Unlock()
	return nil
}

// flush失败时把旧buffer放回去：旧record比新buffer里同key的record更早
func (t *DeltaTracker) abortFlush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	flushing := t.flushing
	t.flushing = nil
	if flushing == nil {
		return
	}
	for _, rec := range flushing.CollectForRange(0, t.baseRows) {
		change, err := DecodeChangeList(rec.Change)
		if err != nil {
			utils.Err(err)
			continue
		}
		utils.Err(t.dms.mergeOlder(rec.Key, change))
	}
}

// 迭代器创建时对(文件列表, buffer)拍快照
// 返回的source顺序保证同一个rowid内txid升序合并的正确性
func (t *DeltaTracker) snapshotSources() ([]deltaSource, *roaring.Bitmap) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sources := make([]deltaSource, 0, len(t.readers)+2)
	deleted := roaring.New()
	for _, r := range t.readers {
		sources = append(sources, r)
		rows, err := r.DeletedRowsIn()
		if err == nil {
			deleted.AddMany(rows)
		}
	}
	if t.flushing != nil {
		sources = append(sources, t.flushing)
		deleted.Or(t.flushing.DeletedRows())
	}
	sources = append(sources, t.dms)
	deleted.Or(t.dms.DeletedRows())
	return sources, deleted
}

// WrapIterator 把base的列式迭代包一层delta应用
// 只会应用snap认为已提交的txid，同一个rowid内按txid升序
func (t *DeltaTracker) WrapIterator(base ColumnwiseIterator, projection *Schema, snap MvccSnapshot) (ColumnwiseIterator, error) {
	mapping, err := t.schema.ProjectionMapping(projection)
	if err != nil {
		return nil, err
	}
	sources, deleted := t.snapshotSources()
	return &DeltaApplyingIterator{
		base:    base,
		snap:    snap,
		sources: sources,
		deleted: deleted,
		mapping: mapping,
	}, nil
}

// CountDeltaFiles 已落盘的delta文件个数
func (t *DeltaTracker) CountDeltaFiles() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.readers)
}

// BufferedCount 还在内存buffer里的delta条数
func (t *DeltaTracker) BufferedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := t.dms.Count()
	if t.flushing != nil {
		count += t.flushing.Count()
	}
	return count
}
