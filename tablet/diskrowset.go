package tablet

import (
	"fmt"
	"sync"

	"cstore/file"
	"cstore/utils"

	"github.com/pkg/errors"
)

// RowwiseIterator 一行一行的读出口
type RowwiseIterator interface {
	Next() bool
	Row() RowView
	Err() error
	Close() error
}

// DiskRowSet 一个落盘rowset的完整门面：
// 不可变的columnar base（CFileSet）加上可变的delta track（DeltaTracker）
// base持有的文件句柄到rowset被drop才释放
type DiskRowSet struct {
	env    file.Env
	schema *Schema
	opt    *Options

	mu  sync.Mutex
	dir string

	base  *CFileSet
	delta *DeltaTracker
	open  bool

	// 把这个rowset选为compaction/flush输入时要拿住的锁
	compactFlushMu sync.Mutex
}

// OpenDiskRowSet 先打开base再打开delta tracker；任何失败都把已打开的释放掉
func OpenDiskRowSet(env file.Env, schema *Schema, dir string, opt *Options) (*DiskRowSet, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	base, err := OpenCFileSet(dir, schema, opt)
	if err != nil {
		return nil, err
	}
	delta, err := OpenDeltaTracker(env, dir, schema, base.CountRows(), opt)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	return &DiskRowSet{
		env:    env,
		schema: schema,
		opt:    opt,
		dir:    dir,
		base:   base,
		delta:  delta,
		open:   true,
	}, nil
}

func (rs *DiskRowSet) checkOpen() {
	utils.CondPanic(!rs.open, errors.New("rowset is not open"))
}

// CheckRowPresent key是否在base的key域里
// 不看delta：被delete的行在base里仍然有key，存在性是key域的问题
func (rs *DiskRowSet) CheckRowPresent(probe *RowSetKeyProbe) (bool, error) {
	rs.checkOpen()
	return rs.base.CheckRowPresent(probe)
}

// MutateRow 把key解析成rowid再交给delta tracker
// key不在这个rowset时返回ErrKeyNotFound，调用方去别的rowset试
func (rs *DiskRowSet) MutateRow(txid uint64, probe *RowSetKeyProbe, change *ChangeList) error {
	rs.checkOpen()
	rowid, err := rs.base.FindRow(probe.EncodedKey())
	if err != nil {
		return err
	}
	return rs.delta.Update(txid, rowid, change)
}

// MutateRowByKey rawKey是key列的cell，内部构建probe
func (rs *DiskRowSet) MutateRowByKey(txid uint64, rawKey [][]byte, change *ChangeList) error {
	probe, err := NewRowSetKeyProbe(rs.schema, rawKey)
	if err != nil {
		return err
	}
	return rs.MutateRow(txid, probe, change)
}

// NewRowIterator base迭代套上delta应用，再物化成行
// 可见性由snap决定：迭代器只反映snap认为已提交的txid
func (rs *DiskRowSet) NewRowIterator(projection *Schema, snap MvccSnapshot) (RowwiseIterator, error) {
	rs.checkOpen()
	baseIter, err := rs.base.NewIterator(projection)
	if err != nil {
		return nil, err
	}
	wrapped, err := rs.delta.WrapIterator(baseIter, projection, snap)
	if err != nil {
		return nil, err
	}
	return NewMaterializingIterator(wrapped), nil
}

// NewCompactionInput 给compaction merger用的原始输入流
func (rs *DiskRowSet) NewCompactionInput(snap MvccSnapshot) (*CompactionInput, error) {
	rs.checkOpen()
	return newCompactionInput(rs, snap)
}

// FlushDeltas 把delta buffer落成一个新的delta文件
func (rs *DiskRowSet) FlushDeltas() error {
	rs.checkOpen()
	return rs.delta.Flush()
}

func (rs *DiskRowSet) CountRows() (uint32, error) {
	rs.checkOpen()
	return rs.base.CountRows(), nil
}

// EstimateOnDiskSize base部分的磁盘占用
// TODO: delta文件的大小还没有算进来
func (rs *DiskRowSet) EstimateOnDiskSize() uint64 {
	rs.checkOpen()
	return rs.base.EstimateOnDiskSize()
}

func (rs *DiskRowSet) Schema() *Schema {
	return rs.schema
}

func (rs *DiskRowSet) CompactFlushLock() *sync.Mutex {
	return &rs.compactFlushMu
}

func (rs *DiskRowSet) ToString() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return fmt.Sprintf("DiskRowSet(%s)", rs.dir)
}

// Dir 当前目录
func (rs *DiskRowSet) Dir() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.dir
}

// DebugDump 借compaction input把所有行和delta都打出来，测试用
func (rs *DiskRowSet) DebugDump() ([]string, error) {
	rs.checkOpen()
	input, err := rs.NewCompactionInput(AllCommittedSnapshot{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()
	return DebugDumpCompactionInput(input)
}

// Delete 先把目录rename成<dir>.deleting再递归删除
// rename在前保证崩溃后留下的是一个标记明确的垃圾目录，
// 启动扫描(SweepTransients)会把它删完
func (rs *DiskRowSet) Delete() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.open = false
	// 释放mmap句柄再删文件
	if err := rs.base.Close(); err != nil {
		utils.Err(err)
	}
	tmpPath := rs.dir + utils.DeletingRowSetSuffix
	if err := rs.env.Rename(rs.dir, tmpPath); err != nil {
		return err
	}
	return rs.env.RemoveAll(tmpPath)
}

// Rename 原子改名并更新内部路径
func (rs *DiskRowSet) Rename(newDir string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.env.Rename(rs.dir, newDir); err != nil {
		return err
	}
	rs.dir = newDir
	return nil
}
