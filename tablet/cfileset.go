package tablet

import (
	"bytes"

	"cstore/cfile"
	"cstore/utils"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// CFileSet 一个rowset不可变部分的读视图：
// 每列一个cfile reader、bloom reader、共享的block cache
// 文件句柄打开后一直持有，所有迭代器借用，rowset被drop时才释放
type CFileSet struct {
	dir    string
	schema *Schema
	opt    *Options

	readers []*cfile.Reader
	bloom   *cfile.BloomReader
	cache   *cfile.BlockCache
	numRows uint32
}

// OpenCFileSet 并行打开所有列和bloom，校验各列行数一致
// 任何一步失败都会释放已经打开的资源
func OpenCFileSet(dir string, schema *Schema, opt *Options) (*CFileSet, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	fs := &CFileSet{
		dir:     dir,
		schema:  schema,
		opt:     opt,
		cache:   cfile.NewBlockCache(opt.CacheBlocks),
		readers: make([]*cfile.Reader, schema.NumColumns()),
	}

	var eg errgroup.Group
	for i := 0; i < schema.NumColumns(); i++ {
		i := i
		eg.Go(func() error {
			r, err := cfile.OpenReader(ColumnPath(dir, i), fs.cache)
			if err != nil {
				return errors.Wrapf(err, "while opening column %d of %s", i, dir)
			}
			fs.readers[i] = r
			return nil
		})
	}
	eg.Go(func() error {
		r, err := cfile.OpenBloomReader(BloomPath(dir))
		if err != nil {
			return errors.Wrapf(err, "while opening bloom of %s", dir)
		}
		fs.bloom = r
		return nil
	})
	if err := eg.Wait(); err != nil {
		fs.Close()
		return nil, err
	}

	// base的不变式：所有列报告同样的行数
	fs.numRows = fs.readers[0].NumRows()
	for i, r := range fs.readers {
		if r.NumRows() != fs.numRows {
			fs.Close()
			return nil, errors.Wrapf(utils.ErrCorruption,
				"column %d reports %d rows, column 0 reports %d", i, r.NumRows(), fs.numRows)
		}
	}
	return fs, nil
}

// CountRows base的行数
func (fs *CFileSet) CountRows() uint32 {
	return fs.numRows
}

// EstimateOnDiskSize 所有列文件加bloom的大小
func (fs *CFileSet) EstimateOnDiskSize() uint64 {
	var size uint64
	for _, r := range fs.readers {
		size += uint64(r.SizeOnDisk())
	}
	if fs.bloom != nil {
		size += uint64(fs.bloom.SizeOnDisk())
	}
	return size
}

// CheckRowPresent 先bloom后key索引
// bloom说不存在就直接返回false，不做更多I/O；bloom阳性时以key索引为准
func (fs *CFileSet) CheckRowPresent(probe *RowSetKeyProbe) (bool, error) {
	if !fs.bloom.MayContain(probe.BloomProbe()) {
		return false, nil
	}
	_, err := fs.FindRow(probe.EncodedKey())
	if err != nil {
		if errors.Is(err, utils.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindRow 在key索引上精确查找，返回rowid
func (fs *CFileSet) FindRow(encodedKey []byte) (uint32, error) {
	blockIdx, err := fs.readers[0].SeekBlockForKey(encodedKey)
	if err != nil {
		return 0, err
	}

	// 把这个block的key列都取出来，逐行重建复合key比较
	numKey := fs.schema.NumKeyColumns()
	keyBlocks := make([]*cfile.Block, numKey)
	for i := 0; i < numKey; i++ {
		blk, err := fs.readers[i].Block(blockIdx)
		if err != nil {
			return 0, err
		}
		keyBlocks[i] = blk
	}

	n := keyBlocks[0].NumCells()
	keyCells := make([][]byte, numKey)
	for row := 0; row < n; row++ {
		for i := 0; i < numKey; i++ {
			keyCells[i] = keyBlocks[i].Cell(row)
		}
		candidate, err := fs.schema.EncodeKeyCells(keyCells)
		if err != nil {
			return 0, err
		}
		cmp := bytes.Compare(candidate, encodedKey)
		if cmp == 0 {
			return keyBlocks[0].FirstRowid() + uint32(row), nil
		}
		// base按key升序，走过头了就不用再看
		if cmp > 0 {
			break
		}
	}
	return 0, errors.Wrapf(utils.ErrKeyNotFound, "key %x", encodedKey)
}

// NewIterator 按projection迭代base，只物化projection里的列
func (fs *CFileSet) NewIterator(projection *Schema) (*CFileSetIterator, error) {
	mapping, err := fs.schema.ProjectionMapping(projection)
	if err != nil {
		return nil, err
	}
	return &CFileSetIterator{
		fs:         fs,
		projection: projection,
		mapping:    mapping,
	}, nil
}

// Close 释放所有文件句柄
func (fs *CFileSet) Close() error {
	var firstErr error
	for _, r := range fs.readers {
		if r != nil {
			if err := r.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if fs.bloom != nil {
		if err := fs.bloom.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CFileSetIterator 按rowid升序逐block产出projection的列
type CFileSetIterator struct {
	fs         *CFileSet
	projection *Schema
	mapping    []int
	blockIdx   int
}

func (it *CFileSetIterator) NextBlock() (*RowBlockBatch, error) {
	if it.blockIdx >= it.fs.readers[0].NumBlocks() {
		return nil, nil
	}
	blockIdx := it.blockIdx
	it.blockIdx++

	blocks := make([]*cfile.Block, len(it.mapping))
	for i, baseCol := range it.mapping {
		blk, err := it.fs.readers[baseCol].Block(blockIdx)
		if err != nil {
			return nil, err
		}
		blocks[i] = blk
	}

	var n int
	var startRowid uint32
	if len(blocks) > 0 {
		n = blocks[0].NumCells()
		startRowid = blocks[0].FirstRowid()
	} else {
		// 空projection：行数从第0列拿
		blk, err := it.fs.readers[0].Block(blockIdx)
		if err != nil {
			return nil, err
		}
		n = blk.NumCells()
		startRowid = blk.FirstRowid()
	}

	out := NewRowBlock(it.projection, n)
	row := make([][]byte, len(blocks))
	for r := 0; r < n; r++ {
		for c, blk := range blocks {
			row[c] = blk.Cell(r)
		}
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return &RowBlockBatch{Block: out, StartRowid: startRowid}, nil
}

func (it *CFileSetIterator) Close() error {
	return nil
}
