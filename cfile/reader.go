package cfile

import (
	"bytes"
	"os"
	"sort"

	"cstore/file"
	"cstore/pb"
	"cstore/utils"

	"github.com/pkg/errors"
)

// 值类型，记录在索引footer里
const (
	TypeU32   uint32 = 1
	TypeU64   uint32 = 2
	TypeBytes uint32 = 3
)

// 按类型返回定宽cell的宽度，变长返回0
func FixedWidthOf(valueType uint32) int {
	switch valueType {
	case TypeU32:
		return 4
	case TypeU64:
		return 8
	default:
		return 0
	}
}

// Block 解码后的一个block
type Block struct {
	// cell数据部分
	raw []byte
	// 变长列的offset表；定宽列为nil
	cellOffsets []uint32
	// 定宽cell的宽度
	width int
	// cell个数
	n int
	// block第一行的rowid
	firstRowid uint32
}

func (b *Block) NumCells() int {
	return b.n
}

func (b *Block) FirstRowid() uint32 {
	return b.firstRowid
}

// Cell 返回第i个cell，不做拷贝
func (b *Block) Cell(i int) []byte {
	if b.width > 0 {
		return b.raw[i*b.width : (i+1)*b.width]
	}
	start := b.cellOffsets[i]
	end := uint32(len(b.raw))
	if i+1 < b.n {
		end = b.cellOffsets[i+1]
	}
	return b.raw[start:end]
}

// Reader 一个列文件的只读视图
// 打开后文件句柄一直持有，所有迭代器都借用，rowset被drop时才释放
type Reader struct {
	mf     *file.MmapFile
	idx    *pb.ColumnIndex
	cache  *BlockCache
	fileID uint64
	path   string
}

// OpenReader 打开一个列文件：解析footer、校验checksum
func OpenReader(path string, cache *BlockCache) (*Reader, error) {
	mf, err := file.OpenMmapFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		mf:     mf,
		cache:  cache,
		fileID: FileID(path),
		path:   path,
	}
	if err := r.init(); err != nil {
		_ = mf.Close()
		return nil, err
	}
	return r, nil
}

// 从文件尾部解析footer
// | blocks | index | index_len | checksum | checksum_len |
func (r *Reader) init() error {
	dataSize := len(r.mf.Data)
	if dataSize < 8 {
		return errors.Wrapf(utils.ErrCorruption, "cfile too short: %s", r.path)
	}
	dataSize -= 4
	buf, err := r.mf.Bytes(dataSize, 4)
	if err != nil {
		return err
	}
	checksumLen := int(utils.Bytes2Uint32(buf))
	if checksumLen != utils.U64Size || dataSize < checksumLen+4 {
		return errors.Wrapf(utils.ErrCorruption, "bad checksum length in %s", r.path)
	}

	dataSize -= checksumLen
	checksum, err := r.mf.Bytes(dataSize, checksumLen)
	if err != nil {
		return err
	}

	dataSize -= 4
	buf, err = r.mf.Bytes(dataSize, 4)
	if err != nil {
		return err
	}
	idxLen := int(utils.Bytes2Uint32(buf))
	if idxLen < 0 || dataSize < idxLen {
		return errors.Wrapf(utils.ErrCorruption, "bad index length in %s", r.path)
	}

	dataSize -= idxLen
	idxData, err := r.mf.Bytes(dataSize, idxLen)
	if err != nil {
		return err
	}
	if err := utils.VerifyChecksum(idxData, checksum); err != nil {
		return errors.Wrapf(err, "failed to verify index checksum for cfile: %s", r.path)
	}

	idx := &pb.ColumnIndex{}
	if err := idx.Unmarshal(idxData); err != nil {
		return errors.Wrapf(err, "while unmarshal index of %s", r.path)
	}
	r.idx = idx
	return nil
}

// NumRows 这个列文件的总行数
func (r *Reader) NumRows() uint32 {
	return r.idx.NumRows
}

func (r *Reader) BlockRows() uint32 {
	return r.idx.BlockRows
}

func (r *Reader) ValueType() uint32 {
	return r.idx.ValueType
}

func (r *Reader) NumBlocks() int {
	return len(r.idx.Offsets)
}

// SizeOnDisk 文件大小
func (r *Reader) SizeOnDisk() int64 {
	stat, err := r.mf.Fd.Stat()
	utils.Panic(err)
	return stat.Size()
}

// Block 读取并解码第blockIdx个block，先走cache
func (r *Reader) Block(blockIdx int) (*Block, error) {
	if blockIdx < 0 || blockIdx >= len(r.idx.Offsets) {
		return nil, errors.Wrapf(utils.ErrInvalidArgument, "block %d out of range", blockIdx)
	}
	if r.cache != nil {
		if b := r.cache.get(r.fileID, blockIdx); b != nil {
			return b, nil
		}
	}
	off := r.idx.Offsets[blockIdx]
	raw, err := r.mf.Bytes(int(off.Offset), int(off.Len))
	if err != nil {
		return nil, errors.Wrapf(err, "while reading block %d of %s", blockIdx, r.path)
	}
	b, err := r.decodeBlock(raw, off.FirstRowid)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.set(r.fileID, blockIdx, b)
	}
	return b, nil
}

// 从外到内层层解封装一个block
func (r *Reader) decodeBlock(raw []byte, firstRowid uint32) (*Block, error) {
	if len(raw) < 4 {
		return nil, errors.Wrapf(utils.ErrCorruption, "block too short in %s", r.path)
	}
	end := len(raw) - 4
	checksumLen := int(utils.Bytes2Uint32(raw[end:]))
	if checksumLen != utils.U64Size || end < checksumLen {
		return nil, errors.Wrapf(utils.ErrCorruption, "bad block checksum length in %s", r.path)
	}
	end -= checksumLen
	checksum := raw[end : end+checksumLen]
	if err := utils.VerifyChecksum(raw[:end], checksum); err != nil {
		return nil, errors.Wrapf(err, "block checksum mismatch in %s", r.path)
	}
	if end < 4 {
		return nil, errors.Wrapf(utils.ErrCorruption, "block missing cell count in %s", r.path)
	}
	end -= 4
	n := int(utils.Bytes2Uint32(raw[end:]))

	width := FixedWidthOf(r.idx.ValueType)
	b := &Block{width: width, n: n, firstRowid: firstRowid}
	if width > 0 {
		if end != n*width {
			return nil, errors.Wrapf(utils.ErrCorruption, "fixed block size mismatch in %s", r.path)
		}
		b.raw = raw[:end]
		return b, nil
	}
	if end < n*4 {
		return nil, errors.Wrapf(utils.ErrCorruption, "block offset table truncated in %s", r.path)
	}
	end -= n * 4
	// offset表不拷贝，直接转成[]uint32视图
	b.cellOffsets = utils.Bytes2Uint32Slice(raw[end : end+n*4])
	b.raw = raw[:end]
	return b, nil
}

// BlockIdxForRowid 按固定节奏算出rowid所在的block
func (r *Reader) BlockIdxForRowid(rowid uint32) (int, error) {
	if rowid >= r.idx.NumRows {
		return 0, errors.Wrapf(utils.ErrKeyNotFound, "rowid %d >= %d", rowid, r.idx.NumRows)
	}
	return int(rowid / r.idx.BlockRows), nil
}

// SeekBlockForKey 在稀疏值索引上二分，返回可能包含encodedKey的block编号
// 只有写了validx的key列能用
func (r *Reader) SeekBlockForKey(encodedKey []byte) (int, error) {
	if !r.idx.HasValidx {
		return 0, errors.Wrap(utils.ErrInvalidArgument, "cfile has no value index")
	}
	offsets := r.idx.Offsets
	if len(offsets) == 0 {
		return 0, errors.Wrap(utils.ErrKeyNotFound, "empty cfile")
	}
	// 找到第一个firstKey > encodedKey的block，目标在它前面一个
	i := sort.Search(len(offsets), func(i int) bool {
		return bytes.Compare(offsets[i].FirstKey, encodedKey) > 0
	})
	if i == 0 {
		return 0, errors.Wrap(utils.ErrKeyNotFound, "key before first block")
	}
	return i - 1, nil
}

// Close 释放文件句柄
func (r *Reader) Close() error {
	if r.cache != nil {
		r.cache.dropFile(r.fileID)
	}
	return r.mf.Close()
}
