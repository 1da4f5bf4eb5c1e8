// 列文件的构建
// 一个列文件由若干个block组成，每个block固定BlockRows行（最后一个可以不满），
// 所有列采用相同的行数节奏，这样rowid到block的映射不需要额外的位置索引
package cfile

import (
	"math"
	"os"

	"cstore/file"
	"cstore/pb"
	"cstore/utils"

	"github.com/pkg/errors"
)

// 写一个列文件时的参数
type BuilderOptions struct {
	// pb.ColumnIndex里记录的值类型
	ValueType uint32
	// 定宽类型的cell宽度；0表示变长(BYTES)
	FixedWidth int
	// 每个block的行数
	BlockRows int
	// key列需要值索引：index里每个block记录第一行的复合编码key
	WriteValidx bool
}

// 构建中的一个block
type block struct {
	data        []byte
	cellOffsets []uint32
	end         int
	firstKey    []byte
}

// Builder 列文件的writer，append cell，finish时一次性落盘
type Builder struct {
	opt       BuilderOptions
	curBlock  *block
	blockList []*block
	numRows   uint32
	finished  bool
}

func NewBuilder(opt BuilderOptions) *Builder {
	if opt.BlockRows <= 0 {
		opt.BlockRows = utils.DefaultBlockRows
	}
	return &Builder{opt: opt}
}

// 为可能需要的size分配足够大的空间，并返回分配好的待写入[]byte
func (b *Builder) allocate(size int) []byte {
	blk := b.curBlock
	if len(blk.data[blk.end:]) < size {
		// 如果扩两倍还不够就扩到需要的大小
		sz := 2 * len(blk.data)
		if blk.end+size > sz {
			sz = blk.end + size
		}
		buf := make([]byte, sz)
		copy(buf, blk.data)
		blk.data = buf
	}
	blk.end += size
	return blk.data[blk.end-size : blk.end]
}

// 向curBlock.data中追加数据
func (b *Builder) append(data []byte) {
	buf := b.allocate(len(data))
	utils.CondPanic(len(data) != copy(buf, data), errors.New("builder.append data"))
}

// 封装当前block：追加cellOffsets和行数，再算checksum
func (b *Builder) finishBlock() {
	if b.curBlock == nil || len(b.curBlock.cellOffsets) == 0 {
		return
	}
	/*
		block 外 -> 内
		定宽列没有cellOffsets这一段
		+------------------------------------------------------------------+
		| checksum_len | checksum | ncells | cellOffsets |      cells      |
		+------------------------------------------------------------------+
	*/
	ncells := uint32(len(b.curBlock.cellOffsets))
	if b.opt.FixedWidth == 0 {
		b.append(utils.Uint32Slice2Bytes(b.curBlock.cellOffsets))
	}
	b.append(utils.Uint32ToBytes(ncells))

	checksum := utils.Uint64ToBytes(utils.CalculateChecksum(b.curBlock.data[:b.curBlock.end]))
	b.append(checksum)
	b.append(utils.Uint32ToBytes(uint32(len(checksum))))

	b.blockList = append(b.blockList, b.curBlock)
	b.curBlock = nil
}

// Append 追加一个cell；encodedKey只在key列填（这一行的复合编码key），
// block的第一行会把它记到索引里作为稀疏值索引
func (b *Builder) Append(cell []byte, encodedKey []byte) error {
	if b.finished {
		return errors.Wrap(utils.ErrFinished, "cfile append")
	}
	if b.opt.FixedWidth > 0 && len(cell) != b.opt.FixedWidth {
		return errors.Wrapf(utils.ErrInvalidArgument, "cell width %d != %d", len(cell), b.opt.FixedWidth)
	}
	// 到了节奏就开一个新block
	if b.curBlock == nil || len(b.curBlock.cellOffsets) >= b.opt.BlockRows {
		b.finishBlock()
		b.curBlock = &block{
			data: make([]byte, b.opt.BlockRows*(b.opt.FixedWidth+4)),
		}
		if b.opt.WriteValidx {
			b.curBlock.firstKey = append([]byte(nil), encodedKey...)
		}
	}
	utils.CondPanic(uint64(b.curBlock.end)+uint64(len(cell)) > math.MaxUint32, errors.New("Integer overflow"))
	b.curBlock.cellOffsets = append(b.curBlock.cellOffsets, uint32(b.curBlock.end))
	b.append(cell)
	b.numRows++
	return nil
}

// NumRows 已经追加的行数
func (b *Builder) NumRows() uint32 {
	return b.numRows
}

// 为所有block创建索引
func (b *Builder) buildIndex() []byte {
	index := &pb.ColumnIndex{
		ValueType: b.opt.ValueType,
		NumRows:   b.numRows,
		BlockRows: uint32(b.opt.BlockRows),
		HasValidx: b.opt.WriteValidx,
	}
	var startOffset uint64
	var firstRowid uint32
	for _, blk := range b.blockList {
		off := &pb.BlockOffset{
			Offset:     startOffset,
			Len:        uint32(blk.end),
			FirstRowid: firstRowid,
			FirstKey:   blk.firstKey,
		}
		index.Offsets = append(index.Offsets, off)
		startOffset += uint64(blk.end)
		firstRowid += uint32(len(blk.cellOffsets))
	}
	return index.Marshal()
}

// Finish 封装索引并写入path，只允许调用一次
// 失败时留下的半成品文件由调用方（tablet）负责清理
func (b *Builder) Finish(path string) error {
	if b.finished {
		return errors.Wrap(utils.ErrFinished, "cfile finish")
	}
	b.finishBlock()
	b.finished = true

	/*
		文件整体结构：外 ---> 内
		+--------------------------------------------------------------------+
		| checksum_len | checksum | index_len | index | block0 | block1 ...  |
		+--------------------------------------------------------------------+
	*/
	index := b.buildIndex()
	checksum := utils.Uint64ToBytes(utils.CalculateChecksum(index))

	size := 0
	for _, blk := range b.blockList {
		size += blk.end
	}
	size += len(index) + 4 + len(checksum) + 4

	buf := make([]byte, size)
	written := 0
	for _, blk := range b.blockList {
		written += copy(buf[written:], blk.data[:blk.end])
	}
	written += copy(buf[written:], index)
	written += copy(buf[written:], utils.Uint32ToBytes(uint32(len(index))))
	written += copy(buf[written:], checksum)
	written += copy(buf[written:], utils.Uint32ToBytes(uint32(len(checksum))))
	utils.CondPanic(written != size, errors.New("cfile finish written != size"))

	return writeWholeFile(path, buf)
}

// 将buf一次性写成一个新文件并落盘
func writeWholeFile(path string, buf []byte) error {
	mf, err := file.OpenMmapFile(path, os.O_CREATE|os.O_RDWR, len(buf))
	if err != nil {
		return err
	}
	if len(buf) > 0 {
		if err := mf.AppendBuffer(0, buf); err != nil {
			_ = mf.Close()
			return err
		}
	}
	if err := mf.Sync(); err != nil {
		_ = mf.Close()
		return err
	}
	return mf.Close()
}
