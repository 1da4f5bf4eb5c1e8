package cfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"cstore/utils"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func u32cell(v uint32) []byte {
	return utils.Uint32ToBytes(v)
}

// 定宽列写读roundtrip，跨block
func TestCFileFixedWidthRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0")
	builder := NewBuilder(BuilderOptions{
		ValueType:  TypeU32,
		FixedWidth: 4,
		BlockRows:  16,
	})
	const n = 100
	for i := uint32(0); i < n; i++ {
		require.NoError(t, builder.Append(u32cell(i*3), nil))
	}
	require.NoError(t, builder.Finish(path))

	r, err := OpenReader(path, NewBlockCache(0))
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	require.EqualValues(t, n, r.NumRows())
	require.EqualValues(t, 16, r.BlockRows())
	require.Equal(t, 7, r.NumBlocks())

	for rowid := uint32(0); rowid < n; rowid++ {
		blockIdx, err := r.BlockIdxForRowid(rowid)
		require.NoError(t, err)
		blk, err := r.Block(blockIdx)
		require.NoError(t, err)
		cell := blk.Cell(int(rowid - blk.FirstRowid()))
		require.Equal(t, rowid*3, utils.Bytes2Uint32(cell))
	}
	_, err = r.BlockIdxForRowid(n)
	require.ErrorIs(t, errors.Cause(err), utils.ErrKeyNotFound)
}

// 变长列写读roundtrip
func TestCFileBytesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_1")
	builder := NewBuilder(BuilderOptions{
		ValueType: TypeBytes,
		BlockRows: 8,
	})
	const n = 50
	for i := 0; i < n; i++ {
		cell := []byte(fmt.Sprintf("value-%03d-%s", i, string(make([]byte, i%7))))
		require.NoError(t, builder.Append(cell, nil))
	}
	require.NoError(t, builder.Finish(path))

	r, err := OpenReader(path, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	for i := 0; i < n; i++ {
		blockIdx, err := r.BlockIdxForRowid(uint32(i))
		require.NoError(t, err)
		blk, err := r.Block(blockIdx)
		require.NoError(t, err)
		want := []byte(fmt.Sprintf("value-%03d-%s", i, string(make([]byte, i%7))))
		require.Equal(t, want, blk.Cell(i-int(blk.FirstRowid())))
	}
}

// key列的稀疏值索引：SeekBlockForKey返回可能包含key的block
func TestCFileSeekBlockForKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0")
	builder := NewBuilder(BuilderOptions{
		ValueType:   TypeU32,
		FixedWidth:  4,
		BlockRows:   10,
		WriteValidx: true,
	})
	// 编码key就用cell本身：大端u32天然memcmp有序
	const n = 95
	for i := uint32(0); i < n; i++ {
		cell := u32cell(i * 2)
		require.NoError(t, builder.Append(cell, cell))
	}
	require.NoError(t, builder.Finish(path))

	r, err := OpenReader(path, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	for i := uint32(0); i < n; i++ {
		blockIdx, err := r.SeekBlockForKey(u32cell(i * 2))
		require.NoError(t, err)
		require.Equal(t, int(i/10), blockIdx)
	}
	// 比第一个block的firstKey还小的key
	_, err = r.SeekBlockForKey(nil)
	require.Error(t, err)
}

// 没有validx的列不能seek
func TestCFileSeekWithoutValidx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_2")
	builder := NewBuilder(BuilderOptions{ValueType: TypeU32, FixedWidth: 4, BlockRows: 4})
	require.NoError(t, builder.Append(u32cell(1), nil))
	require.NoError(t, builder.Finish(path))

	r, err := OpenReader(path, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	_, err = r.SeekBlockForKey(u32cell(1))
	require.ErrorIs(t, errors.Cause(err), utils.ErrInvalidArgument)
}

// finish之后不允许再append
func TestCFileAppendAfterFinish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0")
	builder := NewBuilder(BuilderOptions{ValueType: TypeU32, FixedWidth: 4})
	require.NoError(t, builder.Append(u32cell(1), nil))
	require.NoError(t, builder.Finish(path))
	require.ErrorIs(t, errors.Cause(builder.Append(u32cell(2), nil)), utils.ErrFinished)
}

// footer被改动之后open要报corruption
func TestCFileCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0")
	builder := NewBuilder(BuilderOptions{ValueType: TypeU32, FixedWidth: 4, BlockRows: 4})
	for i := uint32(0); i < 10; i++ {
		require.NoError(t, builder.Append(u32cell(i), nil))
	}
	require.NoError(t, builder.Finish(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// index区在block数据之后，把倒数第30个byte的每一位都翻转
	raw[len(raw)-30] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0666))

	_, err = OpenReader(path, nil)
	require.Error(t, err)
}

// bloom文件的roundtrip和保守性
func TestBloomFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloom")
	w := NewBloomWriter(0.01)
	const n = 1000
	for i := 0; i < n; i++ {
		require.NoError(t, w.AppendKey([]byte(fmt.Sprintf("key-%05d", i))))
	}
	require.NoError(t, w.Finish(path))

	r, err := OpenBloomReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.EqualValues(t, n, r.NumKeys())
	for i := 0; i < n; i++ {
		probe := utils.NewBloomKeyProbe([]byte(fmt.Sprintf("key-%05d", i)))
		require.True(t, r.MayContain(probe))
	}
	falsePositive := 0
	for i := n; i < 2*n; i++ {
		if r.MayContain(utils.NewBloomKeyProbe([]byte(fmt.Sprintf("key-%05d", i)))) {
			falsePositive++
		}
	}
	require.Less(t, float64(falsePositive)/n, 0.05)
}

// 空的列文件也是合法的
func TestCFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0")
	builder := NewBuilder(BuilderOptions{ValueType: TypeU32, FixedWidth: 4})
	require.NoError(t, builder.Finish(path))

	r, err := OpenReader(path, nil)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	require.EqualValues(t, 0, r.NumRows())
	require.Equal(t, 0, r.NumBlocks())
}
